package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest is a SHA-256 content hash.
type Digest [sha256.Size]byte

// HashReader hashes everything read from r and reports how many bytes it saw.
func HashReader(r io.Reader) (Digest, int64, error) {
	var d Digest
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return d, n, fmt.Errorf("failed to read data: %w", err)
	}
	copy(d[:], h.Sum(nil))
	return d, n, nil
}

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// UserDirName maps a user name to a directory name that reveals nothing
// about it and is always safe on disk.
func UserDirName(userName string) string {
	sum := sha256.Sum256([]byte(userName))
	return hex.EncodeToString(sum[:12])
}
