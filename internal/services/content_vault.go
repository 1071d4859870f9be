package services

import (
	"fmt"
	"strings"

	"pinetree/internal/crypto"
	"pinetree/internal/models"
)

// sealedPrefix marks content stored encrypted.
const sealedPrefix = "pt:enc:v1:"

// ContentVault encrypts the content of private nodes at rest. A nil vault
// stores everything as plaintext.
type ContentVault struct {
	enc *crypto.EncryptionService
}

// NewContentVault wraps enc. Passing nil disables encryption.
func NewContentVault(enc *crypto.EncryptionService) *ContentVault {
	if enc == nil {
		return nil
	}
	return &ContentVault{enc: enc}
}

// IsSealed reports whether content is in encrypted form.
func IsSealed(content string) bool {
	return strings.HasPrefix(content, sealedPrefix)
}

// Seal encrypts content for owner unless the node is public.
func (v *ContentVault) Seal(owner, content string, isPublic bool) (string, error) {
	if v == nil || isPublic || content == "" || IsSealed(content) {
		return content, nil
	}
	ct, err := v.enc.EncryptString(owner, content)
	if err != nil {
		return "", fmt.Errorf("failed to seal content: %w", err)
	}
	return sealedPrefix + ct, nil
}

// Open returns the plaintext of content whether or not it was sealed.
func (v *ContentVault) Open(owner, content string) (string, error) {
	if !IsSealed(content) {
		return content, nil
	}
	if v == nil {
		return "", fmt.Errorf("content is encrypted but no encryption key is configured")
	}
	pt, err := v.enc.DecryptString(owner, strings.TrimPrefix(content, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to open content: %w", err)
	}
	return pt, nil
}

// OpenRows decrypts the content of rows in place.
func (v *ContentVault) OpenRows(rows []models.Pinecone) error {
	for i := range rows {
		pt, err := v.Open(rows[i].UserName, rows[i].Content)
		if err != nil {
			return fmt.Errorf("pinecone %s: %w", rows[i].Guid, err)
		}
		rows[i].Content = pt
	}
	return nil
}
