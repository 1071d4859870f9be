package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeJoin joins elem onto base and fails if the result escapes base.
func SafeJoin(base string, elem ...string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("invalid base directory: %w", err)
	}
	joined := filepath.Join(append([]string{absBase}, elem...)...)
	rel, err := filepath.Rel(absBase, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", filepath.Join(elem...), base)
	}
	return joined, nil
}
