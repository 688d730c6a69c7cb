package errors

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// ValidateSourcePath validates an image path supplied by an API client.
// The path must be relative, stay inside the serving root, and be free of
// control characters.
func ValidateSourcePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "source path cannot be empty")
	}
	if len(path) > 500 {
		return New(ErrCodeInvalidPath, "source path too long (max 500 characters)")
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "source path contains invalid control characters")
		}
	}
	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "source path cannot contain backslashes")
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "source path must be relative: %q", path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return New(ErrCodeInvalidPath, "source path escapes the root: %q", path)
	}
	return nil
}

// ValidateBakeID checks that id is a canonical UUID.
func ValidateBakeID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != strings.ToLower(id) {
		return New(ErrCodeInvalidInput, "invalid bake id: %q", id)
	}
	return nil
}
