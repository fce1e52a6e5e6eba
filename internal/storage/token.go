package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveAccessToken writes the bearer token with owner-only permissions.
func SaveAccessToken(path string, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty access token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	if err := writeFileAtomic(path, []byte(token)); err != nil {
		return fmt.Errorf("failed to write access token: %w", err)
	}
	return nil
}

// LoadAccessToken reads a token saved by SaveAccessToken. ok is false when
// the file does not exist.
func LoadAccessToken(path string) (token string, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read access token: %w", err)
	}
	token = strings.TrimSpace(string(data))
	return token, token != "", nil
}

// RemoveAccessToken deletes the token file if present.
func RemoveAccessToken(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
