package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoadOAuthConfig reads a Google client secrets file (the "web" or
// "installed" flavour of credentials.json).
func LoadOAuthConfig(path string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCredentials, path, err)
	}
	return config, nil
}

// LoadToken reads a token previously written by SaveToken. A missing file is
// reported with an error satisfying errors.Is(err, os.ErrNotExist).
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadToken, err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadToken, path, err)
	}
	return tok, nil
}

// SaveToken overwrites path with tok. The file is replaced atomically so a
// crash mid-write never leaves a truncated token behind.
func SaveToken(path string, tok *oauth2.Token) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteToken, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrWriteToken, err)
	}
	if err := json.NewEncoder(tmp).Encode(tok); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrWriteToken, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteToken, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteToken, err)
	}
	return nil
}
