package checkin

import (
	"encoding/json"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// TokenFileName is the OAuth token file inside the data directory.
const TokenFileName = "activity_token.json"

// TokenFile persists an OAuth token as JSON with owner-only permissions.
type TokenFile struct {
	path string
}

// NewTokenFile returns a TokenFile at path.
func NewTokenFile(path string) *TokenFile { return &TokenFile{path: path} }

// Path returns the token file path.
func (f *TokenFile) Path() string { return f.path }

// Load reads the token. A missing file yields (nil, nil).
func (f *TokenFile) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read activity token").
			WithContext("path", f.path).Build()
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "corrupt activity token file").
			WithContext("path", f.path).Build()
	}
	return &tok, nil
}

// Save writes tok atomically.
func (f *TokenFile) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return errors.InternalError("failed to encode activity token").WithCause(err).Build()
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return f.saveErr(err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return f.saveErr(err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return f.saveErr(err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return f.saveErr(err)
	}
	if err := tmp.Close(); err != nil {
		return f.saveErr(err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return f.saveErr(err)
	}
	return nil
}

func (f *TokenFile) saveErr(err error) error {
	return errors.WrapError(err, errors.CategoryFileSystem, "failed to save activity token").
		WithContext("path", f.path).Build()
}
