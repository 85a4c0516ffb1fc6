package checkin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenFileRoundTrip(t *testing.T) {
	f := NewTokenFile(filepath.Join(t.TempDir(), "sub", TokenFileName))

	tok, err := f.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	expiry := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "bearer", Expiry: expiry}))

	info, err := os.Stat(f.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err = f.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))

	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTokenFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), TokenFileName)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := NewTokenFile(path).Load()
	assert.Error(t, err)
}
