package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PARLEY_CONFIG_DIR", dir)
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("first run writes defaults", func(t *testing.T) {
		dir := withTempConfigDir(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)

		// The defaults should now exist on disk.
		_, err = os.Stat(filepath.Join(dir, "config.yaml"))
		assert.NoError(t, err)
	})

	t.Run("round-trips saved settings", func(t *testing.T) {
		withTempConfigDir(t)

		cfg := Default()
		cfg.APIBaseURL = "https://api.example.com/v1"
		cfg.MaxReconnects = 9
		require.NoError(t, Save(cfg))

		loaded, err := Load()
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded)
	})
}

func TestTokenPersistence(t *testing.T) {
	withTempConfigDir(t)

	t.Run("missing token loads as nil", func(t *testing.T) {
		token, err := LoadToken()
		require.NoError(t, err)
		assert.Nil(t, token)
	})

	t.Run("save and load round-trip", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		token := &Token{
			AccessToken:  "access-abc",
			RefreshToken: "refresh-def",
			ExpiresAt:    expiry,
		}
		require.NoError(t, SaveToken(token))

		loaded, err := LoadToken()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "access-abc", loaded.AccessToken)
		assert.Equal(t, "refresh-def", loaded.RefreshToken)
		assert.True(t, expiry.Equal(loaded.ExpiresAt))
	})

	t.Run("clear removes the token", func(t *testing.T) {
		require.NoError(t, SaveToken(&Token{AccessToken: "short-lived"}))
		require.NoError(t, ClearToken())

		token, err := LoadToken()
		require.NoError(t, err)
		assert.Nil(t, token)

		// Clearing twice is fine.
		assert.NoError(t, ClearToken())
	})
}
