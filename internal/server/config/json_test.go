package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"api_addr":            "www.example:8080",
		"web_addr":            "www.example:8081",
		"grpc_addr":           "www.example:9000",
		"database_dsn":        "file:library.db",
		"secret_key":          "my_secret_key",
		"token_ttl":           "90m",
		"anonymous_token_ttl": "5m",
		"session_ttl":         "2h",
		"cookie_name":         "sid",
		"cookie_secure":       true,
		"login_path":          "/account/login",
		"log_level":           "warn",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:8080", cfg.APIAddr)
		assert.Equal(t, "www.example:8081", cfg.WebAddr)
		assert.Equal(t, "www.example:9000", cfg.GRPCAddr)
		assert.Equal(t, "file:library.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
		assert.Equal(t, 5*time.Minute, cfg.AnonymousTokenTTL)
		assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
		assert.Equal(t, "sid", cfg.CookieName)
		assert.True(t, cfg.CookieSecure)
		assert.Equal(t, "/account/login", cfg.LoginPath)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("absent keys keep current values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"secret_key": "rotated"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{APIAddr: ":1", TokenTTL: time.Minute, CookieSecure: true}
		parseJson(cfg)

		assert.Equal(t, "rotated", cfg.SecretKey)
		assert.Equal(t, ":1", cfg.APIAddr)
		assert.Equal(t, time.Minute, cfg.TokenTTL)
		assert.True(t, cfg.CookieSecure)
	})

	t.Run("no config flag means no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{APIAddr: "defaults:1234", SecretKey: "key", TokenTTL: 2 * time.Minute}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.APIAddr)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, 2*time.Minute, cfg.TokenTTL)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
