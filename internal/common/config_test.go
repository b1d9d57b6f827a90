package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 3, config.Download.MaxAttempts)
	assert.Equal(t, 2*time.Second, config.Download.BackoffBase)
	assert.Equal(t, 24*time.Hour, config.Vault.CookieTTL)
	assert.False(t, config.Browser.Headless, "login flows need a visible window")
}

func TestLoadFromFiles_MergesAndOverrides(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9090

[vault]
encryption_key = "0123456789abcdef0123456789abcdef"
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9191
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9191, config.Server.Port, "later file should win")
	assert.Equal(t, "localhost", config.Server.Host, "unset values keep defaults")
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("CAPTO_SERVER_PORT", "7070")
	t.Setenv("CAPTO_LOG_LEVEL", "debug")
	t.Setenv("CAPTO_DOWNLOAD_MAX_ATTEMPTS", "5")
	t.Setenv("CAPTO_VAULT_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 5, config.Download.MaxAttempts)
}

func TestEnsureEncryptionKey_ProductionRequiresKey(t *testing.T) {
	config := NewDefaultConfig()
	config.Environment = "production"

	err := config.ensureEncryptionKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption key is required")
}

func TestEnsureEncryptionKey_DevelopmentGenerates(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.ensureEncryptionKey())
	assert.GreaterOrEqual(t, len(config.Vault.EncryptionKey), 32)
}

func TestEnsureEncryptionKey_RejectsShortKey(t *testing.T) {
	config := NewDefaultConfig()
	config.Vault.EncryptionKey = "too-short"

	err := config.ensureEncryptionKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max attempts", func(c *Config) { c.Download.MaxAttempts = 0 }},
		{"zero browser instances", func(c *Config) { c.Browser.MaxInstances = 0 }},
		{"zero cookie ttl", func(c *Config) { c.Vault.CookieTTL = 0 }},
		{"zero session timeout", func(c *Config) { c.Session.Timeout = 0 }},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestIsProduction(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.IsProduction())

	config.Environment = "production"
	assert.True(t, config.IsProduction())

	config.Environment = "PRODUCTION"
	assert.True(t, config.IsProduction())
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	config.ApplyFlagOverrides("0.0.0.0", 9999)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 9999, config.Server.Port)

	// Zero values leave config untouched
	config.ApplyFlagOverrides("", 0)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 9999, config.Server.Port)
}
