package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:21222", cfg.Endpoint)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseWait)
	assert.Equal(t, DriverChromeDP, cfg.Driver)
	assert.Equal(t, "http://localhost:21222", cfg.LocalEndpoint())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative endpoint", func(c *Config) { c.Endpoint = "localhost:21222" }},
		{"ws endpoint", func(c *Config) { c.Endpoint = "ws://localhost:21222" }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"zero base wait", func(c *Config) { c.Retry.BaseWait = 0 }},
		{"unknown driver", func(c *Config) { c.Driver = "selenium" }},
		{"port out of range", func(c *Config) { c.Local.Port = 70000 }},
		{"no probe attempts", func(c *Config) { c.Local.ProbeAttempts = 0 }},
		{"zero login poll", func(c *Config) { c.Page.LoginPollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoaderWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoaderEnvironmentOverride(t *testing.T) {
	t.Setenv("BROWSER_WS_ENDPOINT", "http://127.0.0.1:9222")
	t.Setenv("CDPLINK_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("CDPLINK_RETRY_BASE_WAIT", "250ms")
	t.Setenv("CDPLINK_LOG_LEVEL", "debug")

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9222", cfg.Endpoint)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseWait)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched fields keep their defaults
	assert.Equal(t, 30, cfg.Local.ProbeAttempts)
}

func TestLoaderFindsFileUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
endpoint: http://10.0.0.2:9222
driver: playwright
retry:
  max_attempts: 4
  base_wait: 1s
local:
  profile_dir: profiles/main
`)

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg, err := NewLoader(nested).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.2:9222", cfg.Endpoint)
	assert.Equal(t, DriverPlaywright, cfg.Driver)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseWait)
	assert.Equal(t, "profiles/main", cfg.Local.ProfileDir)
	assert.Equal(t, DefaultLocalPort, cfg.Local.Port)
}

func TestEnvironmentBeatsFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "endpoint: http://10.0.0.2:9222\n")
	t.Setenv("BROWSER_WS_ENDPOINT", "http://10.0.0.3:9222")

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.3:9222", cfg.Endpoint)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "retry:\n  max_attempts: 0\n")

	_, err := NewLoader(root).Load()
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	root := t.TempDir()
	l := NewLoader(root)

	cfg := Default()
	cfg.Endpoint = "http://127.0.0.1:9333"
	require.NoError(t, l.Save(cfg, l.GetConfigPath()))

	loaded, err := LoadFile(l.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, ConfigDirName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0644))
}
