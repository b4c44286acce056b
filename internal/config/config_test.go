package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	// Missing file: environment and defaults only.
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60, cfg.Permissions.RequestTimeout)
	assert.Equal(t, 800, cfg.Extraction.StructuredTimeout)
	assert.Equal(t, 10000, cfg.Extraction.OpticalTimeout)
	assert.Equal(t, 100000, cfg.Extraction.MaxContentLength)
	assert.True(t, cfg.Hotkey.Enabled)
	assert.Equal(t, "cmd+shift+ctrl+l", cfg.Hotkey.Combo)
	assert.Equal(t, 8766, cfg.Server.Port)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
env: production
log:
  level: warn
  format: json
permissions:
  request_timeout: 30
extraction:
  strategy_order:
    - accessibility_tree
    - optical_recognition
  max_content_length: 5000
  blocked_apps:
    - "1Password"
hotkey:
  enabled: false
server:
  enabled: true
  port: 9999
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30, cfg.Permissions.RequestTimeout)
	assert.Equal(t, []string{"accessibility_tree", "optical_recognition"}, cfg.Extraction.StrategyOrder)
	assert.Equal(t, 5000, cfg.Extraction.MaxContentLength)
	assert.Equal(t, []string{"1Password"}, cfg.Extraction.BlockedApps)
	assert.False(t, cfg.Hotkey.Enabled)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("AGENT_LOG_LEVEL", "debug")
	t.Setenv("AGENT_HOTKEY_COMBO", "ctrl+shift+k")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ctrl+shift+k", cfg.Hotkey.Combo)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
permissions:
  request_timeout: -5
`))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `
extraction:
  max_content_length: -1
`))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `
server:
  enabled: true
  port: 99999
`))
	assert.Error(t, err)
}
