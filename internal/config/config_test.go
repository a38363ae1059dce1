package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msgstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	t.Setenv("MSGSTORE_STORE_REGION", "regionB")

	path := writeConfig(t, `
store:
  driver: sqlite
  dsn: /var/lib/msgstore/store.db
  region: regionA
  timeout_on_idle: true
sweep:
  interval: 10s
  timeout: 1m
metrics:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "regionB", cfg.Store.Region)
	assert.True(t, cfg.Store.TimeoutOnIdle)
	assert.Equal(t, 10*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, time.Minute, cfg.Sweep.Timeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":2112", cfg.Metrics.Addr)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  dsn: store.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "DEFAULT", cfg.Store.Region)
	assert.Equal(t, "gob", cfg.Store.Codec)
	assert.True(t, cfg.Sweep.Enabled)
	assert.True(t, cfg.Sweep.RemoveOnExpiry)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: oracle
  dsn: store.db
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "store.driver")
}

func TestValidateRequiresDSN(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: sqlite
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "store.dsn")
}

func TestValidateRejectsBadSweep(t *testing.T) {
	path := writeConfig(t, `
store:
  dsn: store.db
sweep:
  enabled: true
  interval: 0s
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "sweep.interval")
}
