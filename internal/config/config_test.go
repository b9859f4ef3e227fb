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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sha256", cfg.Algorithm)
	assert.Equal(t, "exact", cfg.PolicyMode)
	assert.Empty(t, cfg.TPMDevice)
	assert.False(t, cfg.Syslog.Enabled)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
tpm_device: /dev/tpm0
algorithm: sha384
db_path: /var/lib/pcrgate/state.db
policy_mode: subset
freshness_window: 30m
syslog:
  enabled: true
  socket_path: /run/systemd/journal/syslog
  app_name: attestd
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/tpm0", cfg.TPMDevice)
	assert.Equal(t, "sha384", cfg.Algorithm)
	assert.Equal(t, "/var/lib/pcrgate/state.db", cfg.DBPath)
	assert.Equal(t, "subset", cfg.PolicyMode)
	assert.Equal(t, 30*time.Minute, time.Duration(cfg.FreshnessWindow))
	assert.True(t, cfg.Syslog.Enabled)
	assert.Equal(t, "/run/systemd/journal/syslog", cfg.Syslog.SocketPath)
	assert.Equal(t, "attestd", cfg.Syslog.AppName)
}

func TestLoad_DefaultsForAbsentFields(t *testing.T) {
	path := writeConfig(t, "tpm_device: /dev/tpmrm0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256", cfg.Algorithm)
	assert.Equal(t, "exact", cfg.PolicyMode)
	assert.Equal(t, time.Duration(0), time.Duration(cfg.FreshnessWindow))
}

func TestLoad_RejectsUnknownPolicyMode(t *testing.T) {
	path := writeConfig(t, "policy_mode: lenient\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy_mode")
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "freshness_window: soon\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
