package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFirstRunWritesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, _, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "localhost", cfg.ServerHost)
	require.Equal(t, 4815, cfg.ServerPort)
	require.Equal(t, "localhost:4815", cfg.ServerAddr())
	require.Equal(t, time.Second, cfg.ReconnectInterval)
	require.Equal(t, filepath.Join(dir, "schedule.db"), cfg.DatabasePath)
	require.Zero(t, cfg.ObserverPort)

	// First run leaves a commented template behind.
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(data), "schedc configuration")
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `server:
  host: sched.example.com
  port: 9000
  username: lena
  reconnect_interval: 5s
database:
  path: /var/lib/schedc/schedule.db
observer:
  port: 8080
log:
  file: /var/log/schedc.log
  max_backups: 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, _, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "sched.example.com:9000", cfg.ServerAddr())
	require.Equal(t, "lena", cfg.Username)
	require.Equal(t, 5*time.Second, cfg.ReconnectInterval)
	require.Equal(t, "/var/lib/schedc/schedule.db", cfg.DatabasePath)
	require.Equal(t, 8080, cfg.ObserverPort)
	require.Equal(t, "/var/log/schedc.log", cfg.LogFile)
	require.Equal(t, 7, cfg.LogMaxBackups)
	require.Equal(t, 10, cfg.LogMaxSizeMB, "unset key keeps its default")
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SCHEDC_SERVER_HOST", "env.example.com")
	t.Setenv("SCHEDC_SERVER_PASSWORD", "hunter2")

	cfg, _, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "env.example.com", cfg.ServerHost)
	require.Equal(t, "hunter2", cfg.Password)
}

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(Config{}, "[test] ")
	require.NotNil(t, logger)
	require.Equal(t, "[test] ", logger.Prefix())
}
