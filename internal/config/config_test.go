package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// chdir stands in for testing.T.Chdir, which needs Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8081", cfg.Remote.BaseURL)
	assert.Equal(t, "http://127.0.0.1:8081/health", cfg.Connectivity.ProbeURL)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, 0, cfg.Sync.MaxSubmitAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Store.Path)
}

func TestLoad_TOMLFile(t *testing.T) {
	path := writeFile(t, "crewsync.toml", `
[store]
path = "/tmp/crew.db"

[remote]
base_url = "https://api.example.dk/"
token = "abc"
timeout = "3s"

[sync]
interval = "1m"
max_submit_attempts = 5

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/crew.db", cfg.Store.Path)
	assert.Equal(t, "abc", cfg.Remote.Token)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "https://api.example.dk/health", cfg.Connectivity.ProbeURL)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 5, cfg.Sync.MaxSubmitAttempts)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "crewsync.yaml", `
remote:
  base_url: http://10.0.0.5:9000
relay:
  enabled: true
  addr: 0.0.0.0:9999
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:9000", cfg.Remote.BaseURL)
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, "0.0.0.0:9999", cfg.Relay.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "crewsync.toml", `
[remote]
base_url = "http://file.example"
`)
	t.Setenv("CREWSYNC_REMOTE_BASE_URL", "http://env.example")
	t.Setenv("CREWSYNC_SYNC_MAX_SUBMIT_ATTEMPTS", "7")
	t.Setenv("CREWSYNC_CONNECTIVITY_CONSTRAINED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example", cfg.Remote.BaseURL)
	assert.Equal(t, 7, cfg.Sync.MaxSubmitAttempts)
	assert.True(t, cfg.Connectivity.Constrained)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "explicit path must exist")

	bad := writeFile(t, "crewsync.toml", `
[remote]
base_url = "ftp://nope"
`)
	_, err = Load(bad)
	assert.ErrorContains(t, err, "remote.base_url")

	level := writeFile(t, "crewsync.toml", `
[log]
level = "verbose"
`)
	_, err = Load(level)
	assert.ErrorContains(t, err, "log.level")

	attempts := writeFile(t, "crewsync.toml", `
[sync]
max_submit_attempts = -1
`)
	_, err = Load(attempts)
	assert.ErrorContains(t, err, "max_submit_attempts")
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "crewsync.toml")
	cfg := Default()
	cfg.Remote.Token = "secret"
	cfg.Sync.MaxSubmitAttempts = 4
	cfg.Relay.Enabled = true

	require.NoError(t, Write(path, cfg, false))
	assert.Error(t, Write(path, cfg, false), "refuses to overwrite")
	require.NoError(t, Write(path, cfg, true))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
