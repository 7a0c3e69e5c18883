package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.Equal(t, []string{DefaultRequiredPlugin}, cfg.Plugins.Required)
	assert.Equal(t, 140*time.Second, cfg.Plugins.ReadyWait.Timeout.D())
	assert.Equal(t, 10*time.Second, cfg.Plugins.ReadyWait.Interval.D())
}

func TestLoadConfig_Override(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, configFileName, `
remote:
  url: https://ci.example.com
  passwordFile: secret
plugins:
  allowlist: [git, workflow-aggregator]
  downloadWait:
    timeout: 90
    interval: 2s
fleet:
  desiredStateFile: /etc/buildwarden/fleet.yaml
logging:
  level: debug
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://ci.example.com", cfg.Remote.URL)
	assert.Equal(t, "admin", cfg.Remote.Username, "unset values keep defaults")
	assert.Equal(t, filepath.Join(dir, "secret"), cfg.Remote.PasswordFile)
	assert.Equal(t, "/etc/buildwarden/fleet.yaml", cfg.Fleet.DesiredStateFile)
	assert.Equal(t, []string{"git", "workflow-aggregator"}, cfg.Plugins.Allowlist)
	assert.Equal(t, 90*time.Second, cfg.Plugins.DownloadWait.Timeout.D())
	assert.Equal(t, 2*time.Second, cfg.Plugins.DownloadWait.Interval.D())
	assert.Equal(t, 10*time.Minute, cfg.Plugins.DrainWait.Timeout.D())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, configFileName, "remote: [unterminated")

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var cfgErr ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.ErrorType)
	assert.Equal(t, configFileName, cfgErr.FileName)
	assert.NotEmpty(t, cfgErr.Suggestions)
	assert.Contains(t, cfgErr.DetailedError(), "Suggestions:")
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, configFileName, "plugins:\n  drainWait:\n    timeout: soon\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadConfig_ValidationError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, configFileName, "remote:\n  url: not-a-url\nplugins:\n  allowlist: [\"bad name\"]\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var cfgErr ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "validation", cfgErr.ErrorType)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}

func TestLoadPassword(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "password", "s3cret\n")

	pw, err := LoadPassword(RemoteConfig{PasswordFile: path})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = LoadPassword(RemoteConfig{})
	require.NoError(t, err)
	assert.Empty(t, pw)

	_, err = LoadPassword(RemoteConfig{PasswordFile: filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestLoadDesiredFleet(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fleet.yaml", `
agent/0:
  - name: w1
    executors: 2
    labels: [x, y]
  - slavehost: legacy
    executors: "abc"
agent/1: []
`)

	fleet, err := LoadDesiredFleet(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"agent/0", "agent/1"}, fleet.Peers())
	require.Len(t, fleet["agent/0"], 2)
	assert.Equal(t, map[string]string{"name": "w1", "executors": "2", "labels": "x y"}, fleet["agent/0"][0])
	assert.Equal(t, "abc", fleet["agent/0"][1]["executors"])
	assert.Empty(t, fleet["agent/1"])
}

func TestLoadDesiredFleet_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fleet.json", `{"peer": [{"name": "w1", "executors": "3", "labels": "linux"}]}`)

	fleet, err := LoadDesiredFleet(path)
	require.NoError(t, err)
	assert.Equal(t, "3", fleet["peer"][0]["executors"])
}

func TestLoadDesiredFleet_Errors(t *testing.T) {
	_, err := LoadDesiredFleet("")
	assert.Error(t, err)

	_, err = LoadDesiredFleet(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "io", cfgErr.ErrorType)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeFile(t, t.TempDir(), "fleet.yaml", "peer: not-a-list")
	_, err = LoadDesiredFleet(path)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.ErrorType)
}
