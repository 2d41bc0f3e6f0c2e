package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Capture.RequireCatalog)
	assert.False(t, cfg.Capture.ForceAccept)
	assert.Equal(t, 256, cfg.RFID.Buffer)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingSearchedFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
url = "https://count.example.com"

[sync]
interval = "90s"

[capture]
use_lot = true
use_multiplier = true
`), 0o644))

	t.Setenv("COUNTSYNC_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("COUNTSYNC_DASHBOARD_PORT", "9090")

	cfg, v, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, v.ConfigFileUsed())

	assert.Equal(t, "https://count.example.com", cfg.Server.URL)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.True(t, cfg.Capture.UseLot)
	assert.True(t, cfg.Capture.UseMultiplier)
	assert.True(t, cfg.Capture.RequireCatalog, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 9090, cfg.Dashboard.Port)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: http://10.0.0.2:8000\napi:\n  page_size: 50\n"), 0o644))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:8000", cfg.Server.URL)
	assert.Equal(t, 50, cfg.API.PageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.Server.URL = "count.example.com" }},
		{"no db", func(c *Config) { c.DB.Path = "" }},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"zero page", func(c *Config) { c.API.PageSize = 0 }},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"backoff inverted", func(c *Config) { c.Retry.MaxBackoff = time.Second; c.Retry.InitialBackoff = time.Minute }},
		{"port", func(c *Config) { c.Dashboard.Port = 70000 }},
		{"reader without session", func(c *Config) { c.RFID.ReaderURL = "ws://reader.local/tags" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.RFID.ReaderURL = "ws://reader.local/tags"
	cfg.RFID.SessionID = 7
	assert.NoError(t, cfg.Validate())
}

func TestInit_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "countsync.toml")
	require.NoError(t, Init(path, false))
	assert.Error(t, Init(path, false), "must not overwrite")
	require.NoError(t, Init(path, true))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, Default()))
	out := buf.String()
	assert.Contains(t, out, "server:")
	assert.Contains(t, out, "require_catalog: true")
	assert.True(t, strings.HasPrefix(out, "server:"))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "countsync.toml")
	require.NoError(t, os.WriteFile(path, []byte("[capture]\nuse_lot = false\n"), 0o644))

	_, v, err := Load(path)
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	Watch(v, func(c *Config) { changed <- c }, nil)

	require.NoError(t, os.WriteFile(path, []byte("[capture]\nuse_lot = true\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Capture.UseLot {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}
