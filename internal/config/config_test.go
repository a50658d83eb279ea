package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadchadu/phrames"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 12*time.Second, cfg.Export.Timeout)
	assert.Equal(t, int64(10<<20), cfg.Proxy.MaxBytes)
	assert.Equal(t, "sqlite", cfg.Store.Counters)

	preview, export := cfg.Export.Interpolation()
	assert.Equal(t, phrames.InterpBilinear, preview)
	assert.Equal(t, phrames.InterpCatmullRom, export)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "phrames.yaml", `
server:
  addr: ":9000"
  base_url: "https://phrames.example"
proxy:
  allowed_hosts: ["firebasestorage.googleapis.com"]
  timeout: 10s
export:
  timeout: 14s
  export_interpolation: nearest
store:
  counters: redis
redis:
  addr: "redis:6379"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "https://phrames.example", cfg.Server.BaseURL)
	assert.Equal(t, []string{"firebasestorage.googleapis.com"}, cfg.Proxy.AllowedHosts)
	assert.Equal(t, 10*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, 14*time.Second, cfg.Export.Timeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	// Untouched fields keep their defaults.
	assert.Equal(t, 20, cfg.Proxy.Burst)
	assert.Equal(t, "bilinear", cfg.Export.PreviewInterpolation)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "phrames.yaml", "server:\n  addr: \":9000\"\n")
	env := writeFile(t, ".env", "PHRAMES_LOG_FORMAT=json\nPHRAMES_PROXY_RATE=2.5\n")
	t.Cleanup(func() {
		os.Unsetenv("PHRAMES_LOG_FORMAT")
		os.Unsetenv("PHRAMES_PROXY_RATE")
	})
	t.Setenv("PHRAMES_ADDR", ":7000")
	t.Setenv("PHRAMES_PROXY_ALLOWED_HOSTS", "a.example;b.example")

	cfg, err := Load(path, env, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "environment beats YAML")
	assert.Equal(t, "json", cfg.Logging.Format, ".env is applied")
	assert.InDelta(t, 2.5, cfg.Proxy.RatePerSecond, 1e-9)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Proxy.AllowedHosts)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"relative base url", func(c *Config) { c.Server.BaseURL = "phrames.example" }},
		{"export timeout too short", func(c *Config) { c.Export.Timeout = 5 * time.Second }},
		{"export timeout too long", func(c *Config) { c.Export.Timeout = time.Minute }},
		{"unknown interpolation", func(c *Config) { c.Export.PreviewInterpolation = "lanczos" }},
		{"zero proxy limit", func(c *Config) { c.Proxy.MaxBytes = 0 }},
		{"unknown counters", func(c *Config) { c.Store.Counters = "firestore" }},
		{"redis without addr", func(c *Config) { c.Store.Counters = "redis"; c.Redis.Addr = "" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}
