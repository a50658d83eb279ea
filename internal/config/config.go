// Package config loads the phrames service configuration from a YAML file,
// an optional .env file and PHRAMES_* environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/saadchadu/phrames"
)

// Config represents the service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Export  ExportConfig  `yaml:"export"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"PHRAMES_ADDR"`
	BaseURL         string        `yaml:"base_url" env:"PHRAMES_BASE_URL"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"PHRAMES_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"PHRAMES_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PHRAMES_SHUTDOWN_TIMEOUT"`
	// AllowedOrigins limits WebSocket origins. Empty allows same-host only.
	AllowedOrigins []string `yaml:"allowed_origins" env:"PHRAMES_ALLOWED_ORIGINS"`
}

type ProxyConfig struct {
	// AllowedHosts is semicolon-separated in the environment.
	AllowedHosts  []string      `yaml:"allowed_hosts" env:"PHRAMES_PROXY_ALLOWED_HOSTS"`
	MaxBytes      int64         `yaml:"max_bytes" env:"PHRAMES_PROXY_MAX_BYTES"`
	Timeout       time.Duration `yaml:"timeout" env:"PHRAMES_PROXY_TIMEOUT"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"PHRAMES_PROXY_RATE"`
	Burst         int           `yaml:"burst" env:"PHRAMES_PROXY_BURST"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"PHRAMES_PROXY_CACHE_TTL"`
	CacheCapacity int           `yaml:"cache_capacity" env:"PHRAMES_PROXY_CACHE_CAPACITY"`

	// AllowPrivateNetworks lets the proxy reach loopback and private
	// addresses, for local development only.
	AllowPrivateNetworks bool `yaml:"allow_private_networks" env:"PHRAMES_PROXY_ALLOW_PRIVATE"`
}

type ExportConfig struct {
	Timeout              time.Duration `yaml:"timeout" env:"PHRAMES_EXPORT_TIMEOUT"`
	PreviewInterpolation string        `yaml:"preview_interpolation" env:"PHRAMES_PREVIEW_INTERPOLATION"`
	ExportInterpolation  string        `yaml:"export_interpolation" env:"PHRAMES_EXPORT_INTERPOLATION"`
	FrameInterval        time.Duration `yaml:"frame_interval" env:"PHRAMES_FRAME_INTERVAL"`
}

type StoreConfig struct {
	Path          string `yaml:"path" env:"PHRAMES_DB_PATH"`
	Counters      string `yaml:"counters" env:"PHRAMES_COUNTERS"` // "sqlite" or "redis"
	SweepSchedule string `yaml:"sweep_schedule" env:"PHRAMES_SWEEP_SCHEDULE"`
	SeedFile      string `yaml:"seed_file" env:"PHRAMES_SEED_FILE"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"PHRAMES_REDIS_ADDR"`
	Password string `yaml:"password" env:"PHRAMES_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"PHRAMES_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"PHRAMES_REDIS_PREFIX"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"PHRAMES_LOG_LEVEL"`
	Format string `yaml:"format" env:"PHRAMES_LOG_FORMAT"` // "text" or "json"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			BaseURL:         "http://localhost:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Proxy: ProxyConfig{
			MaxBytes:      phrames.MaxPhotoBytes,
			Timeout:       15 * time.Second,
			RatePerSecond: 5,
			Burst:         20,
			CacheTTL:      time.Hour,
			CacheCapacity: 32,
		},
		Export: ExportConfig{
			Timeout:              phrames.DefaultExportTimeout,
			PreviewInterpolation: "bilinear",
			ExportInterpolation:  "catmullrom",
			FrameInterval:        phrames.DefaultFrameInterval,
		},
		Store: StoreConfig{
			Path:          "data/phrames.db",
			Counters:      "sqlite",
			SweepSchedule: "@hourly",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "phrames",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then variables from envFiles (missing files are
// skipped), then the process environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("server.base_url %q must be an http(s) URL", c.Server.BaseURL))
	}
	if c.Export.Timeout < 10*time.Second || c.Export.Timeout > 15*time.Second {
		errs = append(errs, fmt.Errorf("export.timeout %s must be between 10s and 15s", c.Export.Timeout))
	}
	if _, err := phrames.ParseInterpolation(c.Export.PreviewInterpolation); err != nil {
		errs = append(errs, err)
	}
	if _, err := phrames.ParseInterpolation(c.Export.ExportInterpolation); err != nil {
		errs = append(errs, err)
	}
	if c.Proxy.MaxBytes <= 0 {
		errs = append(errs, errors.New("proxy.max_bytes must be positive"))
	}
	switch c.Store.Counters {
	case "sqlite":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for redis counters"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.counters %q must be sqlite or redis", c.Store.Counters))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Interpolation returns the parsed preview and export sampling modes.
func (e ExportConfig) Interpolation() (preview, export phrames.Interpolation) {
	preview, _ = phrames.ParseInterpolation(e.PreviewInterpolation)
	export, _ = phrames.ParseInterpolation(e.ExportInterpolation)
	return preview, export
}
