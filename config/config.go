// Package config loads access layer settings from TOML files.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	access "github.com/JohnPlummer/jp-go-access"
	"github.com/JohnPlummer/jp-go-access/httpaccess"
	"github.com/JohnPlummer/jp-go-access/kafkaaccess"
	"github.com/JohnPlummer/jp-go-access/mongoaccess"
	"github.com/JohnPlummer/jp-go-access/redisaccess"
	"github.com/JohnPlummer/jp-go-access/sqlaccess"
)

// Config is the file-backed configuration of accessprobe and the adapters it builds.
type Config struct {
	Access  AccessConfig       `koanf:"access"`
	HTTP    HTTPConfig         `koanf:"http"`
	SQL     sqlaccess.Config   `koanf:"sql"`
	Redis   redisaccess.Config `koanf:"redis"`
	Mongo   mongoaccess.Config `koanf:"mongo"`
	Kafka   kafkaaccess.Config `koanf:"kafka"`
	Logging LoggingConfig      `koanf:"logging"`
}

// AccessConfig holds the retry, deadline and streaming settings shared by all
// collaborators.
type AccessConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`     // total attempts per operation (default: 4)
	RetryWait      time.Duration `koanf:"retry_wait"`       // constant delay between attempts (default: 3s)
	BatchSize      int           `koanf:"batch_size"`       // records per stream batch (default: 10)
	Deadline       time.Duration `koanf:"deadline"`         // bound on one unit of work (default: 1h)
	RetryOnTimeout bool          `koanf:"retry_on_timeout"` // retry attempts that hit the deadline (default: true)
	PoolSize       int           `koanf:"pool_size"`        // run work on a bounded pool when > 0
}

// HTTPConfig holds HTTP session settings.
type HTTPConfig struct {
	Proxy              string        `koanf:"proxy"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	Tracing            bool          `koanf:"tracing"`
	Timeout            time.Duration `koanf:"timeout"` // per-attempt deadline (default: 30s)
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn" or "error" (default: "info")
	Format string `koanf:"format"` // "tint", "text" or "json" (default: "tint")
}

// Default returns the configuration used for keys no file sets.
func Default() *Config {
	defaults := access.DefaultConfig()
	return &Config{
		Access: AccessConfig{
			MaxAttempts:    defaults.MaxAttempts,
			RetryWait:      defaults.RetryWait,
			BatchSize:      defaults.BatchSize,
			Deadline:       defaults.Deadline,
			RetryOnTimeout: defaults.RetryOnTimeout,
		},
		HTTP: HTTPConfig{
			Timeout: httpaccess.DefaultTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "tint",
		},
	}
}

// Load reads the given TOML files in order, later files overriding earlier ones.
// Missing files are skipped. Without paths the default locations are used.
func Load(paths ...string) (*Config, error) {
	k := koanf.New(".")

	if len(paths) == 0 {
		paths = defaultPaths()
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.HTTP.Proxy = strings.TrimSpace(cfg.HTTP.Proxy)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	return cfg, nil
}

func defaultPaths() []string {
	var paths []string

	// 1. ~/.config/accessprobe/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "accessprobe", "config.toml"))
	}

	// 2. ./accessprobe.toml (highest priority)
	return append(paths, "accessprobe.toml")
}

// Options converts the settings to executor options.
func (a AccessConfig) Options() []access.Option {
	opts := []access.Option{
		access.WithMaxAttempts(a.MaxAttempts),
		access.WithRetryWait(a.RetryWait),
		access.WithBatchSize(a.BatchSize),
		access.WithDeadline(a.Deadline),
		access.WithRetryOnTimeout(a.RetryOnTimeout),
	}
	if a.PoolSize > 0 {
		opts = append(opts, access.WithBlockingPool(access.NewBlockingPool(a.PoolSize)))
	}
	return opts
}

// SessionOptions converts the settings to HTTP session options.
func (h HTTPConfig) SessionOptions() ([]httpaccess.SessionOption, error) {
	opts := []httpaccess.SessionOption{
		httpaccess.WithInsecureSkipVerify(h.InsecureSkipVerify),
		httpaccess.WithTracing(h.Tracing),
	}
	if h.Proxy != "" {
		proxy, err := url.Parse(h.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", h.Proxy, err)
		}
		opts = append(opts, httpaccess.WithProxy(proxy))
	}
	return opts, nil
}

// SlogLevel returns the configured level. Unknown names mean info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
