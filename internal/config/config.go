// Package config loads the engine's startup configuration from a YAML
// file with PROVENANCE_*-prefixed environment overrides, grounded on
// the teacher's cobra PersistentFlags + cobra.OnInitialize bootstrap
// style but extended to a file since this engine has materially more
// tunables (per-source rate limits, pool sizes, retry schedule) than
// the teacher's flag-only node bootstrap.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig is one source's token-bucket + sliding-window tuning.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	PerMinute         int     `yaml:"per_minute"`
}

// RetryConfig tunes the backoff schedule shared by every connector call.
type RetryConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	MaxRetries int           `yaml:"max_retries"`
}

// Config is the engine's full startup configuration.
type Config struct {
	// DataDir holds the bbolt job state store file.
	DataDir string `yaml:"data_dir"`

	// ListenAddr serves /metrics, /health, /ready, /live.
	ListenAddr string `yaml:"listen_addr"`

	// QueueBackend selects "local" (in-process heap) or "redis".
	QueueBackend string `yaml:"queue_backend"`
	// RateLimiterBackend selects "local" or "redis".
	RateLimiterBackend string `yaml:"rate_limiter_backend"`
	RedisAddr          string `yaml:"redis_addr"`

	QueueVisibilityTimeout time.Duration `yaml:"queue_visibility_timeout"`
	SchedulerTick          time.Duration `yaml:"scheduler_tick"`
	ReconcilerTick         time.Duration `yaml:"reconciler_tick"`

	Concurrency map[string]int             `yaml:"concurrency"`
	RateLimits  map[string]RateLimitConfig `yaml:"rate_limits"`
	Retry       RetryConfig                `yaml:"retry"`

	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the configuration used when no file is supplied, using
// sensible defaults for every component.
func Default() Config {
	return Config{
		DataDir:                "./provenance-data",
		ListenAddr:             "127.0.0.1:9090",
		QueueBackend:           "local",
		RateLimiterBackend:     "local",
		RedisAddr:              "127.0.0.1:6379",
		QueueVisibilityTimeout: 30 * time.Second,
		SchedulerTick:          2 * time.Second,
		ReconcilerTick:         10 * time.Second,
		IdempotencyTTL:         24 * time.Hour,
		Retry:                  RetryConfig{BaseDelay: time.Second, MaxDelay: 60 * time.Second, MaxRetries: 3},
		LogLevel:               "info",
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// PROVENANCE_*-prefixed environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROVENANCE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PROVENANCE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PROVENANCE_QUEUE_BACKEND"); v != "" {
		cfg.QueueBackend = v
	}
	if v := os.Getenv("PROVENANCE_RATE_LIMITER_BACKEND"); v != "" {
		cfg.RateLimiterBackend = v
	}
	if v := os.Getenv("PROVENANCE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("PROVENANCE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PROVENANCE_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v := os.Getenv("PROVENANCE_SCHEDULER_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SchedulerTick = d
		}
	}
	if v := os.Getenv("PROVENANCE_RECONCILER_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReconcilerTick = d
		}
	}
}
