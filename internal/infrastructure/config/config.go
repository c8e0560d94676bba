package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Strata.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Pool     PoolConfig     `yaml:"pool"`
	Cache    CacheConfig    `yaml:"cache"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Events   EventsConfig   `yaml:"events"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging for better concurrent access.
	// Recommended: true (allows concurrent reads during writes).
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// Prevents "database is locked" errors under contention.
	BusyTimeout int `yaml:"busy_timeout"`

	// CacheSizeKB is the per-connection SQLite page cache size in kilobytes.
	CacheSizeKB int `yaml:"cache_size_kb"`
}

// PoolConfig contains connection pool settings.
type PoolConfig struct {
	// BaseSize is the number of persistent connections opened at startup.
	BaseSize int `yaml:"base_size"`

	// Overflow is the number of temporary connections allowed beyond
	// BaseSize. Overflow connections are closed on release, never pooled.
	Overflow int `yaml:"overflow"`

	// AcquireTimeout is the default maximum time to wait for a free
	// connection (milliseconds). Zero fails immediately when the pool
	// is exhausted.
	AcquireTimeout int `yaml:"acquire_timeout"`
}

// CacheConfig contains query cache settings.
type CacheConfig struct {
	// Capacity is the maximum number of cached entries before LRU eviction.
	Capacity int `yaml:"capacity"`

	// DefaultTTL is the default time-to-live for cached entries (seconds).
	DefaultTTL int `yaml:"default_ttl"`
}

// MonitorConfig contains performance monitor settings.
type MonitorConfig struct {
	// SlowThreshold is the duration beyond which an operation is
	// classified as slow (milliseconds).
	SlowThreshold int `yaml:"slow_threshold"`

	// SampleWindow is the maximum number of latency samples retained
	// per operation name.
	SampleWindow int `yaml:"sample_window"`

	// SlowQueryLimit is the capacity of the slow-query ring buffer.
	SlowQueryLimit int `yaml:"slow_query_limit"`
}

// MetricsConfig contains InfluxDB metrics export settings.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// ReportInterval is how often pool and cache gauges are sampled (seconds).
	ReportInterval int `yaml:"report_interval"`
}

// EventsConfig contains MQTT event publishing settings.
type EventsConfig struct {
	Enabled bool               `yaml:"enabled"`
	Broker  EventsBrokerConfig `yaml:"broker"`
	Auth    EventsAuthConfig   `yaml:"auth"`
	QoS     int                `yaml:"qos"`
}

// EventsBrokerConfig contains MQTT broker connection details.
type EventsBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// EventsAuthConfig contains MQTT authentication credentials.
type EventsAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig contains admin HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: STRATA_SECTION_KEY
// For example: STRATA_DATABASE_PATH, STRATA_METRICS_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// Useful when embedding Strata as a library without a config file.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/strata.db",
			WALMode:     true,
			BusyTimeout: 5,
			CacheSizeKB: 2000,
		},
		Pool: PoolConfig{
			BaseSize:       5,
			Overflow:       10,
			AcquireTimeout: 5000,
		},
		Cache: CacheConfig{
			Capacity:   1000,
			DefaultTTL: 300,
		},
		Monitor: MonitorConfig{
			SlowThreshold:  100,
			SampleWindow:   1000,
			SlowQueryLimit: 100,
		},
		Metrics: MetricsConfig{
			BatchSize:      100,
			FlushInterval:  10,
			ReportInterval: 30,
		},
		Events: EventsConfig{
			Broker: EventsBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "strata",
			},
			QoS: 1,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: STRATA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("STRATA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Pool
	if v := os.Getenv("STRATA_POOL_BASE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.BaseSize = n
		}
	}
	if v := os.Getenv("STRATA_POOL_OVERFLOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Overflow = n
		}
	}

	// Metrics - token belongs in the environment, not the file
	if v := os.Getenv("STRATA_METRICS_TOKEN"); v != "" {
		cfg.Metrics.Token = v
	}

	// Events
	if v := os.Getenv("STRATA_EVENTS_HOST"); v != "" {
		cfg.Events.Broker.Host = v
	}
	if v := os.Getenv("STRATA_EVENTS_USERNAME"); v != "" {
		cfg.Events.Auth.Username = v
	}
	if v := os.Getenv("STRATA_EVENTS_PASSWORD"); v != "" {
		cfg.Events.Auth.Password = v
	}

	// API
	if v := os.Getenv("STRATA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// Pool validation
	if c.Pool.BaseSize < 1 {
		errs = append(errs, "pool.base_size must be at least 1")
	}
	if c.Pool.Overflow < 0 {
		errs = append(errs, "pool.overflow must not be negative")
	}
	if c.Pool.AcquireTimeout < 0 {
		errs = append(errs, "pool.acquire_timeout must not be negative")
	}

	// Cache validation
	if c.Cache.Capacity < 1 {
		errs = append(errs, "cache.capacity must be at least 1")
	}
	if c.Cache.DefaultTTL < 0 {
		errs = append(errs, "cache.default_ttl must not be negative")
	}

	// Monitor validation
	if c.Monitor.SampleWindow < 1 {
		errs = append(errs, "monitor.sample_window must be at least 1")
	}
	if c.Monitor.SlowQueryLimit < 1 {
		errs = append(errs, "monitor.slow_query_limit must be at least 1")
	}

	// Metrics validation (only when enabled)
	if c.Metrics.Enabled {
		if c.Metrics.URL == "" {
			errs = append(errs, "metrics.url is required when metrics are enabled")
		}
		if c.Metrics.Token == "" {
			errs = append(errs, "metrics.token is required when metrics are enabled (set STRATA_METRICS_TOKEN)")
		}
	}

	// Events validation (only when enabled)
	if c.Events.Enabled {
		if c.Events.QoS < 0 || c.Events.QoS > 2 {
			errs = append(errs, "events.qos must be 0, 1, or 2")
		}
		if c.Events.Broker.Host == "" {
			errs = append(errs, "events.broker.host is required when events are enabled")
		}
		if c.Events.Broker.Port < 1 || c.Events.Broker.Port > 65535 {
			errs = append(errs, "events.broker.port must be between 1 and 65535")
		}
	}

	// API validation (only when enabled)
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AcquireTimeout returns the pool acquire timeout as a Duration.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Pool.AcquireTimeout) * time.Millisecond
}

// CacheTTL returns the default cache TTL as a Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTL) * time.Second
}

// SlowThreshold returns the slow-query threshold as a Duration.
func (c *Config) SlowThreshold() time.Duration {
	return time.Duration(c.Monitor.SlowThreshold) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
