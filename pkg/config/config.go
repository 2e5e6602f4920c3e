package config

import (
	"time"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/logger"
	"github.com/ajitpratap0/sqlpool/pkg/observability"
	"github.com/ajitpratap0/sqlpool/pkg/pool"
	"github.com/ajitpratap0/sqlpool/pkg/sqlite"
)

// Config is the complete sqlpool configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	Pool     PoolConfig     `yaml:"pool" json:"pool"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
}

// DatabaseConfig locates and tunes the database file.
type DatabaseConfig struct {
	// Path to the database file, or :memory:
	Path string `yaml:"path" json:"path"`
	// JournalMode is one of delete, truncate, persist, memory, wal or off
	JournalMode string `yaml:"journal_mode" json:"journal_mode"`
	// BusyTimeout bounds how long a connection waits on a locked database
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

// PoolConfig bounds the reader pool and schedules idle eviction.
type PoolConfig struct {
	// MaxTotal caps reader connections
	MaxTotal int `yaml:"max_total" json:"max_total"`
	// EvictionDelay is the wait before the first sweep
	EvictionDelay time.Duration `yaml:"eviction_delay" json:"eviction_delay"`
	// EvictionInterval is the period between sweeps (<= 0 disables eviction)
	EvictionInterval time.Duration `yaml:"eviction_interval" json:"eviction_interval"`
}

// CacheConfig sizes the per-connection statement cache.
type CacheConfig struct {
	StatementCacheSize int `yaml:"statement_cache_size" json:"statement_cache_size"`
}

// LoggingConfig configures the global zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// NewDefault returns a configuration for sqlpool.db in the working
// directory.
func NewDefault() *Config {
	db := sqlite.DefaultConfig("sqlpool.db")
	return &Config{
		Database: DatabaseConfig{
			Path:        db.Path,
			JournalMode: db.JournalMode,
			BusyTimeout: db.BusyTimeout,
		},
		Pool: PoolConfig{
			MaxTotal:         db.Pool.MaxTotal,
			EvictionDelay:    db.Pool.EvictionDelay,
			EvictionInterval: db.Pool.EvictionInterval,
		},
		Cache: CacheConfig{
			StatementCacheSize: db.StatementCacheSize,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			SamplingRate: 1.0,
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.SQLite().Validate(); err != nil {
		return err
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		return errors.New(errors.ErrorTypeConfig, "logging encoding must be json or console").
			WithDetail("encoding", c.Logging.Encoding)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New(errors.ErrorTypeConfig, "unknown log level").
			WithDetail("level", c.Logging.Level)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.New(errors.ErrorTypeConfig, "metrics address is required when metrics are enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.New(errors.ErrorTypeConfig, "tracing sampling rate must be between 0 and 1").
			WithDetail("sampling_rate", c.Tracing.SamplingRate)
	}
	return nil
}

// PoolConfiguration returns the pool section in the form pools take.
func (c *Config) PoolConfiguration() pool.Configuration {
	return pool.Configuration{
		MaxTotal:         c.Pool.MaxTotal,
		EvictionDelay:    c.Pool.EvictionDelay,
		EvictionInterval: c.Pool.EvictionInterval,
	}
}

// SQLite returns the database configuration.
func (c *Config) SQLite() sqlite.Config {
	return sqlite.Config{
		Path:               c.Database.Path,
		JournalMode:        c.Database.JournalMode,
		BusyTimeout:        c.Database.BusyTimeout,
		StatementCacheSize: c.Cache.StatementCacheSize,
		Pool:               c.PoolConfiguration(),
	}
}

// Logger returns the logging section for logger.Init.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		Encoding:    c.Logging.Encoding,
	}
}

// TraceSettings returns the tracing section for observability.Initialize.
func (c *Config) TraceSettings(version string) observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.ServiceVersion = version
	tc.SamplingRate = c.Tracing.SamplingRate
	return tc
}
