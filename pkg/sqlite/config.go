package sqlite

import (
	"strings"
	"time"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/pool"
	stringpool "github.com/ajitpratap0/sqlpool/pkg/strings"
)

// MemoryPath opens a private in-memory database per connection.
const MemoryPath = ":memory:"

// Journal modes accepted by Config.
var journalModes = map[string]bool{
	"delete":   true,
	"truncate": true,
	"persist":  true,
	"memory":   true,
	"wal":      true,
	"off":      true,
}

// Config describes a pooled database.
type Config struct {
	Path               string             `yaml:"path" json:"path"`
	JournalMode        string             `yaml:"journal_mode" json:"journal_mode"`
	BusyTimeout        time.Duration      `yaml:"busy_timeout" json:"busy_timeout"`
	StatementCacheSize int                `yaml:"statement_cache_size" json:"statement_cache_size"`
	Pool               pool.Configuration `yaml:"pool" json:"pool"`
}

// DefaultConfig returns a WAL configuration for the database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:               path,
		JournalMode:        "wal",
		BusyTimeout:        5 * time.Second,
		StatementCacheSize: 32,
		Pool:               pool.DefaultConfiguration(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New(errors.ErrorTypeConfig, "database path is required")
	}
	if !journalModes[strings.ToLower(c.JournalMode)] {
		return errors.New(errors.ErrorTypeConfig, "unsupported journal mode").
			WithDetail("journal_mode", c.JournalMode)
	}
	if c.WAL() && c.Path == MemoryPath {
		return errors.New(errors.ErrorTypeConfig, "in-memory databases cannot use WAL").
			WithDetail("path", c.Path)
	}
	if c.BusyTimeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "busy timeout must not be negative").
			WithDetail("busy_timeout", c.BusyTimeout.String())
	}
	if c.StatementCacheSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "statement cache size must be positive").
			WithDetail("statement_cache_size", c.StatementCacheSize)
	}
	return c.Pool.Validate()
}

// WAL reports whether the journal mode is write-ahead logging, which lets
// readers run alongside the writer.
func (c Config) WAL() bool {
	return strings.EqualFold(c.JournalMode, "wal")
}

// URI returns the filename passed to SQLite.
func (c Config) URI() string {
	if c.Path == MemoryPath {
		return MemoryPath
	}
	ub := stringpool.NewURIBuilder(c.Path)
	defer ub.Close()
	return ub.AddParam("cache", "private").String()
}
