package pool

import (
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
)

// Configuration bounds a pool and controls idle eviction.
type Configuration struct {
	// MaxTotal caps live objects in a CommonObjectPool. A SingleObjectPool
	// ignores it.
	MaxTotal int `yaml:"max_total" json:"max_total"`
	// EvictionDelay is the wait before the first sweep.
	EvictionDelay time.Duration `yaml:"eviction_delay" json:"eviction_delay"`
	// EvictionInterval is the period between sweeps. Zero or negative
	// disables eviction.
	EvictionInterval time.Duration `yaml:"eviction_interval" json:"eviction_interval"`
}

// DefaultConfiguration returns the settings used when none are given.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxTotal:         4,
		EvictionDelay:    time.Minute,
		EvictionInterval: time.Minute,
	}
}

// Validate checks the configuration.
func (c Configuration) Validate() error {
	if c.MaxTotal <= 0 {
		return errors.New(errors.ErrorTypeConfig, "pool max total must be positive").
			WithDetail("max_total", c.MaxTotal)
	}
	if c.EvictionEnabled() && c.EvictionDelay < 0 {
		return errors.New(errors.ErrorTypeConfig, "pool eviction delay must not be negative").
			WithDetail("eviction_delay", c.EvictionDelay.String())
	}
	return nil
}

// EvictionEnabled reports whether idle objects are swept periodically.
func (c Configuration) EvictionEnabled() bool {
	return c.EvictionInterval > 0
}

// Option configures a pool.
type Option func(*options)

type options struct {
	logger *zap.Logger
	name   string
	closer *factoryCloser
}

// WithLogger sets the pool's logger. Pools log nothing by default.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName sets the name used in log fields and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// withFactoryCloser makes pools built over one factory close it together.
func withFactoryCloser(c *factoryCloser) Option {
	return func(o *options) {
		o.closer = c
	}
}

func newOptions(tier string, opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		name:   "default",
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(
		zap.String("component", "object_pool"),
		zap.String("pool", o.name),
		zap.String("tier", tier),
	)
	return o
}
