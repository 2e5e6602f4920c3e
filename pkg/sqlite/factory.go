package sqlite

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/pool"
	stringpool "github.com/ajitpratap0/sqlpool/pkg/strings"
)

// ConnectionFactory opens and closes pooled connections. The engine is
// closed once the factory is closed and its last connection destroyed.
type ConnectionFactory struct {
	engine *Engine
	config Config
	logger *zap.Logger

	nextID atomic.Uint64
	live   atomic.Int64
	active atomic.Int64
	closed atomic.Bool

	engineOnce sync.Once
}

// NewConnectionFactory creates a factory over engine.
func NewConnectionFactory(engine *Engine, config Config, logger *zap.Logger) (*ConnectionFactory, error) {
	if engine == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "sqlite engine is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionFactory{
		engine: engine,
		config: config,
		logger: logger.With(zap.String("component", "connection_factory"), zap.String("path", config.Path)),
	}, nil
}

// MakeObject opens a reader connection.
func (f *ConnectionFactory) MakeObject() (*Connection, error) {
	return f.open(false)
}

// MakePrimaryObject opens the read-write connection and sets the journal
// mode.
func (f *ConnectionFactory) MakePrimaryObject() (*Connection, error) {
	return f.open(true)
}

func (f *ConnectionFactory) open(primary bool) (*Connection, error) {
	if f.closed.Load() {
		return nil, errors.New(errors.ErrorTypeClosed, "connection factory is closed")
	}
	conn, err := f.engine.Open(f.config.URI())
	if err != nil {
		return nil, err
	}
	for _, pragma := range f.pragmas(primary) {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			_ = f.engine.Release(conn)
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to configure connection").
				WithDetail("pragma", pragma)
		}
	}

	c, err := newConnection(f.nextID.Add(1), conn, primary, f.config.StatementCacheSize, f.logger)
	if err != nil {
		_ = f.engine.Release(conn)
		return nil, err
	}
	f.live.Add(1)
	c.logger.Debug("opened connection")
	return c, nil
}

func (f *ConnectionFactory) pragmas(primary bool) []string {
	pragmas := []string{
		stringpool.PragmaInt("busy_timeout", int(f.config.BusyTimeout/time.Millisecond)),
	}
	switch {
	case primary:
		pragmas = append(pragmas, stringpool.Pragma("journal_mode", f.config.JournalMode))
		if f.config.WAL() {
			pragmas = append(pragmas, stringpool.Pragma("synchronous", "NORMAL"))
		}
	case f.config.WAL():
		pragmas = append(pragmas, stringpool.PragmaInt("query_only", 1))
	}
	return pragmas
}

// ActivateObject marks c borrowed.
func (f *ConnectionFactory) ActivateObject(c *Connection) {
	c.borrowed = true
	c.lastUsed = time.Now()
	f.active.Add(1)
}

// PassivateObject marks c idle.
func (f *ConnectionFactory) PassivateObject(c *Connection) {
	if c.borrowed {
		c.borrowed = false
		f.active.Add(-1)
	}
}

// ValidateObject rejects broken connections.
func (f *ConnectionFactory) ValidateObject(c *Connection) bool {
	return !c.Broken()
}

// DestroyObject finalizes c's statements and closes its handle.
func (f *ConnectionFactory) DestroyObject(c *Connection) error {
	f.PassivateObject(c)
	c.close()
	err := f.engine.Release(c.conn)
	f.live.Add(-1)
	c.logger.Debug("closed connection",
		zap.Duration("age", time.Since(c.createdAt)),
		zap.Bool("broken", c.Broken()),
	)
	f.closeEngineWhenDrained()
	return err
}

// Gauge reports idle and borrowed connections.
func (f *ConnectionFactory) Gauge() pool.Gauge {
	live, active := int(f.live.Load()), int(f.active.Load())
	return pool.Gauge{Idle: live - active, Active: active}
}

// Close stops the factory from opening connections. Each tier of a pool
// closes its factory, so repeated calls are no-ops.
func (f *ConnectionFactory) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		f.logger.Debug("connection factory closed", zap.Int64("live", f.live.Load()))
	}
	f.closeEngineWhenDrained()
	return nil
}

func (f *ConnectionFactory) closeEngineWhenDrained() {
	if !f.closed.Load() || f.live.Load() > 0 {
		return
	}
	f.engineOnce.Do(func() {
		if err := f.engine.Close(); err != nil {
			f.logger.Warn("failed to close sqlite engine", zap.Error(err))
		}
	})
}

var _ pool.ObjectFactory[*Connection] = (*ConnectionFactory)(nil)
