package sqlite

import (
	"sync/atomic"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
)

const openFlags = sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI | sqlite.OpenNoMutex

// Engine opens raw SQLite handles and keeps count of the ones still open.
// Opening after Close fails.
type Engine struct {
	logger      *zap.Logger
	initialized atomic.Bool
	closed      atomic.Bool
	live        atomic.Int64
}

// NewEngine creates an engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.With(zap.String("component", "sqlite_engine"))}
}

// Open opens a connection to uri.
func (e *Engine) Open(uri string) (*sqlite.Conn, error) {
	if e.closed.Load() {
		return nil, errors.New(errors.ErrorTypeClosed, "sqlite engine is closed").
			WithDetail("uri", uri)
	}
	if e.initialized.CompareAndSwap(false, true) {
		e.logger.Debug("sqlite engine initialized")
	}

	conn, err := sqlite.OpenConn(uri, openFlags)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open sqlite connection").
			WithDetail("uri", uri)
	}
	e.live.Add(1)
	return conn, nil
}

// Release closes a connection obtained from Open.
func (e *Engine) Release(conn *sqlite.Conn) error {
	e.live.Add(-1)
	if err := conn.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close sqlite connection")
	}
	return nil
}

// Live returns the number of open connections.
func (e *Engine) Live() int {
	return int(e.live.Load())
}

// Close stops the engine from opening connections. It is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if live := e.Live(); live > 0 {
		e.logger.Warn("sqlite engine closed with open connections", zap.Int("live", live))
	}
	e.logger.Debug("sqlite engine closed")
	return nil
}

// IsClosed reports whether Close has been called.
func (e *Engine) IsClosed() bool {
	return e.closed.Load()
}
