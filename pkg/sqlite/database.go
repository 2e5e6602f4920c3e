package sqlite

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/logger"
	"github.com/ajitpratap0/sqlpool/pkg/metrics"
	"github.com/ajitpratap0/sqlpool/pkg/observability"
	"github.com/ajitpratap0/sqlpool/pkg/pool"
)

// Option configures a Database.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	scheduler      pool.Scheduler
	name           string
}

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider sets where spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithScheduler runs eviction on s instead of a scheduler owned by the
// database. The caller closes s.
func WithScheduler(s pool.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithName sets the pool name used in logs and metric labels. Defaults to
// the database file name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Database is a pooled SQLite database.
type Database struct {
	config  Config
	name    string
	engine  *Engine
	factory *ConnectionFactory
	pool    *pool.TieredObjectPool[string, *Connection]
	tracer  trace.Tracer
	logger  *zap.Logger

	// set when the database created its own scheduler
	scheduler *pool.TickerScheduler

	closed atomic.Bool
}

// Open validates config, builds the pool and opens the primary connection.
func Open(config Config, opts ...Option) (*Database, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{
		logger:         logger.Named("sqlite"),
		tracerProvider: otel.GetTracerProvider(),
		name:           filepath.Base(config.Path),
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Database{
		config: config,
		name:   o.name,
		tracer: o.tracerProvider.Tracer(observability.InstrumentationName),
		logger: o.logger.With(zap.String("database", config.Path), zap.String("pool", o.name)),
	}

	scheduler := o.scheduler
	if scheduler == nil && config.Pool.EvictionEnabled() {
		d.scheduler = pool.NewTickerScheduler()
		scheduler = d.scheduler
	}

	d.engine = NewEngine(d.logger)
	factory, err := NewConnectionFactory(d.engine, config, d.logger)
	if err != nil {
		d.closeScheduler()
		return nil, err
	}
	d.factory = factory

	d.pool, err = pool.NewTieredPool[string, *Connection](factory, scheduler, config.Pool,
		pool.WithLogger(d.logger),
		pool.WithName(o.name),
	)
	if err != nil {
		d.closeScheduler()
		return nil, err
	}

	// Opening the primary first sets the journal mode before any reader
	// connects.
	primary, err := d.pool.BorrowPrimaryObject(context.Background())
	if err != nil {
		_ = d.pool.Close()
		d.closeScheduler()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database").
			WithDetail("path", config.Path)
	}
	d.pool.ReturnObject(primary)

	d.logger.Info("database opened",
		zap.String("journal_mode", config.JournalMode),
		zap.Int("max_readers", config.Pool.MaxTotal),
		zap.Int("statement_cache_size", config.StatementCacheSize),
	)
	return d, nil
}

// Exec runs a write statement on the primary connection.
func (d *Database) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	ctx, span := observability.StartSpan(ctx, d.tracer, "sqlite.exec", d.attributes(query, true)...)

	var result Result
	err := d.WithConnection(ctx, true, func(c *Connection) error {
		var err error
		result, err = c.Exec(ctx, query, args...)
		return err
	})
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", result.RowsAffected))
	}
	observability.EndSpan(span, err)
	return result, err
}

// Query runs a read statement. With WAL it borrows a reader connection,
// preferring one that already prepared query; otherwise it uses the
// primary connection.
func (d *Database) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	primary := !d.config.WAL()
	ctx, span := observability.StartSpan(ctx, d.tracer, "sqlite.query", d.attributes(query, primary)...)

	rows, err := d.query(ctx, primary, query, args)
	if err == nil {
		span.SetAttributes(attribute.Int("db.rows_returned", rows.Len()))
	}
	observability.EndSpan(span, err)
	return rows, err
}

func (d *Database) query(ctx context.Context, primary bool, query string, args []any) (*Rows, error) {
	var (
		c   *Connection
		err error
	)
	if primary {
		c, err = d.pool.BorrowPrimaryObject(ctx)
	} else {
		c, err = d.pool.BorrowObjectWithKey(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithConnection(ctx, c.ID())
	defer d.giveBack(ctx, c)
	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		d.logFailure(ctx, query, err)
	}
	return rows, err
}

// WithConnection borrows a connection for the duration of fn. Use primary
// for writes.
func (d *Database) WithConnection(ctx context.Context, primary bool, fn func(*Connection) error) error {
	var (
		c   *Connection
		err error
	)
	if primary {
		c, err = d.pool.BorrowPrimaryObject(ctx)
	} else {
		c, err = d.pool.BorrowObject(ctx)
	}
	if err != nil {
		return err
	}
	ctx = logger.ContextWithConnection(ctx, c.ID())
	defer d.giveBack(ctx, c)
	if err := fn(c); err != nil {
		d.logFailure(ctx, "", err)
		return err
	}
	return nil
}

func (d *Database) giveBack(ctx context.Context, c *Connection) {
	if c.Broken() {
		d.logger.Warn("discarding broken connection", logger.Fields(ctx)...)
		d.pool.Invalidate(c)
		return
	}
	d.pool.ReturnObject(c)
}

func (d *Database) logFailure(ctx context.Context, query string, err error) {
	if ctx.Err() != nil {
		return
	}
	fields := append(logger.Fields(ctx), zap.Error(err))
	if query != "" {
		fields = append(fields, zap.String("sql", query))
	}
	d.logger.Debug("statement failed", fields...)
}

func (d *Database) attributes(query string, primary bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.DBSystemKey.String("sqlite"),
		semconv.DBStatementKey.String(query),
		attribute.String("db.sqlite.path", d.config.Path),
		attribute.Bool("db.sqlite.primary", primary),
	}
}

// Gauge reports pooled connections across both tiers.
func (d *Database) Gauge() pool.Gauge {
	return d.pool.Gauge()
}

// FactoryGauge reports every open connection, pooled or not.
func (d *Database) FactoryGauge() pool.Gauge {
	return d.factory.Gauge()
}

// Clear releases idle connections.
func (d *Database) Clear(priority pool.Priority) {
	d.pool.Clear(priority)
}

// Collector exposes the pool gauge to prometheus.
func (d *Database) Collector() prometheus.Collector {
	return metrics.NewGaugeCollector(d.name, func() (int, int) {
		g := d.Gauge()
		return g.Idle, g.Active
	})
}

// Config returns the configuration the database was opened with.
func (d *Database) Config() Config {
	return d.config
}

// Close closes the pool. Borrowed connections are closed when returned.
func (d *Database) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := d.pool.Close()
	d.closeScheduler()
	d.logger.Info("database closed", zap.Int("open_connections", d.engine.Live()))
	return err
}

func (d *Database) closeScheduler() {
	if d.scheduler != nil {
		d.scheduler.Close()
	}
}
