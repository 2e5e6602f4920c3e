package sqlite

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"

	"github.com/ajitpratap0/sqlpool/pkg/cache"
	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/metrics"
	"github.com/ajitpratap0/sqlpool/pkg/pool"
)

// Result describes the effect of an Exec.
type Result struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

// Rows holds a fully read result set. Values are int64, float64, string,
// []byte or nil.
type Rows struct {
	Columns []string `json:"columns"`
	Values  [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	return len(r.Values)
}

// Connection is a pooled SQLite connection with its own prepared statement
// cache. It is used by one goroutine at a time.
type Connection struct {
	id         uint64
	conn       *sqlite.Conn
	primary    bool
	tag        bool
	statements *cache.CommonLruCache[*sqlite.Stmt]
	logger     *zap.Logger
	createdAt  time.Time
	lastUsed   time.Time

	borrowed bool
	broken   atomic.Bool
}

func newConnection(id uint64, conn *sqlite.Conn, primary bool, cacheSize int, logger *zap.Logger) (*Connection, error) {
	c := &Connection{
		id:        id,
		conn:      conn,
		primary:   primary,
		logger:    logger.With(zap.Uint64("connection_id", id), zap.Bool("primary", primary)),
		createdAt: time.Now(),
	}
	statements, err := cache.NewCommonLruCache[*sqlite.Stmt](cacheSize, c.finalize)
	if err != nil {
		return nil, err
	}
	c.statements = statements
	return c, nil
}

// ID returns the connection's identifier, unique per factory.
func (c *Connection) ID() uint64 { return c.id }

// IsPrimary reports whether this is the read-write connection.
func (c *Connection) IsPrimary() bool { return c.primary }

// Tag returns the eviction tag.
func (c *Connection) Tag() bool { return c.tag }

// SetTag sets the eviction tag.
func (c *Connection) SetTag(tag bool) { c.tag = tag }

// Matches reports whether query is already prepared on this connection.
func (c *Connection) Matches(query string) bool {
	return c.statements.ContainsKey(query)
}

// Broken reports whether the connection hit an unrecoverable error.
func (c *Connection) Broken() bool {
	return c.broken.Load()
}

// CachedStatements returns the number of prepared statements held.
func (c *Connection) CachedStatements() int {
	return c.statements.Len()
}

// LastUsed returns when the connection was last borrowed.
func (c *Connection) LastUsed() time.Time {
	return c.lastUsed
}

// Exec runs a statement that returns no rows.
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	stmt, done, err := c.start(ctx, query, args)
	if err != nil {
		return Result{}, err
	}
	defer done()

	for {
		row, err := stmt.Step()
		if err != nil {
			return Result{}, c.fail(ctx, err, query)
		}
		if !row {
			break
		}
	}
	return Result{
		RowsAffected: int64(c.conn.Changes()),
		LastInsertID: c.conn.LastInsertRowID(),
	}, nil
}

// Query runs a statement and reads every row it returns.
func (c *Connection) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	stmt, done, err := c.start(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer done()

	rows := &Rows{Columns: make([]string, stmt.ColumnCount())}
	for i := range rows.Columns {
		rows.Columns[i] = stmt.ColumnName(i)
	}
	for {
		row, err := stmt.Step()
		if err != nil {
			return nil, c.fail(ctx, err, query)
		}
		if !row {
			return rows, nil
		}
		rows.Values = append(rows.Values, scanRow(stmt, len(rows.Columns)))
	}
}

// start prepares query, binds args and arranges for ctx to interrupt it.
// The returned func resets the statement for reuse.
func (c *Connection) start(ctx context.Context, query string, args []any) (*sqlite.Stmt, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	stmt, err := c.prepare(query)
	if err != nil {
		return nil, nil, c.fail(ctx, err, query)
	}
	if err := bind(stmt, args); err != nil {
		_ = stmt.ClearBindings()
		return nil, nil, err
	}

	previous := c.conn.SetInterrupt(ctx.Done())
	return stmt, func() {
		_ = stmt.Reset()
		_ = stmt.ClearBindings()
		c.conn.SetInterrupt(previous)
	}, nil
}

func (c *Connection) prepare(query string) (*sqlite.Stmt, error) {
	result := "hit"
	stmt, err := c.statements.Get(query, func() (*sqlite.Stmt, error) {
		result = "miss"
		stmt, trailing, err := c.conn.PrepareTransient(query)
		if err != nil {
			return nil, err
		}
		if stmt == nil {
			return nil, errors.New(errors.ErrorTypeValidation, "empty statement")
		}
		if trailing > 0 && strings.TrimSpace(query[len(query)-trailing:]) != "" {
			_ = stmt.Finalize()
			return nil, errors.New(errors.ErrorTypeValidation, "multiple statements are not supported")
		}
		c.logger.Debug("prepared statement", zap.String("sql", query))
		return stmt, nil
	})
	metrics.StatementCache.WithLabelValues(result).Inc()
	return stmt, err
}

func (c *Connection) finalize(stmt *sqlite.Stmt) {
	if err := stmt.Finalize(); err != nil {
		c.logger.Warn("failed to finalize statement", zap.Error(err))
	}
}

// fail classifies err. Errors that leave the handle unusable mark the
// connection broken so the pool discards it.
func (c *Connection) fail(ctx context.Context, err error, query string) error {
	if errors.IsType(err, errors.ErrorTypeValidation) {
		return err
	}
	code := sqlite.ErrCode(err)
	switch code.ToPrimary() {
	case sqlite.ResultInterrupt:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	case sqlite.ResultCorrupt, sqlite.ResultNotADB, sqlite.ResultIOErr, sqlite.ResultCantOpen:
		if c.broken.CompareAndSwap(false, true) {
			c.logger.Warn("connection marked broken", zap.Error(err))
		}
	}
	return errors.Wrap(err, errors.ErrorTypeQuery, "statement failed").
		WithDetail("sql", query).
		WithDetail("code", code.String())
}

// close finalizes every cached statement. The handle itself is released by
// the engine.
func (c *Connection) close() {
	c.statements.EvictAll()
}

func bind(stmt *sqlite.Stmt, args []any) error {
	if n := stmt.BindParamCount(); n != len(args) {
		return errors.Newf(errors.ErrorTypeValidation, "statement expects %d arguments, got %d", n, len(args))
	}
	for i, arg := range args {
		param := i + 1
		switch v := arg.(type) {
		case nil:
			stmt.BindNull(param)
		case int:
			stmt.BindInt64(param, int64(v))
		case int8:
			stmt.BindInt64(param, int64(v))
		case int16:
			stmt.BindInt64(param, int64(v))
		case int32:
			stmt.BindInt64(param, int64(v))
		case int64:
			stmt.BindInt64(param, v)
		case uint8:
			stmt.BindInt64(param, int64(v))
		case uint16:
			stmt.BindInt64(param, int64(v))
		case uint32:
			stmt.BindInt64(param, int64(v))
		case float32:
			stmt.BindFloat(param, float64(v))
		case float64:
			stmt.BindFloat(param, v)
		case bool:
			stmt.BindBool(param, v)
		case string:
			stmt.BindText(param, v)
		case []byte:
			stmt.BindBytes(param, v)
		case time.Time:
			stmt.BindText(param, v.UTC().Format(time.RFC3339Nano))
		default:
			return errors.Newf(errors.ErrorTypeValidation, "unsupported argument type %T", arg).
				WithDetail("position", param)
		}
	}
	return nil
}

func scanRow(stmt *sqlite.Stmt, columns int) []any {
	values := make([]any, columns)
	for i := range values {
		switch stmt.ColumnType(i) {
		case sqlite.TypeInteger:
			values[i] = stmt.ColumnInt64(i)
		case sqlite.TypeFloat:
			values[i] = stmt.ColumnFloat(i)
		case sqlite.TypeText:
			values[i] = stmt.ColumnText(i)
		case sqlite.TypeBlob:
			buf := make([]byte, stmt.ColumnLen(i))
			stmt.ColumnBytes(i, buf)
			values[i] = buf
		default:
			values[i] = nil
		}
	}
	return values
}

var _ pool.PooledObject[string] = (*Connection)(nil)
