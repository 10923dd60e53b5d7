// Package sqlaccess runs SQL statements through the access executor. Every attempt
// works on a dedicated connection taken from the pool and returned on release.
package sqlaccess

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	access "github.com/JohnPlummer/jp-go-access"
)

// Config holds database connection settings.
type Config struct {
	Driver          string        `koanf:"driver"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// Conn is a dedicated database connection held for one attempt.
type Conn struct {
	conn *sqlx.Conn
}

// Close returns the connection to the pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// DB runs statements with bounded retry.
type DB struct {
	db   *sqlx.DB
	opts []access.Option
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg Config, opts ...access.Option) (*DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, opts...), nil
}

// New wraps an open pool. Options apply to every statement; the SQL classifier is
// used unless opts replace it.
func New(db *sqlx.DB, opts ...access.Option) *DB {
	base := []access.Option{
		access.WithName("sql"),
		access.WithErrorClassifier(Classifier{}),
	}
	return &DB{db: db, opts: append(base, opts...)}
}

// With returns a DB sharing the pool with extra options applied.
//
// Example:
//
//	rows, err := sqlaccess.Stream[Order](ctx, db.With(access.WithBatchSize(500)), query)
func (d *DB) With(opts ...access.Option) *DB {
	return &DB{db: d.db, opts: append(append([]access.Option(nil), d.opts...), opts...)}
}

// Pool returns the underlying pool.
func (d *DB) Pool() *sqlx.DB {
	return d.db
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Acquire implements access.Acquirer.
func (d *DB) Acquire(ctx context.Context, _ access.Request) (*Conn, error) {
	conn, err := d.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// ExecResult reports the effect of a statement.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	exec := access.NewExecutor(d, func(ctx context.Context, c *Conn, req access.Request) (ExecResult, error) {
		res, err := c.conn.ExecContext(ctx, req.Target, req.Params...)
		if err != nil {
			return ExecResult{}, err
		}

		var out ExecResult
		// Drivers without support report an error here; the counts stay zero.
		if n, err := res.RowsAffected(); err == nil {
			out.RowsAffected = n
		}
		if id, err := res.LastInsertId(); err == nil {
			out.LastInsertID = id
		}
		return out, nil
	}, d.opts...)

	result, err := exec.Execute(ctx, request("EXEC", query, args))
	if err != nil {
		return ExecResult{}, err
	}
	return result.Value, nil
}

// QueryOne returns the first row of query, or nil when there is none.
func QueryOne[T any](ctx context.Context, d *DB, query string, args ...any) (*T, error) {
	exec := access.NewExecutor(d, func(ctx context.Context, c *Conn, req access.Request) (*T, error) {
		rows, err := c.conn.QueryxContext(ctx, req.Target, req.Params...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		if !rows.Next() {
			return nil, rows.Err()
		}
		v, err := scanRow[T](rows)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}, d.opts...)

	result, err := exec.Execute(ctx, request("QUERY", query, args))
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// QueryAll returns every row of query.
func QueryAll[T any](ctx context.Context, d *DB, query string, args ...any) ([]T, error) {
	exec := access.NewExecutor(d, func(ctx context.Context, c *Conn, req access.Request) ([]T, error) {
		rows, err := c.conn.QueryxContext(ctx, req.Target, req.Params...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []T
		for rows.Next() {
			v, err := scanRow[T](rows)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, rows.Err()
	}, d.opts...)

	result, err := exec.Execute(ctx, request("QUERY", query, args))
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// Stream runs query and returns its rows in batches. Opening the query is retried;
// reading rows is not. The connection is held until the stream ends.
func Stream[T any](ctx context.Context, d *DB, query string, args ...any) (*access.Stream[T], error) {
	open := func(ctx context.Context, c *Conn, req access.Request) (access.Cursor[T], error) {
		rows, err := c.conn.QueryxContext(ctx, req.Target, req.Params...)
		if err != nil {
			return nil, err
		}
		return &rowsCursor[T]{rows: rows}, nil
	}
	return access.OpenStream(ctx, d, open, request("QUERY", query, args), d.opts...)
}

func request(method, query string, args []any) access.Request {
	return access.Request{Method: method, Target: query, Params: args}
}

type rowsCursor[T any] struct {
	rows *sqlx.Rows
}

func (c *rowsCursor[T]) FetchMany(_ context.Context, n int) ([]T, error) {
	out := make([]T, 0, n)
	for len(out) < n && c.rows.Next() {
		v, err := scanRow[T](c.rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := c.rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rowsCursor[T]) Close() error {
	return c.rows.Close()
}
