package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxDriver is a native Postgres pool. pgxpool enforces MaxConns itself,
// so no extra admission semaphore is needed.
type PgxDriver struct {
	pool *pgxpool.Pool
}

// NewPgxDriver parses dsn and creates the pool. Connections are established lazily.
func NewPgxDriver(dsn string, maxConn int) (*PgxDriver, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if maxConn > 0 {
		config.MaxConns = int32(maxConn)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &PgxDriver{pool: pool}, nil
}

func (d *PgxDriver) Name() string {
	return "pgx"
}

func (d *PgxDriver) Dialect() Dialect {
	return Dollar
}

func (d *PgxDriver) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *PgxDriver) Query(ctx context.Context, query string, args ...any) (RowStreamer, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (d *PgxDriver) Acquire(ctx context.Context) (Conn, error) {
	c, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire pgx connection: %w", err)
	}
	return &pgxConn{c: c}, nil
}

func (d *PgxDriver) Release(conn Conn) {
	c, ok := conn.(*pgxConn)
	if !ok {
		slog.Error("foreign connection released", "driver", "pgx")
		return
	}
	c.c.Release()
}

func (d *PgxDriver) Close() error {
	d.pool.Close()
	return nil
}

type pgxConn struct {
	c *pgxpool.Conn
}

func (c *pgxConn) Query(ctx context.Context, query string, args ...any) (RowStreamer, error) {
	rows, err := c.c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

// pgxRows adapts pgx.Rows to RowStreamer.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

func (r *pgxRows) Next() bool {
	return r.rows.Next()
}

func (r *pgxRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *pgxRows) Err() error {
	return r.rows.Err()
}

func (r *pgxRows) Close() error {
	r.rows.Close()
	return nil
}
