package driver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"
)

// SQLDriver is a database/sql pool with a fixed admission limit.
// The semaphore makes streams queue for a connection instead of letting
// database/sql open more than the backend accepts.
type SQLDriver struct {
	name    string
	dialect Dialect
	db      *sql.DB
	sem     *semaphore.Weighted
}

func newSQLDriver(name, driverName, dsn string, dialect Dialect, maxConn int) (*SQLDriver, error) {
	if maxConn < 1 {
		maxConn = 1
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxConn)
	return &SQLDriver{
		name:    name,
		dialect: dialect,
		db:      db,
		sem:     semaphore.NewWeighted(int64(maxConn)),
	}, nil
}

func (d *SQLDriver) Name() string {
	return d.name
}

func (d *SQLDriver) Dialect() Dialect {
	return d.dialect
}

// DB exposes the underlying pool for schema setup.
func (d *SQLDriver) DB() *sql.DB {
	return d.db
}

func (d *SQLDriver) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *SQLDriver) Query(ctx context.Context, query string, args ...any) (RowStreamer, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *SQLDriver) Acquire(ctx context.Context) (Conn, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for connection slot: %w", err)
	}
	c, err := d.db.Conn(ctx)
	if err != nil {
		d.sem.Release(1)
		return nil, fmt.Errorf("failed to acquire %s connection: %w", d.name, err)
	}
	return &sqlConn{c: c}, nil
}

func (d *SQLDriver) Release(conn Conn) {
	c, ok := conn.(*sqlConn)
	if !ok {
		slog.Error("foreign connection released", "driver", d.name)
		return
	}
	if err := c.c.Close(); err != nil {
		slog.Warn("connection close failed", "driver", d.name, "error", err)
	}
	d.sem.Release(1)
}

func (d *SQLDriver) Close() error {
	return d.db.Close()
}

type sqlConn struct {
	c *sql.Conn
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (RowStreamer, error) {
	rows, err := c.c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
