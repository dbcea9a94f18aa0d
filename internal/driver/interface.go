package driver

import (
	"context"
	"fmt"
	"strconv"
)

// Driver abstracts the database connection pool streams draw from.
// Every Driver is a stream.Pool[Conn].
type Driver interface {
	// Name returns the driver name (e.g., "mysql", "postgres").
	Name() string

	// Dialect tells queries how to write bind parameters.
	Dialect() Dialect

	// Ping verifies the connection to the database.
	Ping(ctx context.Context) error

	// Query runs a query on any pooled connection. Used by the buffered endpoints.
	Query(ctx context.Context, query string, args ...any) (RowStreamer, error)

	// Acquire takes a connection out of the pool for the caller's exclusive use.
	// It blocks while the admission limit is reached.
	Acquire(ctx context.Context) (Conn, error)

	// Release gives a connection back. Each acquired connection is released exactly once.
	Release(conn Conn)

	// Close closes the pool.
	Close() error
}

// Conn is a connection held by a single stream.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) (RowStreamer, error)
}

// RowStreamer iterates over query results.
// *sql.Rows satisfies it directly; other drivers are adapted.
type RowStreamer interface {
	// Columns returns the column names. Safe to call after Query returns.
	Columns() ([]string, error)

	// Next advances to the next row. Returns false when there are no more rows or an error occurs.
	Next() bool

	// Scan copies the columns in the current row into the values pointed at by dest.
	Scan(dest ...any) error

	// Err returns the error, if any, that was encountered during iteration.
	Err() error

	// Close closes the streamer and frees resources.
	Close() error
}

// Dialect is the bind parameter style of a database.
type Dialect int

const (
	// Question is MySQL/SQLite style: ?
	Question Dialect = iota
	// Dollar is Postgres style: $1, $2, ...
	Dollar
)

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == Dollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Open returns the driver registered under name.
func Open(name, dsn string, maxConn int) (Driver, error) {
	switch name {
	case "mysql":
		return NewMySQLDriver(dsn, maxConn)
	case "postgres":
		return NewPostgresDriver(dsn, maxConn)
	case "pgx":
		return NewPgxDriver(dsn, maxConn)
	case "sqlite":
		return NewSQLiteDriver(dsn, maxConn)
	}
	return nil, fmt.Errorf("unknown database driver %q", name)
}
