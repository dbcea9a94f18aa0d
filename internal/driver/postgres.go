package driver

import (
	_ "github.com/lib/pq"
)

// NewPostgresDriver opens a Postgres pool through database/sql and lib/pq.
// Use NewPgxDriver for the native pgx pool.
func NewPostgresDriver(dsn string, maxConn int) (*SQLDriver, error) {
	return newSQLDriver("postgres", "postgres", dsn, Dollar, maxConn)
}
