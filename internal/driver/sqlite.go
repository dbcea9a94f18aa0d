package driver

import (
	_ "modernc.org/sqlite"
)

// NewSQLiteDriver opens a SQLite database file. Used for local development and tests.
func NewSQLiteDriver(path string, maxConn int) (*SQLDriver, error) {
	return newSQLDriver("sqlite", "sqlite", path, Question, maxConn)
}
