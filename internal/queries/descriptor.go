// Package queries holds the per-endpoint query definitions streams are built from.
package queries

import (
	"errors"
	"fmt"

	"query-streamer/internal/driver"
	"query-streamer/internal/stream"
)

// ErrInvalidParams is returned for a negative offset or limit.
var ErrInvalidParams = errors.New("offset and limit must not be negative")

// SQLDescriptor is the owned part of a SQL stream: the statement, its bound
// arguments and, once the cursor is open, the result columns.
type SQLDescriptor struct {
	SQL     string
	Args    []any
	Columns []string
}

// Page selects a window of rows.
type Page struct {
	Offset int64 `json:"offset"`
	Limit  int64 `json:"limit"`
}

// Validate rejects negative bounds.
func (p Page) Validate() error {
	if p.Offset < 0 || p.Limit < 0 {
		return fmt.Errorf("%w: offset=%d limit=%d", ErrInvalidParams, p.Offset, p.Limit)
	}
	return nil
}

// paged builds "<base> LIMIT <p1> OFFSET <p2>" in the dialect's placeholder style.
func paged(d driver.Dialect, base string, p Page) SQLDescriptor {
	return SQLDescriptor{
		SQL:  fmt.Sprintf("%s LIMIT %s OFFSET %s", base, d.Placeholder(1), d.Placeholder(2)),
		Args: []any{p.Limit, p.Offset},
	}
}

func openRows[R any](rows driver.RowStreamer, err error, mapper driver.RowMapper[R]) (stream.Cursor[R], error) {
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	return driver.NewSQLCursor(rows, mapper), nil
}

// emptyCursor has no rows.
type emptyCursor[R any] struct{}

func (emptyCursor[R]) Next() bool { return false }

func (emptyCursor[R]) Record() (R, error) {
	var zero R
	return zero, nil
}

func (emptyCursor[R]) Err() error   { return nil }
func (emptyCursor[R]) Close() error { return nil }
