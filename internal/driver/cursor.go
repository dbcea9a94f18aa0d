package driver

import (
	"fmt"
)

// Scanner is the part of a row a mapper can see.
type Scanner interface {
	Scan(dest ...any) error
}

// RowMapper decodes the current row into a record.
type RowMapper[R any] func(s Scanner) (R, error)

// SQLCursor turns a RowStreamer into a stream.Cursor.
// A mapper failure only spoils the current row; iteration goes on.
type SQLCursor[R any] struct {
	rows   RowStreamer
	mapper RowMapper[R]
}

func NewSQLCursor[R any](rows RowStreamer, mapper RowMapper[R]) *SQLCursor[R] {
	return &SQLCursor[R]{rows: rows, mapper: mapper}
}

func (c *SQLCursor[R]) Next() bool {
	return c.rows.Next()
}

func (c *SQLCursor[R]) Record() (R, error) {
	return c.mapper(c.rows)
}

func (c *SQLCursor[R]) Err() error {
	return c.rows.Err()
}

func (c *SQLCursor[R]) Close() error {
	return c.rows.Close()
}

// Values scans a row of unknown shape. Byte slices are turned into strings,
// which is what every column type other than BLOB really holds.
func Values(ncols int) RowMapper[[]any] {
	return func(s Scanner) ([]any, error) {
		values := make([]any, ncols)
		scanArgs := make([]any, ncols)
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := s.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		return values, nil
	}
}

// Collect reads every row through mapper. It is the buffered counterpart of a stream.
func Collect[R any](rows RowStreamer, mapper RowMapper[R]) ([]R, error) {
	defer rows.Close()

	out := make([]R, 0)
	for rows.Next() {
		rec, err := mapper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
