package stream

import (
	"bytes"
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable means the connection could not be acquired or the cursor could not be opened.
	// It is the only error that reaches the client as a failed response.
	ErrSourceUnavailable = errors.New("record source unavailable")
	// ErrRowFetch wraps a failure of the cursor to produce one row.
	ErrRowFetch = errors.New("row fetch failed")
	// ErrSerialization wraps a failure to encode one record.
	ErrSerialization = errors.New("record serialization failed")
	// ErrProtocolMisuse is logged when a stream is polled after it ended.
	ErrProtocolMisuse = errors.New("stream polled after completion")
)

// Pool hands out the connections a cursor borrows from.
// A connection acquired by a stream is released exactly once, when the stream is closed.
type Pool[C any] interface {
	Acquire(ctx context.Context) (C, error)
	Release(conn C)
}

// Cursor is a live handle over query results.
// Next blocks until a row is available or the results are exhausted.
type Cursor[R any] interface {
	// Next advances to the next row. It returns false at the end of the results or on a fatal error.
	Next() bool
	// Record decodes the current row. An error only affects this row.
	Record() (R, error)
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases the cursor. The connection it was opened on stays with the caller.
	Close() error
}

// Framer writes records and the bytes that join them into one document.
type Framer[R any] interface {
	// WriteRecord appends one serialized record to buf.
	WriteRecord(rec R, buf *bytes.Buffer) error
	// WritePrefix opens the document, e.g. '['.
	WritePrefix(buf *bytes.Buffer)
	// WriteSeparator goes between two records, e.g. ','.
	WriteSeparator(buf *bytes.Buffer)
	// WriteSuffix closes the document, e.g. ']'.
	WriteSuffix(buf *bytes.Buffer)
}

// Query describes one streaming request: the parameters it was built from,
// how to produce the query descriptor and how to open a cursor over it.
//
// The descriptor is owned by the stream. Open receives a pointer to the stream's copy,
// which stays valid and unmoved until the cursor is closed.
type Query[C, D, R any] interface {
	Framer[R]
	Descriptor() D
	Open(ctx context.Context, conn C, desc *D) (Cursor[R], error)
}

// ErrorWriter is implemented by framers that encode in-band error elements themselves.
// It is only used with PolicySentinel.
type ErrorWriter interface {
	WriteError(err error, buf *bytes.Buffer)
}

// Item is one result pulled from a cursor: a record, or the error that replaced it.
type Item[R any] struct {
	Record R
	Err    error
}

// Chunks is the pull side a transport drives.
// Next returns io.EOF once the document is complete.
type Chunks interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}
