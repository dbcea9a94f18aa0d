// Package storage persists finished exports on local disk or in an S3 bucket.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("stored object not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Provider stores export documents under relative keys.
type Provider interface {
	// Create starts writing the object at key. Nothing is visible under key
	// until the returned Writer commits.
	Create(ctx context.Context, key string) (Writer, error)

	// Open opens a committed object. A missing key yields ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns where the object can be fetched from outside the service.
	URL(key string) string
}

// Writer receives an object's bytes. Exactly one of Commit or Abort must be called.
type Writer interface {
	io.Writer
	// Commit finishes the object and waits until it is durable.
	Commit() error
	// Abort discards everything written so far.
	Abort(err error)
}
