package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrorPolicy decides what happens to a record that fails mid-stream.
type ErrorPolicy int

const (
	// PolicySkip logs the failure and drops the record.
	PolicySkip ErrorPolicy = iota
	// PolicyAbort ends the stream with the error. Transports cut the response short.
	PolicyAbort
	// PolicySentinel writes an {"error": ...} element in place of the record and carries on.
	PolicySentinel
)

func (p ErrorPolicy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicySentinel:
		return "sentinel"
	default:
		return "skip"
	}
}

// ParsePolicy maps "skip", "abort" and "sentinel" to a policy.
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	case "sentinel":
		return PolicySentinel, nil
	}
	return PolicySkip, fmt.Errorf("unknown stream error policy %q", s)
}

// Options tune a stream. The zero value is usable.
type Options struct {
	// ChunkSize is the buffered length that triggers a chunk. Defaults to DefaultChunkSize.
	ChunkSize int
	// Backlog is how many records are fetched ahead of the emitter. Defaults to 64.
	Backlog     int
	ErrorPolicy ErrorPolicy
	Logger      *slog.Logger
	Observer    Observer
}

// DefaultOptions returns the options streams use unless configured otherwise.
func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
		Backlog:   64,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Backlog <= 0 {
		o.Backlog = 64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// Stream is an emitter bound to the resources its records come from.
type Stream[R any] struct {
	*Emitter[R]
	closer interface{ Close() error }
}

// Open binds q to a connection from pool and returns a stream ready to emit.
// A non-nil error wraps ErrSourceUnavailable; nothing has been written and nothing is held.
func Open[C, D, R any](ctx context.Context, pool Pool[C], q Query[C, D, R], opts Options) (*Stream[R], error) {
	opts = opts.withDefaults()
	b, err := Bind(ctx, pool, q, opts.Backlog)
	if err != nil {
		return nil, err
	}
	return &Stream[R]{
		Emitter: NewEmitter[R](b, q, opts),
		closer:  b,
	}, nil
}

// Close releases the connection, descriptor and cursor. It may be called in any state, more than once.
func (s *Stream[R]) Close() error {
	return s.closer.Close()
}

// Copy writes every chunk of s to w until the stream ends, then closes s.
// It returns the number of bytes written.
func Copy(ctx context.Context, w io.Writer, s Chunks) (int64, error) {
	defer s.Close()
	var n int64
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		m, err := w.Write(chunk)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
}
