package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
)

// DefaultChunkSize is the buffer length at which a chunk is handed to the transport.
const DefaultChunkSize = 2048

// State is how far an emitter has got through the document.
type State int

const (
	// New: nothing written yet.
	New State = iota
	// Started: the prefix and at least one record are out.
	Started
	// Finished: the suffix is out, the next call reports the end.
	Finished
	// Dead: the end was reported.
	Dead
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Started:
		return "started"
	case Finished:
		return "finished"
	case Dead:
		return "dead"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Source is what an emitter pulls records from. A Binding is a Source.
type Source[R any] interface {
	Records() <-chan Item[R]
}

// Observer receives emission events. Implementations must be cheap and non-blocking.
type Observer interface {
	Chunk(size int)
	Skipped(err error)
}

type nopObserver struct{}

func (nopObserver) Chunk(int)     {}
func (nopObserver) Skipped(error) {}

type pollStatus int

const (
	pending pollStatus = iota
	ready
	exhausted
)

// Emitter packs records from a Source into framed chunks.
// It is driven by one goroutine and holds no locks.
type Emitter[R any] struct {
	src      Source[R]
	framer   Framer[R]
	size     int
	policy   ErrorPolicy
	log      *slog.Logger
	observer Observer

	state   State
	scratch bytes.Buffer
}

// NewEmitter returns an emitter in state New.
func NewEmitter[R any](src Source[R], framer Framer[R], opts Options) *Emitter[R] {
	opts = opts.withDefaults()
	return &Emitter[R]{
		src:      src,
		framer:   framer,
		size:     opts.ChunkSize,
		policy:   opts.ErrorPolicy,
		log:      opts.Logger,
		observer: opts.Observer,
	}
}

// State reports the current emission state.
func (e *Emitter[R]) State() State {
	return e.state
}

// Next returns the next chunk of the document, or io.EOF after the final chunk was returned.
//
// Records are packed into the chunk until it reaches the configured size. When the source has
// nothing ready, whatever is buffered is returned at once; with an empty buffer Next waits for the
// source or for ctx. A record that fails to fetch or serialize is handled according to the error
// policy and never leaves partial bytes in the chunk.
func (e *Emitter[R]) Next(ctx context.Context) ([]byte, error) {
	switch e.state {
	case Finished:
		e.state = Dead
		return nil, io.EOF
	case Dead:
		e.log.Error("stream polled", "state", e.state, "error", ErrProtocolMisuse)
		return nil, io.EOF
	}

	buf := bytes.NewBuffer(make([]byte, 0, e.size*3/2))
	block := false
	for {
		item, status, err := e.receive(ctx, block)
		if err != nil {
			return nil, err
		}
		block = false

		switch status {
		case pending:
			if buf.Len() > 0 {
				return e.yield(buf), nil
			}
			block = true

		case exhausted:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			switch e.state {
			case New, Started:
				if e.state == New {
					e.framer.WritePrefix(buf)
				}
				e.framer.WriteSuffix(buf)
				e.state = Finished
				return e.yield(buf), nil
			default:
				e.log.Error("source exhausted twice", "state", e.state)
				return nil, io.EOF
			}

		case ready:
			if item.Err != nil {
				if err := e.fault(item.Err, buf); err != nil {
					return nil, err
				}
			} else {
				e.scratch.Reset()
				if err := e.framer.WriteRecord(item.Record, &e.scratch); err != nil {
					if err := e.fault(fmt.Errorf("%w: %w", ErrSerialization, err), buf); err != nil {
						return nil, err
					}
				} else {
					e.open(buf)
					buf.Write(e.scratch.Bytes())
				}
			}
			if buf.Len() >= e.size {
				return e.yield(buf), nil
			}
		}
	}
}

func (e *Emitter[R]) receive(ctx context.Context, block bool) (Item[R], pollStatus, error) {
	if block {
		select {
		case item, ok := <-e.src.Records():
			if !ok {
				return item, exhausted, nil
			}
			return item, ready, nil
		case <-ctx.Done():
			return Item[R]{}, pending, ctx.Err()
		}
	}
	select {
	case item, ok := <-e.src.Records():
		if !ok {
			return item, exhausted, nil
		}
		return item, ready, nil
	default:
		return Item[R]{}, pending, nil
	}
}

// open writes whatever must precede the next element.
func (e *Emitter[R]) open(buf *bytes.Buffer) {
	switch e.state {
	case New:
		e.framer.WritePrefix(buf)
		e.state = Started
	case Started:
		e.framer.WriteSeparator(buf)
	default:
		e.log.Error("element written after suffix", "state", e.state)
	}
}

func (e *Emitter[R]) fault(err error, buf *bytes.Buffer) error {
	e.observer.Skipped(err)
	switch e.policy {
	case PolicyAbort:
		e.log.Error("aborting stream", "state", e.state, "error", err)
		return err
	case PolicySentinel:
		e.log.Error("record replaced by error element", "error", err)
		e.open(buf)
		if w, ok := e.framer.(ErrorWriter); ok {
			w.WriteError(err, buf)
		} else {
			writeSentinel(err, buf)
		}
	default:
		e.log.Error("record skipped", "error", err)
	}
	return nil
}

func (e *Emitter[R]) yield(buf *bytes.Buffer) []byte {
	e.observer.Chunk(buf.Len())
	return buf.Bytes()
}

type sentinel struct {
	Error string `json:"error"`
}

func writeSentinel(err error, buf *bytes.Buffer) {
	data, mErr := json.Marshal(sentinel{Error: err.Error()})
	if mErr != nil {
		buf.WriteString(`{"error":"unencodable error"}`)
		return
	}
	buf.Write(data)
}
