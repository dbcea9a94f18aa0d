package stream

import (
	"context"
	"fmt"
	"sync"
)

// Binding owns a pooled connection, the query descriptor and the cursor opened over both.
// The cursor borrows from the other two, so all three live and die together:
// they are built in that order and torn down in reverse by Close.
//
// Nothing outside the binding sees the connection or the descriptor. Records are read
// from the channel returned by Records, which a fetch goroutine owned by the binding
// fills from the cursor. The channel is bounded; while it is full the cursor is not
// advanced, which pushes back on the database driver.
type Binding[C, D, R any] struct {
	pool   Pool[C]
	conn   C
	desc   *D
	cursor Cursor[R]

	items  chan Item[R]
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Bind builds the descriptor from q, acquires a connection from pool and opens the cursor.
// Any failure is reported as ErrSourceUnavailable and leaves nothing acquired.
// backlog is the number of records fetched ahead of the consumer.
func Bind[C, D, R any](ctx context.Context, pool Pool[C], q Query[C, D, R], backlog int) (*Binding[C, D, R], error) {
	if backlog < 1 {
		backlog = 1
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrSourceUnavailable, err)
	}

	desc := new(D)
	*desc = q.Descriptor()

	fetchCtx, cancel := context.WithCancel(ctx)
	cursor, err := q.Open(fetchCtx, conn, desc)
	if err != nil {
		cancel()
		pool.Release(conn)
		return nil, fmt.Errorf("%w: open cursor: %w", ErrSourceUnavailable, err)
	}

	b := &Binding[C, D, R]{
		pool:   pool,
		conn:   conn,
		desc:   desc,
		cursor: cursor,
		items:  make(chan Item[R], backlog),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.fetch(fetchCtx)
	return b, nil
}

// Records returns the channel records arrive on. The channel is closed when the cursor is exhausted.
func (b *Binding[C, D, R]) Records() <-chan Item[R] {
	return b.items
}

func (b *Binding[C, D, R]) fetch(ctx context.Context) {
	defer close(b.done)
	defer close(b.items)

	for b.cursor.Next() {
		rec, err := b.cursor.Record()
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrRowFetch, err)
		}
		select {
		case b.items <- Item[R]{Record: rec, Err: err}:
		case <-ctx.Done():
			return
		}
	}

	if err := b.cursor.Err(); err != nil && ctx.Err() == nil {
		select {
		case b.items <- Item[R]{Err: fmt.Errorf("%w: %w", ErrRowFetch, err)}:
		case <-ctx.Done():
		}
	}
}

// Close stops the fetch goroutine, closes the cursor and returns the connection to the pool.
// It is safe to call more than once and from any emission state; only the first call has an effect.
func (b *Binding[C, D, R]) Close() error {
	b.once.Do(func() {
		b.cancel()
		<-b.done
		if err := b.cursor.Close(); err != nil {
			b.err = fmt.Errorf("close cursor: %w", err)
		}
		b.desc = nil
		b.pool.Release(b.conn)
	})
	return b.err
}
