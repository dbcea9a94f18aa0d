package stream_test

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/goccy/go-json"

	"query-streamer/internal/stream"
)

var errBadRecord = errors.New("negative id")

type rec struct {
	ID int `json:"id"`
}

// arrayFraming writes records as a JSON array and refuses negative ids.
type arrayFraming struct{}

func (arrayFraming) WriteRecord(r rec, buf *bytes.Buffer) error {
	if r.ID < 0 {
		return errBadRecord
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

func (arrayFraming) WritePrefix(buf *bytes.Buffer)    { buf.WriteByte('[') }
func (arrayFraming) WriteSeparator(buf *bytes.Buffer) { buf.WriteByte(',') }
func (arrayFraming) WriteSuffix(buf *bytes.Buffer)    { buf.WriteByte(']') }

// objectFraming keys records by id and encodes its own error elements.
type objectFraming struct{ arrayFraming }

func (objectFraming) WriteRecord(r rec, buf *bytes.Buffer) error {
	buf.WriteString(strconv.Quote(strconv.Itoa(r.ID)))
	buf.WriteByte(':')
	return arrayFraming{}.WriteRecord(r, buf)
}

func (objectFraming) WritePrefix(buf *bytes.Buffer) { buf.WriteByte('{') }
func (objectFraming) WriteSuffix(buf *bytes.Buffer) { buf.WriteByte('}') }

func (objectFraming) WriteError(err error, buf *bytes.Buffer) {
	buf.WriteString(`"error":`)
	buf.WriteString(strconv.Quote(err.Error()))
}

// chanSource feeds an emitter straight from a channel the test controls.
type chanSource struct {
	ch chan stream.Item[rec]
}

func (s chanSource) Records() <-chan stream.Item[rec] { return s.ch }

// filled returns a closed source holding items, so the emitter never sees it pending.
func filled(items ...stream.Item[rec]) chanSource {
	ch := make(chan stream.Item[rec], len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return chanSource{ch: ch}
}

func records(ids ...int) []stream.Item[rec] {
	items := make([]stream.Item[rec], len(ids))
	for i, id := range ids {
		items[i] = stream.Item[rec]{Record: rec{ID: id}}
	}
	return items
}

type conn struct{ id int64 }

type fakePool struct {
	acquireErr error
	next       atomic.Int64
	acquired   atomic.Int64
	released   atomic.Int64
}

func (p *fakePool) Acquire(ctx context.Context) (*conn, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.acquired.Add(1)
	return &conn{id: p.next.Add(1)}, nil
}

func (p *fakePool) Release(*conn) {
	p.released.Add(1)
}

type descriptor struct {
	sql  string
	args []any
}

// sliceCursor yields ids; when endless it keeps producing until its context is done.
type sliceCursor struct {
	ctx     context.Context
	ids     []int
	endless bool
	rowErr  map[int]error
	err     error
	pos     int
	closed  *atomic.Int64
}

func (c *sliceCursor) Next() bool {
	if c.ctx.Err() != nil {
		return false
	}
	if c.endless {
		c.pos++
		return true
	}
	if c.pos >= len(c.ids) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Record() (rec, error) {
	if c.endless {
		return rec{ID: c.pos}, nil
	}
	id := c.ids[c.pos-1]
	if err := c.rowErr[id]; err != nil {
		return rec{}, err
	}
	return rec{ID: id}, nil
}

func (c *sliceCursor) Err() error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	return c.err
}

func (c *sliceCursor) Close() error {
	c.closed.Add(1)
	return nil
}

// fakeQuery opens a sliceCursor and records the descriptor it was handed.
type fakeQuery struct {
	arrayFraming
	ids     []int
	endless bool
	rowErr  map[int]error
	tailErr error
	openErr error

	opened     *descriptor
	openedConn *conn
	closed     atomic.Int64
}

func (q *fakeQuery) Descriptor() descriptor {
	return descriptor{sql: "SELECT id FROM t LIMIT ? OFFSET ?", args: []any{len(q.ids), 0}}
}

func (q *fakeQuery) Open(ctx context.Context, c *conn, d *descriptor) (stream.Cursor[rec], error) {
	if q.openErr != nil {
		return nil, q.openErr
	}
	q.opened = d
	q.openedConn = c
	return &sliceCursor{
		ctx:     ctx,
		ids:     q.ids,
		endless: q.endless,
		rowErr:  q.rowErr,
		err:     q.tailErr,
		closed:  &q.closed,
	}, nil
}

type countingObserver struct {
	chunks  atomic.Int64
	bytes   atomic.Int64
	skipped atomic.Int64
}

func (o *countingObserver) Chunk(n int) {
	o.chunks.Add(1)
	o.bytes.Add(int64(n))
}

func (o *countingObserver) Skipped(error) { o.skipped.Add(1) }
