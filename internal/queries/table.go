package queries

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"query-streamer/internal/driver"
	"query-streamer/internal/exporter"
	"query-streamer/internal/security"
	"query-streamer/internal/stream"
)

// Table reads a SQL dataset as plain rows for the file formats that encode
// rows themselves. It holds the stream's connection until Close.
type Table struct {
	b        *stream.Binding[driver.Conn, SQLDescriptor, Row]
	q        *RawQuery
	policy   stream.ErrorPolicy
	observer stream.Observer
	log      *slog.Logger
}

// Columns returns the result column names, also when there are no rows.
func (t *Table) Columns() []string {
	return t.q.Columns()
}

// Next returns the next row, or io.EOF at the end. Broken rows are skipped
// unless the error policy is abort; a table has no place for an error element.
func (t *Table) Next(ctx context.Context) (Row, error) {
	for {
		select {
		case item, ok := <-t.b.Records():
			if !ok {
				if err := ctx.Err(); err != nil {
					return Row{}, err
				}
				return Row{}, io.EOF
			}
			if item.Err == nil {
				return item.Record, nil
			}
			if t.observer != nil {
				t.observer.Skipped(item.Err)
			}
			if t.policy == stream.PolicyAbort {
				return Row{}, item.Err
			}
			t.log.Warn("row skipped", "error", item.Err)
		case <-ctx.Done():
			return Row{}, ctx.Err()
		}
	}
}

func (t *Table) Close() error {
	return t.b.Close()
}

// Table opens req as rows. Document datasets cannot be read as a table.
func (c *Catalog) Table(ctx context.Context, req Request) (*Table, error) {
	p := Page{Offset: req.Offset, Limit: req.Limit}
	var d SQLDescriptor
	switch req.Dataset {
	case DatasetFilms:
		d = (&FilmQuery{Page: p, Dialect: c.db.Dialect()}).Descriptor()
	case DatasetJunk, DatasetJunkByID:
		d = (&JunkQuery{Page: p, Dialect: c.db.Dialect()}).Descriptor()
	case DatasetQuery:
		if err := security.ValidateQuery(req.Query); err != nil {
			return nil, err
		}
		d = SQLDescriptor{SQL: req.Query}
	case DatasetDocs:
		return nil, fmt.Errorf("%w: dataset %q is JSON only", exporter.ErrUnsupportedFormat, req.Dataset)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, req.Dataset)
	}
	if req.Dataset != DatasetQuery {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	backlog := c.opts.Backlog
	if backlog <= 0 {
		backlog = stream.DefaultOptions().Backlog
	}
	q := &RawQuery{SQL: d.SQL, Args: d.Args, Format: exporter.FormatCSV}
	b, err := stream.Bind[driver.Conn, SQLDescriptor, Row](ctx, c.db, q, backlog)
	if err != nil {
		return nil, err
	}

	log := c.opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Table{b: b, q: q, policy: c.opts.ErrorPolicy, observer: c.opts.Observer, log: log}, nil
}
