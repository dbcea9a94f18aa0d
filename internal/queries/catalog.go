package queries

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"query-streamer/internal/driver"
	"query-streamer/internal/exporter"
	"query-streamer/internal/security"
	"query-streamer/internal/stream"
)

// Dataset names what a stream reads.
type Dataset string

const (
	DatasetFilms    Dataset = "films"
	DatasetJunk     Dataset = "junk"
	DatasetJunkByID Dataset = "junkmap"
	DatasetQuery    Dataset = "query"
	DatasetDocs     Dataset = "docs"
)

var (
	ErrUnknownDataset  = errors.New("unknown dataset")
	ErrDocsUnavailable = errors.New("document store is not configured")
)

// Request describes any stream the catalog can open. Fields that do not
// apply to the dataset are ignored.
type Request struct {
	Dataset    Dataset `json:"dataset"`
	Offset     int64   `json:"offset"`
	Limit      int64   `json:"limit"`
	Query      string  `json:"query,omitempty"`
	Format     string  `json:"format,omitempty"`
	Collection string  `json:"collection,omitempty"`
}

// Validate checks req without touching a database. Format may name any
// export format; documents only export as JSON.
func (req Request) Validate() error {
	format, err := exporter.ParseExportFormat(req.Format)
	if err != nil {
		return err
	}
	switch req.Dataset {
	case DatasetFilms, DatasetJunk, DatasetJunkByID:
	case DatasetDocs:
		if format != exporter.FormatJSON {
			return fmt.Errorf("%w: dataset %q is JSON only", exporter.ErrUnsupportedFormat, req.Dataset)
		}
	case DatasetQuery:
		return security.ValidateQuery(req.Query)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDataset, req.Dataset)
	}
	return Page{Offset: req.Offset, Limit: req.Limit}.Validate()
}

// Catalog opens streams against the configured databases.
type Catalog struct {
	db   driver.Driver
	docs *driver.MongoDriver
	opts stream.Options
}

// NewCatalog wires db and, when non-nil, the document store. opts applies to every stream.
func NewCatalog(db driver.Driver, docs *driver.MongoDriver, opts stream.Options) *Catalog {
	return &Catalog{db: db, docs: docs, opts: opts}
}

// Ping checks every configured database.
func (c *Catalog) Ping(ctx context.Context) error {
	if err := c.db.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", c.db.Name(), err)
	}
	if c.docs != nil {
		if err := c.docs.Ping(ctx); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	return nil
}

// HasDocs reports whether document streams are available.
func (c *Catalog) HasDocs() bool {
	return c.docs != nil
}

func (c *Catalog) Films(ctx context.Context, p Page) (*stream.Stream[Film], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	q := &FilmQuery{Page: p, Dialect: c.db.Dialect()}
	return stream.Open[driver.Conn, SQLDescriptor, Film](ctx, c.db, q, c.opts)
}

func (c *Catalog) Junk(ctx context.Context, p Page) (*stream.Stream[Junk], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	q := &JunkQuery{Page: p, Dialect: c.db.Dialect()}
	return stream.Open[driver.Conn, SQLDescriptor, Junk](ctx, c.db, q, c.opts)
}

func (c *Catalog) JunkByID(ctx context.Context, p Page) (*stream.Stream[Junk], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	q := &JunkByIDQuery{Page: p, Dialect: c.db.Dialect()}
	return stream.Open[driver.Conn, SQLDescriptor, Junk](ctx, c.db, q, c.opts)
}

// Raw validates p and streams the statement's result in the requested format.
func (c *Catalog) Raw(ctx context.Context, p RawParams) (*stream.Stream[Row], exporter.Format, error) {
	format, err := exporter.ParseFormat(p.Format)
	if err != nil {
		return nil, "", err
	}
	if err := security.ValidateQuery(p.Query); err != nil {
		return nil, "", err
	}
	q := &RawQuery{SQL: p.Query, Format: format}
	s, err := stream.Open[driver.Conn, SQLDescriptor, Row](ctx, c.db, q, c.opts)
	return s, format, err
}

// Docs streams a collection of the document store.
func (c *Catalog) Docs(ctx context.Context, collection string, p Page) (*stream.Stream[bson.Raw], error) {
	if c.docs == nil {
		return nil, ErrDocsUnavailable
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	q := &DocQuery{Database: c.docs.Database(), Collection: collection, Page: p}
	return stream.Open[mongo.Session, DocDescriptor, bson.Raw](ctx, c.docs, q, c.opts)
}

// Open opens the stream req describes and returns it with its output format.
func (c *Catalog) Open(ctx context.Context, req Request) (stream.Chunks, exporter.Format, error) {
	p := Page{Offset: req.Offset, Limit: req.Limit}
	switch req.Dataset {
	case DatasetFilms:
		s, err := c.Films(ctx, p)
		return chunks(s, exporter.FormatJSON, err)
	case DatasetJunk:
		s, err := c.Junk(ctx, p)
		return chunks(s, exporter.FormatJSON, err)
	case DatasetJunkByID:
		s, err := c.JunkByID(ctx, p)
		return chunks(s, exporter.FormatJSON, err)
	case DatasetQuery:
		s, format, err := c.Raw(ctx, RawParams{Query: req.Query, Format: req.Format})
		return chunks(s, format, err)
	case DatasetDocs:
		s, err := c.Docs(ctx, req.Collection, p)
		return chunks(s, exporter.FormatJSON, err)
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnknownDataset, req.Dataset)
}

// chunks keeps a nil *Stream from turning into a non-nil interface.
func chunks[R any](s *stream.Stream[R], f exporter.Format, err error) (stream.Chunks, exporter.Format, error) {
	if err != nil {
		return nil, "", err
	}
	return s, f, nil
}

// AllFilms is the buffered counterpart of Films.
func (c *Catalog) AllFilms(ctx context.Context, p Page) ([]Film, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d := (&FilmQuery{Page: p, Dialect: c.db.Dialect()}).Descriptor()
	rows, err := c.db.Query(ctx, d.SQL, d.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnavailable, err)
	}
	return driver.Collect(rows, ScanFilm)
}

// AllJunk is the buffered counterpart of Junk.
func (c *Catalog) AllJunk(ctx context.Context, p Page) ([]Junk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d := (&JunkQuery{Page: p, Dialect: c.db.Dialect()}).Descriptor()
	rows, err := c.db.Query(ctx, d.SQL, d.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnavailable, err)
	}
	return driver.Collect(rows, ScanJunk)
}

// AllJunkOnConn reads the same page as AllJunk on an explicitly acquired connection.
func (c *Catalog) AllJunkOnConn(ctx context.Context, p Page) ([]Junk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	conn, err := c.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnavailable, err)
	}
	defer c.db.Release(conn)

	d := (&JunkQuery{Page: p, Dialect: c.db.Dialect()}).Descriptor()
	rows, err := conn.Query(ctx, d.SQL, d.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stream.ErrSourceUnavailable, err)
	}
	return driver.Collect(rows, ScanJunk)
}
