package queries

import (
	"bytes"
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"query-streamer/internal/driver"
	"query-streamer/internal/exporter"
	"query-streamer/internal/stream"
)

// DocDescriptor names the collection window a document stream reads.
type DocDescriptor struct {
	Database   string
	Collection string
	Filter     bson.D
	Skip       int64
	Limit      int64
}

// DocQuery streams documents of a collection, ordered by _id, as a JSON array
// of relaxed Extended JSON objects.
type DocQuery struct {
	exporter.ArrayFraming
	Database   string
	Collection string
	Page       Page
}

func (q *DocQuery) Descriptor() DocDescriptor {
	return DocDescriptor{
		Database:   q.Database,
		Collection: q.Collection,
		Filter:     bson.D{},
		Skip:       q.Page.Offset,
		Limit:      q.Page.Limit,
	}
}

// Open runs the find. A zero limit selects no documents, as LIMIT 0 does for
// the SQL datasets, so the collection is not queried at all.
func (q *DocQuery) Open(ctx context.Context, sess mongo.Session, d *DocDescriptor) (stream.Cursor[bson.Raw], error) {
	if d.Limit == 0 {
		return emptyCursor[bson.Raw]{}, nil
	}
	cur, err := driver.Find(ctx, sess, d.Database, d.Collection, d.Filter, d.Skip, d.Limit)
	if err != nil {
		return nil, fmt.Errorf("find in %s.%s: %w", d.Database, d.Collection, err)
	}
	return cur, nil
}

func (q *DocQuery) WriteRecord(doc bson.Raw, buf *bytes.Buffer) error {
	return WriteExtJSON(buf, doc)
}

// WriteExtJSON appends doc as relaxed Extended JSON. Nothing is written on error.
func WriteExtJSON(buf *bytes.Buffer, doc bson.Raw) error {
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
