package queries

import (
	"bytes"
	"context"
	"errors"
	"strconv"

	"github.com/goccy/go-json"

	"query-streamer/internal/driver"
	"query-streamer/internal/exporter"
	"query-streamer/internal/stream"
)

// ErrInvalidDocument is returned for a junk row whose jsn column is not valid JSON.
var ErrInvalidDocument = errors.New("jsn column is not valid JSON")

// Junk is one row of the junk table: an id and a stored JSON document.
type Junk struct {
	ID  int64           `json:"id"`
	Jsn json.RawMessage `json:"jsn"`
}

const junkSelect = "SELECT id, jsn FROM junk ORDER BY id"

// ScanJunk maps a row of junkSelect.
func ScanJunk(s driver.Scanner) (Junk, error) {
	var j Junk
	var doc []byte
	if err := s.Scan(&j.ID, &doc); err != nil {
		return j, err
	}
	j.Jsn = json.RawMessage(doc)
	return j, nil
}

// JunkQuery streams a page of junk rows as a JSON array.
type JunkQuery struct {
	exporter.ArrayFraming
	Page    Page
	Dialect driver.Dialect
}

func (q *JunkQuery) Descriptor() SQLDescriptor {
	return paged(q.Dialect, junkSelect, q.Page)
}

func (q *JunkQuery) Open(ctx context.Context, conn driver.Conn, d *SQLDescriptor) (stream.Cursor[Junk], error) {
	rows, err := conn.Query(ctx, d.SQL, d.Args...)
	return openRows(rows, err, ScanJunk)
}

func (q *JunkQuery) WriteRecord(j Junk, buf *bytes.Buffer) error {
	if !json.Valid(j.Jsn) {
		return ErrInvalidDocument
	}
	return exporter.WriteJSON(buf, j)
}

// JunkByIDQuery streams junk documents as one JSON object keyed by id.
type JunkByIDQuery struct {
	exporter.ObjectFraming
	Page    Page
	Dialect driver.Dialect
}

func (q *JunkByIDQuery) Descriptor() SQLDescriptor {
	return paged(q.Dialect, junkSelect, q.Page)
}

func (q *JunkByIDQuery) Open(ctx context.Context, conn driver.Conn, d *SQLDescriptor) (stream.Cursor[Junk], error) {
	rows, err := conn.Query(ctx, d.SQL, d.Args...)
	return openRows(rows, err, ScanJunk)
}

func (q *JunkByIDQuery) WriteRecord(j Junk, buf *bytes.Buffer) error {
	if !json.Valid(j.Jsn) {
		return ErrInvalidDocument
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, j.Jsn); err != nil {
		return err
	}
	buf.WriteByte('"')
	buf.WriteString(strconv.FormatInt(j.ID, 10))
	buf.WriteString(`":`)
	buf.Write(compact.Bytes())
	return nil
}
