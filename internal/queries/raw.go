package queries

import (
	"bytes"
	"context"
	"fmt"

	"query-streamer/internal/driver"
	"query-streamer/internal/exporter"
	"query-streamer/internal/stream"
)

// RawParams is the body of an ad-hoc query request.
type RawParams struct {
	Query  string `json:"query"`
	Format string `json:"format"`
}

// Row is a result row of unknown shape. Columns is shared by every row of a stream.
type Row struct {
	Columns []string
	Values  []any
}

// RawQuery streams the result of a validated SELECT as a JSON array of
// objects or as CSV with a header line.
type RawQuery struct {
	SQL    string
	Args   []any
	Format exporter.Format

	columns *[]string
	csv     exporter.CSVFraming
}

func (q *RawQuery) Descriptor() SQLDescriptor {
	return SQLDescriptor{SQL: q.SQL, Args: q.Args}
}

// Columns returns the result columns once the cursor is open.
func (q *RawQuery) Columns() []string {
	if q.columns == nil {
		return nil
	}
	return *q.columns
}

// Open runs the statement and records the result columns in d.
func (q *RawQuery) Open(ctx context.Context, conn driver.Conn, d *SQLDescriptor) (stream.Cursor[Row], error) {
	rows, err := conn.Query(ctx, d.SQL, d.Args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	d.Columns = cols
	q.columns = &d.Columns
	q.csv = exporter.CSVFraming{Columns: q.columns}

	values := driver.Values(len(cols))
	return driver.NewSQLCursor(rows, func(s driver.Scanner) (Row, error) {
		v, err := values(s)
		return Row{Columns: d.Columns, Values: v}, err
	}), nil
}

func (q *RawQuery) WriteRecord(r Row, buf *bytes.Buffer) error {
	if q.Format == exporter.FormatCSV {
		return exporter.WriteCSVRow(buf, r.Values)
	}
	return exporter.WriteRowObject(buf, r.Columns, r.Values)
}

func (q *RawQuery) WritePrefix(buf *bytes.Buffer) {
	if q.Format == exporter.FormatCSV {
		q.csv.WritePrefix(buf)
		return
	}
	exporter.ArrayFraming{}.WritePrefix(buf)
}

func (q *RawQuery) WriteSeparator(buf *bytes.Buffer) {
	if q.Format == exporter.FormatCSV {
		return
	}
	exporter.ArrayFraming{}.WriteSeparator(buf)
}

func (q *RawQuery) WriteSuffix(buf *bytes.Buffer) {
	if q.Format == exporter.FormatCSV {
		return
	}
	exporter.ArrayFraming{}.WriteSuffix(buf)
}

// WriteError keeps sentinel errors in the document's own syntax.
func (q *RawQuery) WriteError(err error, buf *bytes.Buffer) {
	if q.Format == exporter.FormatCSV {
		q.csv.WriteError(err, buf)
		return
	}
	_ = exporter.WriteJSON(buf, map[string]string{"error": err.Error()})
}
