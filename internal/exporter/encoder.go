package exporter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// Format is an output document type.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts the formats a chunked stream can carry: "json" (the default) and "csv".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, s)
}

// ParseExportFormat also accepts the file-only formats "xlsx" (or "excel") and "pdf".
func ParseExportFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return ParseFormat(s)
}

// ContentType is the response media type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/json"
}

// Ext is the file extension used for stored exports.
func (f Format) Ext() string {
	switch f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return string(f)
	}
	return "json"
}

// RowEncoder writes a table of rows into a file format.
// Exports in any format other than JSON go through one.
type RowEncoder interface {
	// WriteHeader writes the column names. It is called once, before any row.
	WriteHeader(columns []string) error

	// WriteRow writes one row of SQL driver values.
	WriteRow(values []any) error

	// Flush completes the document and writes what is still buffered.
	Flush() error

	// Close releases the encoder's resources. It does not flush.
	io.Closer
}

// NewRowEncoder returns the encoder for f writing to w.
func NewRowEncoder(f Format, w io.Writer) (RowEncoder, error) {
	switch f {
	case FormatCSV:
		return NewCSVEncoder(w), nil
	case FormatXLSX:
		return NewExcelEncoder(w)
	case FormatPDF:
		return NewPDFEncoder(w), nil
	}
	return nil, fmt.Errorf("%w: no row encoder for %q", ErrUnsupportedFormat, f)
}

// ArrayFraming joins records into a JSON array. Embed it in a query to get
// the prefix, separator and suffix methods.
type ArrayFraming struct{}

func (ArrayFraming) WritePrefix(buf *bytes.Buffer)    { buf.WriteByte('[') }
func (ArrayFraming) WriteSeparator(buf *bytes.Buffer) { buf.WriteByte(',') }
func (ArrayFraming) WriteSuffix(buf *bytes.Buffer)    { buf.WriteByte(']') }

// ObjectFraming joins "key":value members into a JSON object.
type ObjectFraming struct{}

func (ObjectFraming) WritePrefix(buf *bytes.Buffer)    { buf.WriteByte('{') }
func (ObjectFraming) WriteSeparator(buf *bytes.Buffer) { buf.WriteByte(',') }
func (ObjectFraming) WriteSuffix(buf *bytes.Buffer)    { buf.WriteByte('}') }

// WriteError writes a keyed error member, for the sentinel error policy.
func (ObjectFraming) WriteError(err error, buf *bytes.Buffer) {
	buf.WriteString(`"error":`)
	writeString(buf, err.Error())
}
