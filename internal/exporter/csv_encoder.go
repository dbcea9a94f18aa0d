package exporter

import (
	"bufio"
	"bytes"
	"database/sql/driver"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// CSVFraming writes a header line as the prefix and one line per record.
// Records end with their own newline, so the separator and suffix are empty.
type CSVFraming struct {
	// Columns is read when the prefix is written, after the cursor has opened.
	Columns *[]string
}

func (f CSVFraming) WritePrefix(buf *bytes.Buffer) {
	if f.Columns == nil {
		return
	}
	_ = WriteCSVRecord(buf, *f.Columns)
}

func (CSVFraming) WriteSeparator(*bytes.Buffer) {}
func (CSVFraming) WriteSuffix(*bytes.Buffer)    {}

// WriteError writes an error line, for the sentinel error policy.
func (CSVFraming) WriteError(err error, buf *bytes.Buffer) {
	_ = WriteCSVRecord(buf, []string{"#error", err.Error()})
}

// CSVEncoder is the RowEncoder for CSV files. Output goes through a 64KB buffer.
type CSVEncoder struct {
	w   *csv.Writer
	buf *bufio.Writer
}

func NewCSVEncoder(w io.Writer) *CSVEncoder {
	buf := bufio.NewWriterSize(w, 64*1024)
	return &CSVEncoder{w: csv.NewWriter(buf), buf: buf}
}

func (e *CSVEncoder) WriteHeader(columns []string) error {
	return e.w.Write(columns)
}

func (e *CSVEncoder) WriteRow(values []any) error {
	record := make([]string, len(values))
	for i, v := range values {
		record[i] = CSVString(v)
	}
	return e.w.Write(record)
}

func (e *CSVEncoder) Flush() error {
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		return err
	}
	return e.buf.Flush()
}

func (e *CSVEncoder) Close() error { return nil }

// WriteCSVRecord appends one CSV line.
func WriteCSVRecord(buf *bytes.Buffer, fields []string) error {
	w := csv.NewWriter(buf)
	if err := w.Write(fields); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// WriteCSVRow converts values with CSVString and appends them as one line.
func WriteCSVRow(buf *bytes.Buffer, values []any) error {
	record := make([]string, len(values))
	for i, v := range values {
		record[i] = CSVString(v)
	}
	return WriteCSVRecord(buf, record)
}

// CSVString converts a SQL driver value to a CSV field.
// Types outside the common scalar set go through driver.Valuer, fmt.Stringer
// or JSON, in that order. Text fields starting with =, +, - or @ are prefixed with a quote so spreadsheets
// do not evaluate them as formulas.
func CSVString(val any) string {
	var s string
	switch v := val.(type) {
	case nil:
		return "NULL"
	case []byte:
		return escapeFormula(string(v))
	case string:
		return escapeFormula(v)
	case time.Time:
		s = v.Format("2006-01-02 15:04:05")
	case int64:
		s = strconv.FormatInt(v, 10)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case int16:
		s = strconv.FormatInt(int64(v), 10)
	case int8:
		s = strconv.FormatInt(int64(v), 10)
	case int:
		s = strconv.Itoa(v)
	case uint64:
		s = strconv.FormatUint(v, 10)
	case uint32:
		s = strconv.FormatUint(uint64(v), 10)
	case uint16:
		s = strconv.FormatUint(uint64(v), 10)
	case uint8:
		s = strconv.FormatUint(uint64(v), 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		if v {
			s = "1"
		} else {
			s = "0"
		}
	case [16]byte:
		s = uuid.UUID(v).String()
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return escapeFormula(fmt.Sprint(val))
		}
		if _, again := dv.(driver.Valuer); again {
			return escapeFormula(fmt.Sprint(dv))
		}
		return CSVString(dv)
	case fmt.Stringer:
		return escapeFormula(v.String())
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return escapeFormula(fmt.Sprint(v))
		}
		return escapeFormula(string(data))
	}
	return s
}

func escapeFormula(s string) string {
	if len(s) > 0 {
		switch s[0] {
		case '=', '+', '-', '@':
			return "'" + s
		}
	}
	return s
}
