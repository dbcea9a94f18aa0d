package exporter_test

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"query-streamer/internal/exporter"
)

func TestParseFormat(t *testing.T) {
	f, err := exporter.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatJSON, f)

	f, err = exporter.ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatCSV, f)
	assert.Equal(t, "text/csv; charset=utf-8", f.ContentType())

	_, err = exporter.ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestWriteRowObject_KeepsColumnOrder(t *testing.T) {
	var buf bytes.Buffer

	err := exporter.WriteRowObject(&buf, []string{"z", "a"}, []any{int64(1), []byte("x"), nil})

	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"x","column_2":null}`, buf.String())
}

func TestWriteRowObject_NothingWrittenOnError(t *testing.T) {
	buf := bytes.NewBufferString("[")

	err := exporter.WriteRowObject(buf, []string{"a"}, []any{make(chan int)})

	assert.Error(t, err)
	assert.Equal(t, "[", buf.String())
}

func TestCSVString(t *testing.T) {
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := map[string]any{
		"NULL":                nil,
		"plain":               "plain",
		"'=SUM(A1)":           "=SUM(A1)",
		"'@cmd":               []byte("@cmd"),
		"-3":                  int64(-3),
		"2.5":                 2.5,
		"1":                   true,
		"2020-01-02 03:04:05": ts,
	}
	for want, in := range cases {
		assert.Equal(t, want, exporter.CSVString(in))
	}
}

// decimal stands in for driver types such as pgtype.Numeric.
type decimal struct{ text string }

func (d decimal) Value() (driver.Value, error) { return d.text, nil }

type label string

func (l label) String() string { return "label:" + string(l) }

func TestCSVString_DriverSpecificTypes(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	cases := []struct {
		in   any
		want string
	}{
		{int16(7), "7"},
		{int8(-2), "-2"},
		{uint32(9), "9"},
		{float32(1.5), "1.5"},
		{[16]byte(id), "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{decimal{"12.50"}, "12.50"},
		{label("x"), "label:x"},
		{map[string]any{"a": 1}, `{"a":1}`},
		{[]any{"b", 2}, `["b",2]`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exporter.CSVString(tc.in), "%T", tc.in)
	}
}

func TestWriteCSVRow_KeepsNarrowNumbers(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, exporter.WriteCSVRow(&buf, []any{int16(3), float32(0.25), nil}))

	assert.Equal(t, "3,0.25,NULL\n", buf.String())
}

func TestCSVFraming(t *testing.T) {
	cols := []string{"id", "name"}
	f := exporter.CSVFraming{Columns: &cols}
	var buf bytes.Buffer

	f.WritePrefix(&buf)
	require.NoError(t, exporter.WriteCSVRow(&buf, []any{int64(1), "a,b"}))
	f.WriteSeparator(&buf)
	f.WriteError(errors.New("boom"), &buf)
	f.WriteSuffix(&buf)

	assert.Equal(t, "id,name\n1,\"a,b\"\n#error,boom\n", buf.String())
}

func TestObjectFraming_WriteError(t *testing.T) {
	var buf bytes.Buffer
	exporter.ObjectFraming{}.WriteError(errors.New(`bad "row"`), &buf)
	assert.Equal(t, `"error":"bad \"row\""`, buf.String())
}

func TestParseExportFormat(t *testing.T) {
	for in, want := range map[string]exporter.Format{
		"":      exporter.FormatJSON,
		"csv":   exporter.FormatCSV,
		"XLSX":  exporter.FormatXLSX,
		"excel": exporter.FormatXLSX,
		"pdf":   exporter.FormatPDF,
	} {
		f, err := exporter.ParseExportFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, f)
	}

	_, err := exporter.ParseExportFormat("docx")
	assert.ErrorIs(t, err, exporter.ErrUnsupportedFormat)

	assert.Equal(t, "application/pdf", exporter.FormatPDF.ContentType())
	assert.Equal(t, "xlsx", exporter.FormatXLSX.Ext())
}

func TestNewRowEncoder_NoJSON(t *testing.T) {
	_, err := exporter.NewRowEncoder(exporter.FormatJSON, &bytes.Buffer{})
	assert.ErrorIs(t, err, exporter.ErrUnsupportedFormat)
}

func encodeRows(t *testing.T, f exporter.Format, columns []string, rows ...[]any) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := exporter.NewRowEncoder(f, &buf)
	require.NoError(t, err)
	defer enc.Close()

	require.NoError(t, enc.WriteHeader(columns))
	for _, r := range rows {
		require.NoError(t, enc.WriteRow(r))
	}
	require.NoError(t, enc.Flush())
	return buf.Bytes()
}

func TestCSVEncoder(t *testing.T) {
	data := encodeRows(t, exporter.FormatCSV, []string{"id", "note"},
		[]any{int64(1), "=cmd"},
		[]any{int16(2), nil},
	)
	assert.Equal(t, "id,note\n1,'=cmd\n2,NULL\n", string(data))
}

func TestExcelEncoder(t *testing.T) {
	data := encodeRows(t, exporter.FormatXLSX, []string{"id", "title", "score", "note"},
		[]any{int64(1), []byte("ACADEMY DINOSAUR"), 2.5, nil},
		[]any{int32(2), "@risky", float32(1), true},
	)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"id", "title", "score", "note"},
		{"1", "ACADEMY DINOSAUR", "2.5", "NULL"},
		{"2", "'@risky", "1", "TRUE"},
	}, rows)
}

func TestExcelEncoder_HeaderOnly(t *testing.T) {
	data := encodeRows(t, exporter.FormatXLSX, []string{"id"})

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id"}}, rows)
}

func TestPDFEncoder(t *testing.T) {
	long := strings.Repeat("x", 500)
	data := encodeRows(t, exporter.FormatPDF, []string{"id", "jsn"},
		[]any{int64(1), long},
		[]any{int64(2), "Café"},
	)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.True(t, bytes.Contains(data, []byte("%%EOF")))
}

func TestPDFEncoder_ManyRowsSpanPages(t *testing.T) {
	rows := make([][]any, 200)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	data := encodeRows(t, exporter.FormatPDF, []string{"id"}, rows...)

	pages := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	assert.Greater(t, pages, 1)
}
