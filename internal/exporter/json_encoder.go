package exporter

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// WriteJSON appends the JSON encoding of v. Nothing is written on error.
func WriteJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// WriteRowObject writes one row as a JSON object whose keys follow the column order.
// Columns past the end of columns are named column_<n>.
func WriteRowObject(buf *bytes.Buffer, columns []string, values []any) error {
	var scratch bytes.Buffer
	scratch.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			scratch.WriteByte(',')
		}
		name := "column_" + strconv.Itoa(i)
		if i < len(columns) {
			name = columns[i]
		}
		writeString(&scratch, name)
		scratch.WriteByte(':')

		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if err := WriteJSON(&scratch, v); err != nil {
			return err
		}
	}
	scratch.WriteByte('}')
	buf.Write(scratch.Bytes())
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	data, err := json.Marshal(s)
	if err != nil {
		buf.WriteString(strconv.Quote(s))
		return
	}
	buf.Write(data)
}
