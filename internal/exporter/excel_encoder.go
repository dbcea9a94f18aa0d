package exporter

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// MaxExcelRows is the sheet row limit of the xlsx format, header included.
const MaxExcelRows = 1048576

var ErrExcelRowLimit = errors.New("excel row limit exceeded (1,048,576 rows)")

// ExcelEncoder is the RowEncoder for .xlsx files. Rows go through an
// excelize.StreamWriter, which keeps them in a temp file rather than in the
// workbook model, so large exports stay out of memory until Flush writes the zip.
type ExcelEncoder struct {
	f         *excelize.File
	sw        *excelize.StreamWriter
	w         io.Writer
	rowIdx    int
	dateStyle int
	boldStyle int
}

const excelSheet = "Sheet1"

func NewExcelEncoder(w io.Writer) (*ExcelEncoder, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(excelSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create stream writer: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		f.Close()
		return nil, err
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ExcelEncoder{
		f:         f,
		sw:        sw,
		w:         w,
		rowIdx:    1,
		dateStyle: dateStyle,
		boldStyle: boldStyle,
	}, nil
}

func (e *ExcelEncoder) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = col
	}
	return e.setRow(row, excelize.RowOpts{StyleID: e.boldStyle})
}

func (e *ExcelEncoder) WriteRow(values []any) error {
	if e.rowIdx > MaxExcelRows {
		return ErrExcelRowLimit
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = e.cellValue(v)
	}
	return e.setRow(row)
}

// cellValue keeps numbers, booleans and times native so the sheet can compute with them.
// Text is protected against formula injection like CSV fields.
func (e *ExcelEncoder) cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return escapeFormula(string(val))
	case string:
		return escapeFormula(val)
	case time.Time:
		return excelize.Cell{StyleID: e.dateStyle, Value: val}
	case int64, int32, int16, int8, int, uint64, uint32, uint16, uint8, float64, float32, bool:
		return val
	}
	return CSVString(v)
}

func (e *ExcelEncoder) setRow(row []any, opts ...excelize.RowOpts) error {
	cell, err := excelize.CoordinatesToCellName(1, e.rowIdx)
	if err != nil {
		return err
	}
	if err := e.sw.SetRow(cell, row, opts...); err != nil {
		return err
	}
	e.rowIdx++
	return nil
}

func (e *ExcelEncoder) Flush() error {
	if err := e.sw.Flush(); err != nil {
		return err
	}
	return e.f.Write(e.w)
}

func (e *ExcelEncoder) Close() error {
	return e.f.Close()
}
