package exporter

import (
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pdfRowHeight = 7.0
	pdfEllipsis  = "..."
)

// PDFEncoder is the RowEncoder for PDF tables: landscape A4, one cell per value,
// the header repeated on every page. Values that do not fit their column are cut.
//
// fpdf builds the whole document before Output, so PDF exports use memory in
// proportion to their size.
type PDFEncoder struct {
	pdf      *fpdf.Fpdf
	w        io.Writer
	tr       func(string) string
	columns  []string
	colWidth float64
}

func NewPDFEncoder(w io.Writer) *PDFEncoder {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 9)
	return &PDFEncoder{
		pdf: pdf,
		w:   w,
		// Core fonts are cp1252.
		tr: pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

func (e *PDFEncoder) WriteHeader(columns []string) error {
	e.columns = columns
	pageWidth, _ := e.pdf.GetPageSize()
	left, _, right, _ := e.pdf.GetMargins()
	e.colWidth = pageWidth - left - right
	if len(columns) > 0 {
		e.colWidth /= float64(len(columns))
	}

	e.pdf.SetHeaderFunc(e.drawHeader)
	e.pdf.AddPage()
	return e.pdf.Error()
}

func (e *PDFEncoder) drawHeader() {
	e.pdf.SetFont("Arial", "B", 9)
	for _, col := range e.columns {
		e.pdf.CellFormat(e.colWidth, pdfRowHeight, e.fit(col), "1", 0, "C", false, 0, "")
	}
	e.pdf.Ln(-1)
	e.pdf.SetFont("Arial", "", 9)
}

func (e *PDFEncoder) WriteRow(values []any) error {
	for _, v := range values {
		// The formula quote only matters to spreadsheets.
		s := strings.TrimPrefix(CSVString(v), "'")
		e.pdf.CellFormat(e.colWidth, pdfRowHeight, e.fit(s), "1", 0, "L", false, 0, "")
	}
	e.pdf.Ln(-1)
	return e.pdf.Error()
}

// fit translates s to the font's code page and cuts it to the column width.
func (e *PDFEncoder) fit(s string) string {
	s = e.tr(s)
	width := e.colWidth - 2*e.pdf.GetCellMargin()
	if e.pdf.GetStringWidth(s) <= width {
		return s
	}
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if e.pdf.GetStringWidth(s[:mid]+pdfEllipsis) <= width {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return s[:lo] + pdfEllipsis
}

func (e *PDFEncoder) Flush() error {
	if e.pdf.PageCount() == 0 {
		e.pdf.AddPage()
	}
	return e.pdf.Output(e.w)
}

func (e *PDFEncoder) Close() error { return nil }
