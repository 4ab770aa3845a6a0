// Package report materializes aggregated attendance into exportable
// encodings. Builders are stateless per invocation.
package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"attendtrack/internal/attendance"
	"attendtrack/internal/model"
	"attendtrack/internal/store"
)

// ErrInvalidRange rejects structurally malformed report parameters. An
// empty result set is never an error.
var ErrInvalidRange = errors.New("invalid report date range")

// Format selects the output encoding. The empty format returns rows as
// structured data.
type Format string

const (
	FormatJSON Format = ""
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Valid reports whether the format is supported.
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatCSV, FormatXLSX, FormatPDF:
		return true
	default:
		return false
	}
}

// ContentType returns the download content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Params describe one report request. Kind labels the request
// (daily, weekly, monthly, custom) and is carried through to the output
// without changing the computed rows; only the date range does that.
type Params struct {
	Kind      string
	From      string
	To        string
	ClassName string
}

// Row is one student's line in a report.
type Row struct {
	AdmissionNo  string `json:"admission_no"`
	Name         string `json:"name"`
	ClassSection string `json:"class_section"`
	TotalDays    int    `json:"total_days"`
	PresentDays  int    `json:"present_days"`
	AbsentDays   int    `json:"absent_days"`
	Percentage   int    `json:"percentage"`
}

var header = []string{"Admission No", "Name", "Class", "Total Days", "Present Days", "Absent Days", "Percentage"}

// Builder turns aggregator output into report rows and encodings.
type Builder struct {
	store *store.Store
	agg   *attendance.Service
}

// NewBuilder creates a report builder over the store and aggregator.
func NewBuilder(st *store.Store, agg *attendance.Service) *Builder {
	return &Builder{store: st, agg: agg}
}

// Rows computes one row per student in the filtered set, in the store's
// name order. Late days count as present, matching the percentage rule.
func (b *Builder) Rows(p Params) ([]Row, error) {
	from, err := time.Parse(model.DateLayout, p.From)
	if err != nil {
		return nil, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidRange)
	}
	to, err := time.Parse(model.DateLayout, p.To)
	if err != nil {
		return nil, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidRange)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to precedes from", ErrInvalidRange)
	}

	students := b.store.Students(store.StudentFilter{ClassName: p.ClassName})
	rows := make([]Row, 0, len(students))
	for _, st := range students {
		counts := b.agg.CountsInRange(st.ID, p.From, p.To)
		rows = append(rows, Row{
			AdmissionNo:  st.AdmissionNo,
			Name:         st.Name,
			ClassSection: st.ClassName + "-" + st.Section,
			TotalDays:    counts.Total,
			PresentDays:  counts.Present + counts.Late,
			AbsentDays:   counts.Absent,
			Percentage:   int(math.Round(counts.Percentage())),
		})
	}
	return rows, nil
}

// CSV encodes the rows as comma-separated text with standard quoting.
func (b *Builder) CSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		record := []string{
			r.AdmissionNo,
			r.Name,
			r.ClassSection,
			strconv.Itoa(r.TotalDays),
			strconv.Itoa(r.PresentDays),
			strconv.Itoa(r.AbsentDays),
			strconv.Itoa(r.Percentage),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// XLSX encodes the rows as a single-sheet workbook.
func (b *Builder) XLSX(rows []Row) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()
	sheet := file.GetSheetName(file.GetActiveSheetIndex())

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = file.SetCellValue(sheet, cell, h)
	}
	for idx, r := range rows {
		values := []interface{}{
			r.AdmissionNo, r.Name, r.ClassSection,
			r.TotalDays, r.PresentDays, r.AbsentDays, r.Percentage,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, idx+2)
			_ = file.SetCellValue(sheet, cell, v)
		}
	}

	buffer, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// pdfBreakY is the vertical cursor position (mm) past which a new page
// starts, so tabular data is never clipped off the bottom.
const pdfBreakY = 265.0

// PDF encodes the rows as a paginated document with a title block and a
// repeated table header on each page.
func (b *Builder) PDF(rows []Row, p Params) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Attendance Report")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	title := fmt.Sprintf("%s report, %s to %s", p.Kind, p.From, p.To)
	if p.ClassName != "" {
		title += ", class " + p.ClassName
	}
	pdf.Cell(0, 6, title)
	pdf.Ln(10)

	widths := []float64{30, 50, 25, 22, 22, 22, 19}
	writeHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range header {
			pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	writeHeader()

	for _, r := range rows {
		if pdf.GetY() > pdfBreakY {
			pdf.AddPage()
			writeHeader()
		}
		cells := []string{
			r.AdmissionNo, r.Name, r.ClassSection,
			strconv.Itoa(r.TotalDays), strconv.Itoa(r.PresentDays),
			strconv.Itoa(r.AbsentDays), strconv.Itoa(r.Percentage) + "%",
		}
		for i, v := range cells {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename suggests a download name for the format.
func (f Format) Filename(kind string) string {
	if kind == "" {
		kind = "custom"
	}
	ext := string(f)
	if ext == "" {
		ext = "json"
	}
	return fmt.Sprintf("attendance-%s-%s.%s", kind, time.Now().Format(model.DateLayout), ext)
}
