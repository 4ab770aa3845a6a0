// Package importer turns an uploaded spreadsheet into student field-sets
// ready for bulk creation.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"attendtrack/internal/model"
)

// ErrBadWorkbook signals a file that cannot be read as a single-sheet
// spreadsheet with the expected columns.
var ErrBadWorkbook = errors.New("unreadable student workbook")

// RowError reports why one spreadsheet row was skipped. Row numbers are
// 1-based as shown in spreadsheet software.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// columnAliases maps normalized header names to canonical columns.
var columnAliases = map[string]string{
	"admission no":     "admission_no",
	"admission number": "admission_no",
	"admission_no":     "admission_no",
	"name":             "name",
	"student name":     "name",
	"class":            "class",
	"class name":       "class",
	"section":          "section",
	"roll":             "roll",
	"roll no":          "roll",
	"roll number":      "roll",
	"email":            "email",
	"contact":          "contact",
	"parent contact":   "parent_contact",
	"parent_contact":   "parent_contact",
}

type studentRow struct {
	AdmissionNo   string `validate:"required"`
	Name          string `validate:"required"`
	ClassName     string `validate:"required"`
	Section       string `validate:"required"`
	Roll          string `validate:"required"`
	Email         string `validate:"omitempty,email"`
	Contact       string
	ParentContact string
}

// ParseStudents reads an xlsx upload and returns the schema-valid
// students in sheet order, plus a skip reason for every rejected row.
func ParseStudents(r io.Reader) ([]model.Student, []RowError, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadWorkbook, err)
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, nil, fmt.Errorf("%w: no worksheet found", ErrBadWorkbook)
	}
	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadWorkbook, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: worksheet is empty", ErrBadWorkbook)
	}

	columns := make(map[string]int)
	for idx, h := range rows[0] {
		if canonical, ok := columnAliases[normalizeHeader(h)]; ok {
			columns[canonical] = idx
		}
	}
	for _, required := range []string{"admission_no", "name", "class", "section", "roll"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("%w: missing %q column", ErrBadWorkbook, required)
		}
	}

	validate := validator.New()
	var students []model.Student
	var skipped []RowError

	for i, row := range rows[1:] {
		rowNo := i + 2
		parsed := studentRow{
			AdmissionNo:   cellValue(row, columns["admission_no"]),
			Name:          cellValue(row, columns["name"]),
			ClassName:     cellValue(row, columns["class"]),
			Section:       cellValue(row, columns["section"]),
			Roll:          cellValue(row, columns["roll"]),
			Email:         cellValue(row, columnOrMissing(columns, "email")),
			Contact:       cellValue(row, columnOrMissing(columns, "contact")),
			ParentContact: cellValue(row, columnOrMissing(columns, "parent_contact")),
		}

		if err := validate.Struct(parsed); err != nil {
			skipped = append(skipped, RowError{Row: rowNo, Reason: err.Error()})
			continue
		}
		roll, err := strconv.Atoi(parsed.Roll)
		if err != nil {
			skipped = append(skipped, RowError{Row: rowNo, Reason: "roll number must be numeric"})
			continue
		}

		students = append(students, model.Student{
			AdmissionNo:   parsed.AdmissionNo,
			Name:          parsed.Name,
			ClassName:     parsed.ClassName,
			Section:       parsed.Section,
			RollNo:        roll,
			Email:         parsed.Email,
			Contact:       parsed.Contact,
			ParentContact: parsed.ParentContact,
		})
	}
	return students, skipped, nil
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func columnOrMissing(columns map[string]int, name string) int {
	if idx, ok := columns[name]; ok {
		return idx
	}
	return -1
}
