package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"studentparent-server-go/models"
)

// ImportStudentsFromExcel reads the first sheet of an xlsx stream and adds one
// student per row. Row 1 is the header; columns A..I are student_no, name,
// gender, age, grade, class_name, phone, email, address. Rows missing
// student_no or name are skipped.
func (s *Store) ImportStudentsFromExcel(ctx context.Context, file io.Reader) (int, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		s.log.WithError(err).Error("Error opening Excel reader")
		return 0, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.log.WithError(err).Warn("Error closing excel file")
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return 0, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return 0, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	var studentsToAdd []models.Student
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		st, ok := studentFromRow(row)
		if !ok {
			s.log.WithField("row", i+1).Warn("Skipping row due to missing student_no or name")
			continue
		}
		studentsToAdd = append(studentsToAdd, st)
	}

	s.log.WithField("count", len(studentsToAdd)).Info("Attempting to add students from Excel file")
	importedCount := 0
	for _, st := range studentsToAdd {
		if err := ctx.Err(); err != nil {
			return importedCount, err
		}
		if _, err := s.InsertStudent(ctx, st); err != nil {
			s.log.WithError(err).WithField("student_no", st.StudentNo).Warn("Error adding student during import")
			continue
		}
		importedCount++
	}

	s.log.WithField("count", importedCount).Info("Successfully imported students")
	return importedCount, nil
}

func studentFromRow(row []string) (models.Student, bool) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	st := models.Student{
		StudentNo: cell(0),
		Name:      cell(1),
		Gender:    parseGender(cell(2)),
		Grade:     cell(4),
		ClassName: cell(5),
		Phone:     cell(6),
		Email:     cell(7),
		Address:   cell(8),
		Status:    1,
	}
	if age, err := strconv.Atoi(cell(3)); err == nil {
		st.Age = age
	}
	if st.StudentNo == "" || st.Name == "" {
		return st, false
	}
	return st, true
}

func parseGender(v string) int {
	switch v {
	case "1", "女", "F", "f":
		return 1
	}
	return 0
}

// ExportTableToExcel writes every row of a query-visible table into an xlsx
// workbook with one sheet named after the table. It returns the row count.
func (s *Store) ExportTableToExcel(ctx context.Context, table string, w io.Writer) (int, error) {
	meta, ok := LookupTable(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}

	quoted := make([]string, len(meta.Columns))
	for i, c := range meta.Columns {
		quoted[i] = `"` + c + `"`
	}
	columns, rows, err := s.QueryRows(ctx,
		`SELECT `+strings.Join(quoted, ", ")+` FROM "`+meta.Name+`" ORDER BY id`)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.WithError(err).Warn("Error closing excel file")
		}
	}()
	if err := f.SetSheetName(f.GetSheetName(0), meta.Name); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(meta.Name, "A1", &header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		values := make([]interface{}, len(row))
		copy(values, row)
		if err := f.SetSheetRow(meta.Name, cellName, &values); err != nil {
			return 0, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(rows), nil
}
