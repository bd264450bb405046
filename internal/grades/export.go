package grades

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet    = "Results"
	categoriesSheet = "Categories"
)

// WriteXLSX writes the table as a workbook with a results sheet (one column
// per exercise plus the total) and a per-category sums sheet.
func (t *ResultTable) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(categoriesSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	header := []any{"Student ID", "Name"}
	for _, ex := range t.Exercises {
		header = append(header, ex.Name)
	}
	header = append(header, "Total")
	if err := setRow(f, resultsSheet, 1, header); err != nil {
		return err
	}

	for i, r := range t.Rows() {
		cells := []any{r.Student.StudentID, r.Student.Name}
		for _, g := range r.Grades {
			if g == nil {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, *g)
		}
		cells = append(cells, r.Total)
		if err := setRow(f, resultsSheet, i+2, cells); err != nil {
			return err
		}
	}

	maxRow := []any{"", "Max"}
	for _, ex := range t.Exercises {
		maxRow = append(maxRow, ex.MaxPoints)
	}
	maxRow = append(maxRow, t.MaxSum())
	if err := setRow(f, resultsSheet, len(t.Students)+2, maxRow); err != nil {
		return err
	}

	header = []any{"Student ID", "Name"}
	for _, c := range t.Categories {
		header = append(header, c.Name)
	}
	if err := setRow(f, categoriesSheet, 1, header); err != nil {
		return err
	}
	for i, st := range t.Students {
		cells := []any{st.StudentID, st.Name}
		for _, c := range t.Categories {
			cells = append(cells, t.ResultsByCategory[st.ID][c.ID])
		}
		if err := setRow(f, categoriesSheet, i+2, cells); err != nil {
			return err
		}
	}

	for _, sheet := range []string{resultsSheet, categoriesSheet} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
