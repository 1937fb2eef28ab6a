// =============================================================================
// OBS Clinic Migration - XLSX Parser Module
// =============================================================================
//
// This module reads tables from Excel workbooks and writes the
// reconciliation report workbook.
//
// READING:
//   REDCap data dictionaries and Rave data dictionary exports are often
//   handed over as XLSX. The first row of a sheet is the header; empty cells
//   are read as null.
//
// WRITING:
//   The report has one sheet per table, in the order given. Header cells are
//   bold. Null cells are left empty.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// ErrNoSheets is returned when a workbook has no sheet to read.
var ErrNoSheets = errors.New("workbook has no sheets")

// Sheet is one named table of a report.
type Sheet struct {
	Name  string
	Table *types.Table
}

// =============================================================================
// READING
// =============================================================================

// ReadSheet reads one sheet of a workbook into a table.
//
// PARAMETERS:
//   - path: The path to the XLSX file.
//   - sheet: The sheet name; empty selects the first sheet.
//
// RETURNS:
//   - The table.
//   - An error if the file or sheet cannot be read.
func ReadSheet(path, sheet string) (*types.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	t, err := readSheet(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func readSheet(f *excelize.File, sheet string) (*types.Table, error) {
	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			return nil, ErrNoSheets
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}

	headers := cleanHeaders(rows[0])
	cols := make([][]types.Value, len(headers))
	for c := range cols {
		cols[c] = []types.Value{}
	}
	for _, row := range rows[1:] {
		if isRowEmpty(row) {
			continue
		}
		for c := range headers {
			cols[c] = append(cols[c], cell(row, c))
		}
	}

	return types.FromColumns(headers, cols)
}

func cleanHeaders(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		out[i] = h
	}
	return out
}

// cell returns a row value; GetRows drops trailing empty cells.
func cell(row []string, c int) types.Value {
	if c >= len(row) {
		return types.Null()
	}
	v := strings.TrimSpace(row[c])
	if v == "" {
		return types.Null()
	}
	return types.String(v)
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// WRITING
// =============================================================================

// WriteReport writes tables to a new workbook, one sheet each.
//
// PARAMETERS:
//   - path: The output file; it is replaced if it exists.
//   - sheets: The sheets in order. Names are shortened and cleaned to meet
//     Excel rules; clashes after cleaning get a numeric suffix.
//
// RETURNS:
//   - An error if no sheet is given or the workbook cannot be written.
func WriteReport(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return ErrNoSheets
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	used := make(map[string]bool, len(sheets))
	for i, s := range sheets {
		name := uniqueSheetName(s.Name, used)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("failed to name sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, s.Table, bold); err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t *types.Table, headerStyle int) error {
	header := make([]interface{}, t.Width())
	for c, name := range t.Columns() {
		header[c] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if t.Width() > 0 {
		last, err := excelize.CoordinatesToCellName(t.Width(), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
	}

	for r := 0; r < t.Len(); r++ {
		row := make([]interface{}, t.Width())
		for c, v := range t.Row(r) {
			if v.IsNull() {
				row[c] = nil
				continue
			}
			row[c] = v.Str()
		}
		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &row); err != nil {
			return err
		}
	}
	return nil
}

// uniqueSheetName cleans name for Excel and makes it unique among used.
func uniqueSheetName(name string, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Sheet"
	}
	if len([]rune(name)) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}

	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		base := []rune(name)
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		candidate = string(base) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
