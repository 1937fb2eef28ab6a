// =============================================================================
// OBS Clinic Migration - CSV Parser Module
// =============================================================================
//
// This module reads Rave exports, REDCap exports and REDCap data dictionaries
// from CSV into tables, and writes converted tables back out as REDCap
// import CSV.
//
// NULL HANDLING:
//   An empty cell is read as null. Any other text, including "nan", is kept
//   as is; recoding decides which tokens mean missing. Writing renders null
//   as an empty cell, which REDCap imports as blank.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// ErrEmptyFile is returned when a CSV file has no header row.
var ErrEmptyFile = errors.New("CSV file is empty")

// utf8BOM is prepended by Excel when saving CSV as UTF-8.
const utf8BOM = "\ufeff"

// Settings controls CSV parsing.
type Settings struct {
	// Delimiter separates fields. Accepts a character or one of "tab",
	// "pipe", "semicolon".
	// Default: ","
	Delimiter string
}

// =============================================================================
// READING
// =============================================================================

// Parse reads a CSV file into a table.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: Parsing settings.
//
// RETURNS:
//   - The table; the first row is the header.
//   - An error if the file cannot be read or has no header.
func Parse(filePath string, settings Settings) (*types.Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	t, err := ParseReader(bufio.NewReader(file), settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return t, nil
}

// ParseReader reads CSV from r into a table. Blank lines are skipped, short
// rows are padded with nulls and extra trailing fields are ignored.
func ParseReader(r io.Reader, settings Settings) (*types.Table, error) {
	csvReader := csv.NewReader(r)
	configureReader(csvReader, settings)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(allRows) == 0 {
		return nil, ErrEmptyFile
	}

	headers := cleanHeaders(allRows[0])
	cols := make([][]types.Value, len(headers))
	for _, row := range allRows[1:] {
		if isRowEmpty(row) {
			continue
		}
		for c := range headers {
			cols[c] = append(cols[c], cell(row, c))
		}
	}
	for c := range cols {
		if cols[c] == nil {
			cols[c] = []types.Value{}
		}
	}

	t, err := types.FromColumns(headers, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to build table: %w", err)
	}
	return t, nil
}

// configureReader sets up the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings Settings) {
	switch settings.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Allow rows with a varying number of fields.
	reader.FieldsPerRecord = -1

	// Rave free text sometimes carries stray quotes.
	reader.LazyQuotes = true
}

// cleanHeaders trims header names and names blank headers by position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, utf8BOM)
		}
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}
	return cleaned
}

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

// Write writes a table to a CSV file, replacing any existing file.
func Write(filePath string, t *types.Table) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := WriteTo(file, t); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", filePath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

// WriteTo writes a table as comma separated CSV with a header row.
func WriteTo(w io.Writer, t *types.Table) error {
	buf := bufio.NewWriter(w)
	csvWriter := csv.NewWriter(buf)

	if err := csvWriter.Write(t.Columns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, t.Width())
	for r := 0; r < t.Len(); r++ {
		for c, v := range t.Row(r) {
			record[c] = v.Str()
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+1, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.Flush()
}
