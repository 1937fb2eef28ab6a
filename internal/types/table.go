package types

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrColumnNotFound is returned when an operation names a column the
	// table does not have.
	ErrColumnNotFound = errors.New("column not found")

	// ErrDuplicateColumn is returned when a column name would appear twice.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrLengthMismatch is returned when a column does not have one value per
	// row.
	ErrLengthMismatch = errors.New("column length mismatch")
)

// =============================================================================
// TABLE STRUCTURE
// =============================================================================

// Table is an ordered sequence of named, equal-length columns.
//
// Rows have no identity beyond their position. Methods that return a *Table
// return a fresh copy; methods documented as "in place" mutate the receiver.
// A Table is not safe for concurrent mutation.
type Table struct {
	columns []string
	index   map[string]int
	data    [][]Value
	rows    int
}

// New returns an empty table with no columns and no rows.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// FromColumns builds a table from column names and their values.
//
// PARAMETERS:
//   - names: The column names, in output order.
//   - cols: One value slice per name; all must have the same length.
//
// RETURNS:
//   - The new table.
//   - An error on duplicate names or unequal lengths.
func FromColumns(names []string, cols [][]Value) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%d names for %d columns: %w", len(names), len(cols), ErrLengthMismatch)
	}
	t := New()
	for i, name := range names {
		if err := t.AddColumn(name, cols[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromRows builds a table from a header and row-major string records.
// Every cell is non-null; callers that need nulls apply them afterwards
// (see csvparser).
func FromRows(header []string, records [][]string) (*Table, error) {
	cols := make([][]Value, len(header))
	for c := range header {
		cols[c] = make([]Value, len(records))
	}
	for r, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, want %d: %w", r+1, len(rec), len(header), ErrLengthMismatch)
		}
		for c, cell := range rec {
			cols[c][r] = String(cell)
		}
	}
	return FromColumns(header, cols)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Len returns the number of rows.
func (t *Table) Len() int {
	return t.rows
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.columns)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the table has a column called name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]Value, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return append([]Value(nil), t.data[i]...), true
}

// Cell returns the value at row for the named column, or null if the column
// does not exist.
func (t *Table) Cell(row int, name string) Value {
	i, ok := t.index[name]
	if !ok {
		return Null()
	}
	return t.data[i][row]
}

// Row returns the values of one row in column order.
func (t *Table) Row(row int) []Value {
	out := make([]Value, len(t.columns))
	for c := range t.columns {
		out[c] = t.data[c][row]
	}
	return out
}

// Texts returns the named column rendered with Value.Text.
func (t *Table) Texts(name string) []string {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]string, t.rows)
	for r, v := range t.data[i] {
		out[r] = v.Text()
	}
	return out
}

// =============================================================================
// IN-PLACE MUTATIONS
// =============================================================================

// AddColumn appends a new column (in place). The first column added to an
// empty table fixes the row count.
func (t *Table) AddColumn(name string, vals []Value) error {
	if _, ok := t.index[name]; ok {
		return fmt.Errorf("%q: %w", name, ErrDuplicateColumn)
	}
	if len(t.columns) > 0 && len(vals) != t.rows {
		return fmt.Errorf("%q has %d values, table has %d rows: %w", name, len(vals), t.rows, ErrLengthMismatch)
	}
	if len(t.columns) == 0 {
		t.rows = len(vals)
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	t.data = append(t.data, append([]Value(nil), vals...))
	return nil
}

// SetColumn replaces the values of an existing column, keeping its position,
// or appends the column if it does not exist (in place).
func (t *Table) SetColumn(name string, vals []Value) error {
	i, ok := t.index[name]
	if !ok {
		return t.AddColumn(name, vals)
	}
	if len(vals) != t.rows {
		return fmt.Errorf("%q has %d values, table has %d rows: %w", name, len(vals), t.rows, ErrLengthMismatch)
	}
	t.data[i] = append([]Value(nil), vals...)
	return nil
}

// Fill sets every row of the named column to v, adding the column at the
// end if needed (in place).
func (t *Table) Fill(name string, v Value) {
	vals := make([]Value, t.rows)
	for r := range vals {
		vals[r] = v
	}
	// Lengths always agree here.
	_ = t.SetColumn(name, vals)
}

// Map replaces every value of the named column with fn(value) (in place).
func (t *Table) Map(name string, fn func(Value) Value) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrColumnNotFound)
	}
	for r, v := range t.data[i] {
		t.data[i][r] = fn(v)
	}
	return nil
}

// MapAll applies fn to every cell of every column (in place).
func (t *Table) MapAll(fn func(column string, v Value) Value) {
	for c, name := range t.columns {
		for r, v := range t.data[c] {
			t.data[c][r] = fn(name, v)
		}
	}
}

// Rename renames columns according to renames (in place). Names not present
// in the table are ignored.
func (t *Table) Rename(renames map[string]string) error {
	next := make([]string, len(t.columns))
	seen := make(map[string]bool, len(t.columns))
	for i, name := range t.columns {
		if to, ok := renames[name]; ok {
			name = to
		}
		if seen[name] {
			return fmt.Errorf("rename produces %q twice: %w", name, ErrDuplicateColumn)
		}
		seen[name] = true
		next[i] = name
	}
	t.columns = next
	t.reindex()
	return nil
}

// MoveFirst moves the named column to position 0 (in place).
func (t *Table) MoveFirst(name string) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrColumnNotFound)
	}
	col := t.data[i]
	copy(t.columns[1:i+1], t.columns[:i])
	copy(t.data[1:i+1], t.data[:i])
	t.columns[0] = name
	t.data[0] = col
	t.reindex()
	return nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, name := range t.columns {
		t.index[name] = i
	}
}

// =============================================================================
// DERIVED TABLES
// =============================================================================

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		columns: append([]string(nil), t.columns...),
		data:    make([][]Value, len(t.data)),
		rows:    t.rows,
	}
	for i, col := range t.data {
		out.data[i] = append([]Value(nil), col...)
	}
	out.reindex()
	return out
}

// Select returns a new table holding the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := New()
	out.rows = t.rows
	for _, name := range names {
		i, ok := t.index[name]
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrColumnNotFound)
		}
		if _, dup := out.index[name]; dup {
			return nil, fmt.Errorf("%q: %w", name, ErrDuplicateColumn)
		}
		out.index[name] = len(out.columns)
		out.columns = append(out.columns, name)
		out.data = append(out.data, append([]Value(nil), t.data[i]...))
	}
	return out, nil
}

// Drop returns a new table without the named columns. Names the table does
// not have are ignored.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	keep := make([]string, 0, len(t.columns))
	for _, name := range t.columns {
		if !skip[name] {
			keep = append(keep, name)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Filter returns a new table with the rows for which keep returns true, in
// their original order.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var rows []int
	for r := 0; r < t.rows; r++ {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return t.Take(rows)
}

// Take returns a new table holding the given rows in the given order.
func (t *Table) Take(rows []int) *Table {
	out := &Table{
		columns: append([]string(nil), t.columns...),
		data:    make([][]Value, len(t.columns)),
		rows:    len(rows),
	}
	for c := range t.columns {
		col := make([]Value, len(rows))
		for i, r := range rows {
			col[i] = t.data[c][r]
		}
		out.data[c] = col
	}
	out.reindex()
	return out
}

// Concat returns a new table with the rows of t followed by the rows of
// other. Both tables must have the same column set; other is aligned to t's
// column order.
func (t *Table) Concat(other *Table) (*Table, error) {
	if len(other.columns) != len(t.columns) {
		return nil, fmt.Errorf("concat %d columns onto %d: %w", len(other.columns), len(t.columns), ErrLengthMismatch)
	}
	out := t.Clone()
	for c, name := range out.columns {
		j, ok := other.index[name]
		if !ok {
			return nil, fmt.Errorf("concat: %q: %w", name, ErrColumnNotFound)
		}
		out.data[c] = append(out.data[c], other.data[j]...)
	}
	out.rows += other.rows
	return out, nil
}

// String renders the table as tab-separated text, mainly for logs and test
// failure output.
func (t *Table) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.columns, "\t"))
	for r := 0; r < t.rows; r++ {
		b.WriteByte('\n')
		for c := range t.columns {
			if c > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(t.data[c][r].Text())
		}
	}
	return b.String()
}
