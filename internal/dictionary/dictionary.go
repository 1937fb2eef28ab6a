package dictionary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// =============================================================================
// REDCAP DATA DICTIONARY COLUMNS
// =============================================================================

const (
	// ColumnVariable holds the REDCap variable name.
	ColumnVariable = "Variable / Field Name"

	// ColumnChoices holds the coding string of categorical variables.
	ColumnChoices = "Choices, Calculations, OR Slider Labels"

	// ColumnFieldType holds the REDCap field type (radio, text, calc, ...).
	ColumnFieldType = "Field Type"

	// ColumnValidation holds the text validation type (integer, date_ymd, ...).
	ColumnValidation = "Text Validation Type OR Show Slider Number"
)

// choiceFieldTypes are the field types whose Choices column is a coding
// string. For calc fields it is a formula, for sliders it is display text.
var choiceFieldTypes = map[string]bool{
	"radio":    true,
	"dropdown": true,
	"checkbox": true,
}

// numericFieldTypes always store numeric values in REDCap.
var numericFieldTypes = map[string]bool{
	"radio":     true,
	"dropdown":  true,
	"checkbox":  true,
	"yesno":     true,
	"truefalse": true,
	"slider":    true,
	"calc":      true,
}

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one row of the data dictionary.
type Entry struct {
	// Variable is the REDCap variable name.
	Variable string

	// Choices is the raw coding string; empty when the variable is not coded.
	Choices string

	// FieldType is the REDCap field type. Empty when only (variable, coding)
	// pairs were supplied.
	FieldType string

	// Validation is the REDCap text validation type, if any.
	Validation string

	// ExpectNumeric declares that converted values of this variable must be
	// numeric literals. Non-numeric survivors of recoding are reported as
	// anomalies only for variables with this trait.
	ExpectNumeric bool
}

// NewEntry builds an entry from a bare (variable, coding) pair. The variable
// is expected to be numeric exactly when it has a coding string.
func NewEntry(variable, choices string) Entry {
	return Entry{
		Variable:      variable,
		Choices:       choices,
		ExpectNumeric: strings.TrimSpace(choices) != "",
	}
}

// HasCoding reports whether Choices should be parsed as a coding string.
func (e Entry) HasCoding() bool {
	if strings.TrimSpace(e.Choices) == "" {
		return false
	}
	if e.FieldType == "" {
		return true
	}
	return choiceFieldTypes[strings.ToLower(e.FieldType)]
}

// expectNumeric derives the numeric trait from the field type and
// validation of a REDCap dictionary row.
func expectNumeric(fieldType, validation, choices string) bool {
	if fieldType == "" {
		return strings.TrimSpace(choices) != ""
	}
	if numericFieldTypes[strings.ToLower(fieldType)] {
		return true
	}
	v := strings.ToLower(validation)
	return v == "integer" || strings.HasPrefix(v, "number")
}

// =============================================================================
// DICTIONARY
// =============================================================================

// Dictionary maps variable names to their entries and parsed schemes. It is
// read-only after construction and safe to share between sessions.
type Dictionary struct {
	entries map[string]Entry
	schemes map[string]*Scheme
	errs    map[string]error
	order   []string
}

// New builds a dictionary from entries. When a variable appears more than
// once, the first entry wins.
//
// A malformed coding string does not fail construction: the parse error is
// kept and returned by Scheme for that variable, so one bad row only affects
// its own column.
func New(entries []Entry) *Dictionary {
	d := &Dictionary{
		entries: make(map[string]Entry, len(entries)),
		schemes: make(map[string]*Scheme),
		errs:    make(map[string]error),
	}

	for _, e := range entries {
		e.Variable = strings.TrimSpace(e.Variable)
		if e.Variable == "" {
			continue
		}
		if _, dup := d.entries[e.Variable]; dup {
			continue
		}
		d.entries[e.Variable] = e
		d.order = append(d.order, e.Variable)

		if !e.HasCoding() {
			continue
		}
		scheme, err := Parse(e.Choices)
		if err != nil {
			d.errs[e.Variable] = fmt.Errorf("variable %q: %w", e.Variable, err)
			continue
		}
		if scheme != nil {
			d.schemes[e.Variable] = scheme
		}
	}

	return d
}

// FromPairs builds a dictionary from variable -> coding string pairs.
func FromPairs(pairs [][2]string) *Dictionary {
	entries := make([]Entry, len(pairs))
	for i, p := range pairs {
		entries[i] = NewEntry(p[0], p[1])
	}
	return New(entries)
}

// FromTable reads a REDCap data dictionary export.
//
// PARAMETERS:
//   - t: A table with at least ColumnVariable and ColumnChoices. The field
//     type and validation columns are optional.
//
// RETURNS:
//   - The dictionary.
//   - An error if a required column is missing.
func FromTable(t *types.Table) (*Dictionary, error) {
	for _, col := range []string{ColumnVariable, ColumnChoices} {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("data dictionary: %q: %w", col, types.ErrColumnNotFound)
		}
	}

	entries := make([]Entry, 0, t.Len())
	for r := 0; r < t.Len(); r++ {
		fieldType := strings.TrimSpace(t.Cell(r, ColumnFieldType).Str())
		validation := strings.TrimSpace(t.Cell(r, ColumnValidation).Str())
		choices := t.Cell(r, ColumnChoices).Str()
		entries = append(entries, Entry{
			Variable:      t.Cell(r, ColumnVariable).Str(),
			Choices:       choices,
			FieldType:     fieldType,
			Validation:    validation,
			ExpectNumeric: expectNumeric(fieldType, validation, choices),
		})
	}

	return New(entries), nil
}

// WithNumericOverrides returns a copy of the dictionary with the numeric
// trait replaced for the given variables. Variables not in the dictionary
// are added without a coding.
func (d *Dictionary) WithNumericOverrides(overrides map[string]bool) *Dictionary {
	entries := make([]Entry, 0, len(d.order)+len(overrides))
	for _, name := range d.order {
		e := d.entries[name]
		if v, ok := overrides[name]; ok {
			e.ExpectNumeric = v
		}
		entries = append(entries, e)
	}
	added := make([]string, 0, len(overrides))
	for name := range overrides {
		if _, ok := d.entries[name]; !ok {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	for _, name := range added {
		entries = append(entries, Entry{Variable: name, ExpectNumeric: overrides[name]})
	}
	return New(entries)
}

// Scheme returns the coding scheme of a variable.
//
// RETURNS:
//   - (scheme, nil) when the variable is coded.
//   - (nil, nil) when the variable is absent or has no coding; recoding is
//     a no-op for it.
//   - (nil, err) when the variable's coding string is malformed.
func (d *Dictionary) Scheme(variable string) (*Scheme, error) {
	if err, ok := d.errs[variable]; ok {
		return nil, err
	}
	return d.schemes[variable], nil
}

// Entry returns the dictionary row of a variable.
func (d *Dictionary) Entry(variable string) (Entry, bool) {
	e, ok := d.entries[variable]
	return e, ok
}

// ExpectNumeric reports the numeric trait of a variable; false when the
// variable is absent.
func (d *Dictionary) ExpectNumeric(variable string) bool {
	return d.entries[variable].ExpectNumeric
}

// Variables returns the variable names in dictionary order.
func (d *Dictionary) Variables() []string {
	return append([]string(nil), d.order...)
}

// Len returns the number of variables.
func (d *Dictionary) Len() int {
	return len(d.order)
}
