// =============================================================================
// OBS Clinic Migration - Reshaper
// =============================================================================
//
// Rave exports one row per subject. Repeated measures are spread across
// columns that share a stub and end in an instance number:
//
//   Subject  | MEDHX_1 | MEDHX_2
//   10100001 | Yes     | No
//
// REDCap imports repeating instruments in long format, one row per subject
// and instance:
//
//   obs_id   | redcap_repeat_instance | medhx
//   10100001 | 1                      | Yes
//   10100001 | 2                      | No
//
// RESHAPE MODES:
//   stub_repeat = 0 : single instance; select and rename, no instance column
//   stub_repeat > 0 : wide to long; blank instances are dropped
//
// =============================================================================

package converter

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rseeto/obs-clinic-migration/internal/types"
	"github.com/rseeto/obs-clinic-migration/internal/validation"
)

// ErrMissingColumn is returned when the wide table lacks a column the stub
// mapping needs.
var ErrMissingColumn = errors.New("missing source column")

// StubMapping maps one Rave column stub to its REDCap variable.
type StubMapping struct {
	// Stub is the Rave column name, or its prefix when repeated
	// (for example "MEDHX_" for MEDHX_1, MEDHX_2).
	Stub string `yaml:"stub"`

	// Field is the REDCap variable name.
	Field string `yaml:"field"`
}

// Reshape converts a wide Rave table into REDCap shape.
//
// PARAMETERS:
//   - wide: The Rave table, keyed by types.SourceKey.
//   - mappings: The stubs to convert, in output column order.
//   - stubRepeat: 0 for single-instance variables, otherwise the number of
//     instances each stub is expected to have.
//   - diags: Receives the structural mismatch diagnostic, if any.
//
// RETURNS:
//   - A new table keyed by types.KeyColumn. Output columns are the key, the
//     repeat instance when stubRepeat > 0, then each mapped field.
//   - An error if a source column is missing or a field name collides.
func Reshape(wide *types.Table, mappings []StubMapping, stubRepeat int, diags *validation.Collector) (*types.Table, error) {
	if stubRepeat < 0 {
		return nil, fmt.Errorf("stub_repeat must not be negative, got %d", stubRepeat)
	}
	if !wide.HasColumn(types.SourceKey) {
		return nil, fmt.Errorf("%q: %w", types.SourceKey, ErrMissingColumn)
	}
	if diags == nil {
		diags = validation.NewCollector(nil)
	}

	if stubRepeat == 0 {
		return reshapeSingle(wide, mappings)
	}
	return reshapeWideLong(wide, mappings, stubRepeat, diags)
}

// reshapeSingle selects the key and every stub column and renames them.
// The caller's mappings are never modified; the key rename is its own step.
func reshapeSingle(wide *types.Table, mappings []StubMapping) (*types.Table, error) {
	cols := []string{types.SourceKey}
	renames := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if !wide.HasColumn(m.Stub) {
			return nil, fmt.Errorf("%q: %w", m.Stub, ErrMissingColumn)
		}
		cols = append(cols, m.Stub)
		renames[m.Stub] = m.Field
	}

	out, err := wide.Select(cols...)
	if err != nil {
		return nil, fmt.Errorf("select stubs: %w", err)
	}
	if err := out.Rename(renames); err != nil {
		return nil, fmt.Errorf("rename stubs: %w", err)
	}
	if err := renameKey(out); err != nil {
		return nil, err
	}
	return out, nil
}

// reshapeWideLong stacks <stub><k> columns for k = 1..stubRepeat. Rows are
// emitted instance by instance, keeping subject order within an instance.
func reshapeWideLong(wide *types.Table, mappings []StubMapping, stubRepeat int, diags *validation.Collector) (*types.Table, error) {
	subjects, _ := wide.Column(types.SourceKey)

	sources := make([][][]types.Value, stubRepeat)
	for k := 1; k <= stubRepeat; k++ {
		sources[k-1] = make([][]types.Value, len(mappings))
		for i, m := range mappings {
			name := m.Stub + strconv.Itoa(k)
			col, ok := wide.Column(name)
			if !ok {
				return nil, fmt.Errorf("%q: %w", name, ErrMissingColumn)
			}
			sources[k-1][i] = col
		}
	}

	var (
		keys      []types.Value
		instances []types.Value
		fields    = make([][]types.Value, len(mappings))
		maxSeen   int
	)
	for k := 1; k <= stubRepeat; k++ {
		for r := range subjects {
			if blankInstance(sources[k-1], r) {
				continue
			}
			keys = append(keys, subjects[r])
			instances = append(instances, types.String(strconv.Itoa(k)))
			for i := range mappings {
				fields[i] = append(fields[i], sources[k-1][i][r])
			}
			maxSeen = k
		}
	}

	if maxSeen != stubRepeat {
		diags.Add(validation.StructuralMismatch(maxSeen, stubRepeat))
	}

	names := []string{types.KeyColumn, types.RepeatInstanceColumn}
	cols := [][]types.Value{keys, instances}
	for i, m := range mappings {
		names = append(names, m.Field)
		cols = append(cols, fields[i])
	}

	out, err := types.FromColumns(names, cols)
	if err != nil {
		return nil, fmt.Errorf("build long table: %w", err)
	}
	return out, nil
}

// blankInstance reports whether every mapped value of one subject's
// instance is null.
func blankInstance(cols [][]types.Value, row int) bool {
	for _, col := range cols {
		if !col[row].IsNull() {
			return false
		}
	}
	return true
}

func renameKey(t *types.Table) error {
	if err := t.Rename(map[string]string{types.SourceKey: types.KeyColumn}); err != nil {
		return fmt.Errorf("rename key: %w", err)
	}
	return nil
}

// SourceColumns lists the wide columns Reshape reads for mappings, key
// first.
func SourceColumns(mappings []StubMapping, stubRepeat int) []string {
	cols := []string{types.SourceKey}
	if stubRepeat == 0 {
		for _, m := range mappings {
			cols = append(cols, m.Stub)
		}
		return cols
	}
	for k := 1; k <= stubRepeat; k++ {
		for _, m := range mappings {
			cols = append(cols, m.Stub+strconv.Itoa(k))
		}
	}
	return cols
}
