// =============================================================================
// OBS Clinic Migration - DDE Reconciliation
// =============================================================================
//
// Double data entry (DDE) means a subset of subjects was typed into REDCap a
// second time, by hand, from the paper source. Comparing that external entry
// with the converted Rave data shows where either side is wrong.
//
// Compare returns only the rows that disagree. A row that appears the same
// way on both sides cancels out; what is left is tagged with the side it
// came from, external rows first within a subject.
//
// =============================================================================

package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// Source tags.
const (
	// ExternalEntry marks rows from the independently entered data.
	ExternalEntry = "ExternalEntry"

	// ConvertedSource marks rows from the converted Rave data.
	ConvertedSource = "ConvertedSource"
)

// ErrMissingKey is returned when either table lacks the subject key column.
var ErrMissingKey = errors.New("missing subject key column")

// rowSep joins the cells of a row into a comparison key. It cannot occur in
// CSV text produced by Rave or REDCap.
const rowSep = "\x1f"

// Options controls a comparison.
type Options struct {
	// IgnoreColumns are dropped before rows are compared. The subject key
	// and the Source column cannot be ignored.
	IgnoreColumns []string

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Compare reports every row on which the converted and external tables
// disagree.
//
// ALGORITHM:
//  1. Both tables are compared as text; null and "nan" are the same value.
//  2. Only subjects present in both tables are kept.
//  3. Only columns present in both are kept, in the external table's order.
//  4. External rows with no value outside the key and repeat instance are
//     dropped; they were never entered.
//  5. Rows are tagged with their Source, external rows first.
//  6. Ignored columns are dropped.
//  7. Every row that occurs more than once (ignoring Source) is removed, all
//     copies included.
//  8. The rest is sorted by subject, keeping the order from step 5 within a
//     subject.
//
// PARAMETERS:
//   - converted: The converted session data.
//   - external: The independently entered data.
//   - opts: Ignored columns and logger.
//
// RETURNS:
//   - The disagreeing rows, with a trailing Source column. Empty when the
//     two sides agree.
//   - ErrMissingKey if either table has no key column.
func Compare(converted, external *types.Table, opts Options) (*types.Table, error) {
	if !converted.HasColumn(types.KeyColumn) || !external.HasColumn(types.KeyColumn) {
		return nil, fmt.Errorf("compare: %q: %w", types.KeyColumn, ErrMissingKey)
	}
	log := opts.logger()

	// Steps 2 and 3.
	subjects := intersectSubjects(converted, external)
	columns := intersectColumns(converted, external)

	conv, err := restrict(converted, columns, subjects)
	if err != nil {
		return nil, err
	}
	ext, err := restrict(external, columns, subjects)
	if err != nil {
		return nil, err
	}

	// Step 4.
	ext = dropEmptyRows(ext)

	// Step 5.
	ext.Fill(types.SourceColumn, types.String(ExternalEntry))
	conv.Fill(types.SourceColumn, types.String(ConvertedSource))
	all, err := ext.Concat(conv)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}

	// Step 6.
	all = all.Drop(ignorable(opts.IgnoreColumns)...)

	// Step 7.
	keys := rowKeys(all)
	seen := make(map[string]int, len(keys))
	for _, k := range keys {
		seen[k]++
	}
	var rows []int
	for r, k := range keys {
		if seen[k] == 1 {
			rows = append(rows, r)
		}
	}

	// Step 8.
	ids := all.Texts(types.KeyColumn)
	sort.SliceStable(rows, func(i, j int) bool {
		return ids[rows[i]] < ids[rows[j]]
	})
	out := all.Take(rows)

	log.Debug("Compared converted and external data",
		zap.Int("subjects", len(subjects)),
		zap.Int("columns", len(columns)),
		zap.Int("converted_rows", conv.Len()),
		zap.Int("external_rows", ext.Len()),
		zap.Int("disagreements", out.Len()),
	)
	return out, nil
}

// intersectSubjects returns the key values present in both tables.
func intersectSubjects(a, b *types.Table) map[string]bool {
	inA := make(map[string]bool, a.Len())
	for _, id := range a.Texts(types.KeyColumn) {
		inA[id] = true
	}
	out := make(map[string]bool)
	for _, id := range b.Texts(types.KeyColumn) {
		if inA[id] {
			out[id] = true
		}
	}
	return out
}

// intersectColumns returns the columns of external that converted also has,
// in external's order.
func intersectColumns(converted, external *types.Table) []string {
	var out []string
	for _, col := range external.Columns() {
		if col != types.SourceColumn && converted.HasColumn(col) {
			out = append(out, col)
		}
	}
	return out
}

func restrict(t *types.Table, columns []string, subjects map[string]bool) (*types.Table, error) {
	sel, err := t.Select(columns...)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	ids := sel.Texts(types.KeyColumn)
	return sel.Filter(func(r int) bool { return subjects[ids[r]] }), nil
}

// dropEmptyRows removes rows whose every meaningful column is null. A table
// with no meaningful column is returned unchanged.
func dropEmptyRows(t *types.Table) *types.Table {
	var meaningful []string
	for _, col := range t.Columns() {
		if col != types.KeyColumn && col != types.RepeatInstanceColumn {
			meaningful = append(meaningful, col)
		}
	}
	if len(meaningful) == 0 {
		return t
	}
	return t.Filter(func(r int) bool {
		for _, col := range meaningful {
			if !isAbsent(t.Cell(r, col)) {
				return true
			}
		}
		return false
	})
}

func isAbsent(v types.Value) bool {
	return v.IsNull() || v.Str() == "nan"
}

func ignorable(ignore []string) []string {
	out := make([]string, 0, len(ignore))
	for _, col := range ignore {
		if col == types.KeyColumn || col == types.SourceColumn {
			continue
		}
		out = append(out, col)
	}
	return out
}

// rowKeys renders every row without its Source tag.
func rowKeys(t *types.Table) []string {
	var cols []string
	for _, col := range t.Columns() {
		if col != types.SourceColumn {
			cols = append(cols, col)
		}
	}
	texts := make([][]string, len(cols))
	for i, col := range cols {
		texts[i] = t.Texts(col)
	}
	keys := make([]string, t.Len())
	parts := make([]string, len(cols))
	for r := range keys {
		for i := range cols {
			parts[i] = texts[i][r]
		}
		keys[r] = strings.Join(parts, rowSep)
	}
	return keys
}
