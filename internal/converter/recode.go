package converter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rseeto/obs-clinic-migration/internal/dictionary"
	"github.com/rseeto/obs-clinic-migration/internal/types"
	"github.com/rseeto/obs-clinic-migration/internal/validation"
)

// DefaultMissingTokens are the textual stand-ins for an absent value that
// recoding folds into null.
var DefaultMissingTokens = []string{"nan", "NaN", ""}

// ZeroToken marks a checkbox or count that was never ticked. RemoveNA treats
// it as absent.
const ZeroToken = "0"

// Recode replaces labels with their codes in every coded column of t.
//
// Each column is handled on its own. A column whose coding string is
// malformed, or whose recoding panics, is left unchanged and reported as a
// ColumnFailure; the other columns still convert. After substitution every
// remaining value of a numeric variable that does not parse as a number is
// reported as a RecodeAnomaly, and finally every missing token in the
// table becomes null.
//
// PARAMETERS:
//   - t: The long table. It is modified in place.
//   - dict: The REDCap data dictionary.
//   - missing: Tokens that stand for null; nil means DefaultMissingTokens.
//   - diags: Receives anomalies and failures.
func Recode(t *types.Table, dict *dictionary.Dictionary, missing []string, diags *validation.Collector) {
	if diags == nil {
		diags = validation.NewCollector(nil)
	}
	tokens := tokenSet(missing)

	for _, col := range t.Columns() {
		if types.IsKeyColumn(col) {
			continue
		}
		scheme, err := dict.Scheme(col)
		if err != nil {
			diags.Add(validation.ColumnFailure(col, err))
			continue
		}
		if scheme == nil {
			continue
		}
		if err := recodeColumn(t, col, scheme); err != nil {
			diags.Add(validation.ColumnFailure(col, err))
			continue
		}
		if dict.ExpectNumeric(col) {
			for _, vc := range valueCounts(t, col, tokens) {
				if !isNumeric(vc.Value) {
					diags.Add(validation.RecodeAnomaly(col, vc.Value))
				}
			}
		}
	}

	normalizeMissing(t, tokens)
}

// recodeColumn swaps labels for codes in one column. A panic while doing so
// is turned into an error so it stays contained to the column.
func recodeColumn(t *types.Table, col string, scheme *dictionary.Scheme) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recode panicked: %v", r)
		}
	}()

	before, _ := t.Column(col)
	if err := t.Map(col, func(v types.Value) types.Value {
		if v.IsNull() {
			return v
		}
		if code, ok := scheme.Code(v.Str()); ok {
			return types.String(code)
		}
		return v
	}); err != nil {
		// Keep the column as it was.
		_ = t.SetColumn(col, before)
		return err
	}
	return nil
}

// isNumeric reports whether s is a numeric literal. Values too large for a
// float64 still count as numbers.
func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err == nil {
		return true
	}
	return errors.Is(err, strconv.ErrRange)
}

// normalizeMissing replaces every missing token in t with null (in place).
func normalizeMissing(t *types.Table, tokens map[string]bool) {
	t.MapAll(func(_ string, v types.Value) types.Value {
		if !v.IsNull() && tokens[v.Str()] {
			return types.Null()
		}
		return v
	})
}

func normalizeColumn(t *types.Table, col string, tokens map[string]bool) {
	_ = t.Map(col, func(v types.Value) types.Value {
		if !v.IsNull() && tokens[v.Str()] {
			return types.Null()
		}
		return v
	})
}

func tokenSet(missing []string) map[string]bool {
	if missing == nil {
		missing = DefaultMissingTokens
	}
	out := make(map[string]bool, len(missing))
	for _, tok := range missing {
		out[tok] = true
	}
	return out
}

// =============================================================================
// VALUE COUNTS
// =============================================================================

// ValueCount is the number of rows holding one distinct value.
type ValueCount struct {
	Value string
	Count int
}

// ColumnCounts is the distinct value tally of one column after a correction.
type ColumnCounts struct {
	Column string
	Counts []ValueCount
	Nulls  int
}

// valueCounts tallies the non-null, non-missing values of a column, most
// frequent first and by value within equal counts.
func valueCounts(t *types.Table, col string, tokens map[string]bool) []ValueCount {
	vals, _ := t.Column(col)
	counts := make(map[string]int)
	for _, v := range vals {
		if v.IsNull() || tokens[v.Str()] {
			continue
		}
		counts[v.Str()]++
	}
	out := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func countNulls(t *types.Table, col string) int {
	vals, _ := t.Column(col)
	n := 0
	for _, v := range vals {
		if v.IsNull() {
			n++
		}
	}
	return n
}
