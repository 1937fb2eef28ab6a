package reconcile

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/types"
	"github.com/rseeto/obs-clinic-migration/internal/validation"
)

// FindColumnIssues names the subject and column behind every disagreement.
//
// It runs Compare once over the whole data, then again for each disagreeing
// subject and each compared column, with the external side restricted to
// that subject and column (plus the repeat instance, when both sides have
// one). Every restricted comparison that still disagrees yields one
// ColumnIssue diagnostic. Subjects that fully agree are never swept.
//
// RETURNS:
//   - Diagnostics ordered by subject, then column in comparison order.
//   - An error if a comparison fails.
func FindColumnIssues(converted, external *types.Table, opts Options) ([]validation.Diagnostic, error) {
	full, err := Compare(converted, external, opts)
	if err != nil {
		return nil, err
	}
	diags := validation.NewCollector(opts.Logger)
	if full.Len() == 0 {
		return diags.Diagnostics(), nil
	}

	withInstance := converted.HasColumn(types.RepeatInstanceColumn) && external.HasColumn(types.RepeatInstanceColumn)
	var columns []string
	for _, col := range full.Columns() {
		if col == types.KeyColumn || col == types.SourceColumn || col == types.RepeatInstanceColumn {
			continue
		}
		columns = append(columns, col)
	}

	ids := external.Texts(types.KeyColumn)
	for _, subject := range uniqueSubjects(full) {
		ext := external.Filter(func(r int) bool { return ids[r] == subject })
		for _, col := range columns {
			keep := []string{types.KeyColumn}
			if withInstance {
				keep = append(keep, types.RepeatInstanceColumn)
			}
			sub, err := ext.Select(append(keep, col)...)
			if err != nil {
				return nil, fmt.Errorf("column issues: %w", err)
			}
			diff, err := Compare(converted, sub, opts)
			if err != nil {
				return nil, fmt.Errorf("column issues: subject %q: %w", subject, err)
			}
			if diff.Len() > 0 {
				diags.Add(validation.ColumnIssue(subject, col))
			}
		}
	}

	opts.logger().Info("Located column issues",
		zap.Int("disagreeing_rows", full.Len()),
		zap.Int("issues", len(diags.Diagnostics())),
	)
	return diags.Diagnostics(), nil
}

// uniqueSubjects returns the key values of t in first-seen order.
func uniqueSubjects(t *types.Table) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range t.Texts(types.KeyColumn) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
