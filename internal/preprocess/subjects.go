package preprocess

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// SelectOptions controls SelectSubjects.
type SelectOptions struct {
	// Count is the number of subjects to pick.
	Count int

	// MaxSubject excludes subjects with a larger numeric id. Zero disables
	// the filter.
	MaxSubject int64

	// Logger receives one debug line per pick. Nil disables logging.
	Logger *zap.Logger
}

// SelectSubjects picks subjects for double data entry so that the picked
// set covers as many columns as possible.
//
// Only columns holding at least one value are considered. Each round picks
// the first subject with the fewest nulls over the columns still in play,
// then narrows the columns to those that subject left empty, so the next
// pick is rewarded for filling the gaps.
//
// PARAMETERS:
//   - wide: The Rave table, keyed by types.SourceKey.
//   - opts: Count, optional subject id ceiling and logger.
//
// RETURNS:
//   - The picked subject ids in pick order; fewer than Count when the table
//     runs out of subjects.
//   - An error if the key column is missing, or a subject id is not an
//     integer while MaxSubject is set.
func SelectSubjects(wide *types.Table, opts SelectOptions) ([]string, error) {
	if !wide.HasColumn(types.SourceKey) {
		return nil, fmt.Errorf("select subjects: %q: %w", types.SourceKey, types.ErrColumnNotFound)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ids := wide.Texts(types.SourceKey)
	var rows []int
	for r, id := range ids {
		if opts.MaxSubject > 0 {
			n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("select subjects: subject %q: %w", id, err)
			}
			if n > opts.MaxSubject {
				continue
			}
		}
		rows = append(rows, r)
	}

	var cols []string
	for _, col := range wide.Columns() {
		if col == types.SourceKey {
			continue
		}
		for _, r := range rows {
			if !wide.Cell(r, col).IsNull() {
				cols = append(cols, col)
				break
			}
		}
	}

	picked := make([]string, 0, opts.Count)
	for len(picked) < opts.Count && len(rows) > 0 {
		best, bestNulls := 0, -1
		for i, r := range rows {
			nulls := 0
			for _, col := range cols {
				if wide.Cell(r, col).IsNull() {
					nulls++
				}
			}
			if bestNulls < 0 || nulls < bestNulls {
				best, bestNulls = i, nulls
			}
		}

		r := rows[best]
		var gaps []string
		for _, col := range cols {
			if wide.Cell(r, col).IsNull() {
				gaps = append(gaps, col)
			}
		}
		cols = gaps

		picked = append(picked, ids[r])
		rows = append(rows[:best:best], rows[best+1:]...)
		log.Debug("Picked subject",
			zap.String("subject", ids[r]),
			zap.Int("nulls", bestNulls),
			zap.Int("columns_left", len(cols)),
		)
	}
	return picked, nil
}
