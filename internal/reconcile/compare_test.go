package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// col builds a column; a nil element is a null cell.
func col(vs ...any) []types.Value {
	out := make([]types.Value, len(vs))
	for i, v := range vs {
		if v == nil {
			out[i] = types.Null()
			continue
		}
		out[i] = types.String(v.(string))
	}
	return out
}

func table(t *testing.T, names []string, cols ...[]types.Value) *types.Table {
	t.Helper()
	tbl, err := types.FromColumns(names, cols)
	require.NoError(t, err)
	return tbl
}

// rows renders a table row by row for compact assertions.
func rows(t *types.Table) [][]string {
	out := make([][]string, t.Len())
	for r := range out {
		for _, v := range t.Row(r) {
			out[r] = append(out[r], v.Text())
		}
	}
	return out
}

func converted(t *testing.T) *types.Table {
	return table(t, []string{"obs_id", "incl_main_ga", "incl_main_eng", "incl_main_age"},
		col("10100001", "10100002", "10100003", "10100004"),
		col("2", "2", "1", "1"),
		col("1", "1", "2", "2"),
		col("2", "1", "2", "2"),
	)
}

func TestCompareReportsDisagreements(t *testing.T) {
	external := table(t, []string{"obs_id", "incl_main_ga", "incl_main_eng", "incl_main_age"},
		col("10100004", "10100003", "10100002", "10100001"),
		col("1", "1", "2", "2"),
		col("2", "2", "1", "1"),
		col("1", "2", "1", "3"),
	)

	got, err := Compare(converted(t), external, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"obs_id", "incl_main_ga", "incl_main_eng", "incl_main_age", "Source"}, got.Columns())
	want := [][]string{
		{"10100001", "2", "1", "3", ExternalEntry},
		{"10100001", "2", "1", "2", ConvertedSource},
		{"10100004", "1", "2", "1", ExternalEntry},
		{"10100004", "1", "2", "2", ConvertedSource},
	}
	if diff := cmp.Diff(want, rows(got)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareIntersectsSubjectsAndColumns(t *testing.T) {
	external := table(t, []string{"incl_main_age", "obs_id", "dde_only"},
		col("2", "2", "9"),
		col("10100001", "10100003", "10199999"),
		col("x", "y", "z"),
	)

	got, err := Compare(converted(t), external, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"incl_main_age", "obs_id", "Source"}, got.Columns(), "external column order")
	assert.Zero(t, got.Len(), "subject only in the external data is not compared")
}

func TestCompareTreatsNullAsNan(t *testing.T) {
	conv := table(t, []string{"obs_id", "a", "b"}, col("1"), col(nil), col("x"))
	ext := table(t, []string{"obs_id", "a", "b"}, col("1"), col("nan"), col("x"))

	got, err := Compare(conv, ext, Options{})
	require.NoError(t, err)

	assert.Zero(t, got.Len())
}

func TestCompareDropsEmptyExternalRows(t *testing.T) {
	conv := table(t, []string{"obs_id", "redcap_repeat_instance", "a"},
		col("1", "1"), col("1", "2"), col("x", "y"))
	ext := table(t, []string{"obs_id", "redcap_repeat_instance", "a"},
		col("1", "1"), col("1", "2"), col("x", nil))

	got, err := Compare(conv, ext, Options{})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1", "2", "y", ConvertedSource}}, rows(got))
}

func TestCompareKeysOnlyKeepsRows(t *testing.T) {
	conv := table(t, []string{"obs_id", "a"}, col("1", "2"), col("x", "y"))
	ext := table(t, []string{"obs_id"}, col("1", "2"))

	got, err := Compare(conv, ext, Options{})
	require.NoError(t, err)

	assert.Zero(t, got.Len(), "key-only rows still cancel out")
}

func TestCompareRemovesEveryDuplicate(t *testing.T) {
	conv := table(t, []string{"obs_id", "a"}, col("1", "1"), col("x", "x"))
	ext := table(t, []string{"obs_id", "a"}, col("1"), col("x"))

	got, err := Compare(conv, ext, Options{})
	require.NoError(t, err)

	assert.Zero(t, got.Len(), "three copies of the same row all go")
}

func TestCompareIgnoreColumns(t *testing.T) {
	external := converted(t)
	require.NoError(t, external.Map("incl_main_age", func(types.Value) types.Value { return types.String("9") }))

	got, err := Compare(converted(t), external, Options{IgnoreColumns: []string{"incl_main_age", "obs_id", "Source", "unknown"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"obs_id", "incl_main_ga", "incl_main_eng", "Source"}, got.Columns())
	assert.Zero(t, got.Len())
}

func TestCompareMissingKey(t *testing.T) {
	noKey := table(t, []string{"a"}, col("x"))

	_, err := Compare(converted(t), noKey, Options{})
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = Compare(noKey, converted(t), Options{})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestCompareDoesNotModifyInputs(t *testing.T) {
	conv := converted(t)
	ext := converted(t)
	require.NoError(t, ext.Map("incl_main_ga", func(types.Value) types.Value { return types.String("1") }))

	_, err := Compare(conv, ext, Options{IgnoreColumns: []string{"incl_main_eng"}})
	require.NoError(t, err)

	assert.Equal(t, converted(t).Columns(), conv.Columns())
	assert.False(t, ext.HasColumn("Source"))
}
