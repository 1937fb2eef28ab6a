package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

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

func TestDateUnknown(t *testing.T) {
	wide := table(t, []string{
		"date_dependency_col_1", "date_stub_YYYY_1", "date_stub_MM_1", "date_stub_DD_1",
		"date_dependency_col_2", "date_stub_YYYY_2", "date_stub_MM_2", "date_stub_DD_2",
		"date_dependency_col_3", "date_stub_YYYY_3", "date_stub_MM_3", "date_stub_DD_3",
	},
		col("No", "Yes"), col("2000", "1900"), col("1", nil), col("1", nil),
		col("No", "Yes"), col("2000", "99"), col("1", nil), col("1", nil),
		col("No", "Yes"), col("2000", "2000"), col("1", "1"), col("1", "1"),
	)

	err := DateUnknown{
		Stub:             "date_stub_",
		Dependency:       "date_dependency_col_",
		DependencyAnswer: "Yes",
		Repeat:           3,
	}.Apply(wide)
	require.NoError(t, err)

	want := map[string][]string{
		"date_stub_YYYY_1":    {"2000", "nan"},
		"date_stub_MM_1":      {"1", "nan"},
		"date_stub_DD_1":      {"1", "nan"},
		"date_stub_YYYY_2":    {"2000", "99"},
		"date_stub_MM_2":      {"1", "99"},
		"date_stub_DD_2":      {"1", "99"},
		"date_stub_YYYY_3":    {"2000", "2000"},
		"date_stub_MM_3":      {"1", "1"},
		"date_stub_DD_3":      {"1", "1"},
		"date_stub_yn_date_1": {"Yes", "No"},
		"date_stub_yn_date_2": {"Yes", "Yes"},
		"date_stub_yn_date_3": {"Yes", "Yes"},
	}
	for name, vals := range want {
		assert.Equal(t, vals, wide.Texts(name), name)
	}
	assert.True(t, wide.Cell(1, "date_stub_YYYY_1").IsNull(), "unknown year with no date becomes null")

	cols := wide.Columns()
	assert.Equal(t, []string{"date_stub_yn_date_1", "date_stub_yn_date_2", "date_stub_yn_date_3"}, cols[len(cols)-3:])
}

func TestDateUnknownLeavesUnansweredAlone(t *testing.T) {
	wide := table(t, []string{"dep_1", "d_YYYY_1", "d_MM_1", "d_DD_1"},
		col("No", nil), col(nil, "1900"), col(nil, nil), col(nil, nil))

	require.NoError(t, DateUnknown{Stub: "d_", Dependency: "dep_", DependencyAnswer: "Yes", Repeat: 1}.Apply(wide))

	assert.Equal(t, []string{"nan", "nan"}, wide.Texts("d_yn_date_1"))
	assert.Equal(t, []string{"nan", "1900"}, wide.Texts("d_YYYY_1"), "1900 is only rewritten under a flag")
}

func TestDateUnknownMissingColumn(t *testing.T) {
	wide := table(t, []string{"dep_1", "d_YYYY_1", "d_MM_1"}, col("Yes"), col("2000"), col("1"))

	err := DateUnknown{Stub: "d_", Dependency: "dep_", DependencyAnswer: "Yes", Repeat: 1}.Apply(wide)

	assert.ErrorIs(t, err, types.ErrColumnNotFound)
	assert.ErrorContains(t, err, "d_DD_1")
}

func TestSpecify(t *testing.T) {
	wide := table(t, []string{"df_label_col", "df_code_col"},
		col("coded_1", "coded_2", "uncoded", "uncoded"),
		col("1", "2", "99", "99"),
	)

	err := Specify{
		Column:      "new_specify_col",
		CodedColumn: "df_code_col",
		LabelColumn: "df_label_col",
		Code:        "99",
		Answer:      "other",
	}.Apply(wide)
	require.NoError(t, err)

	assert.Equal(t, []string{"df_label_col", "df_code_col", "new_specify_col"}, wide.Columns())
	assert.Equal(t, []string{"coded_1", "coded_2", "other", "other"}, wide.Texts("df_label_col"))
	assert.Equal(t, []string{"1", "2", "99", "99"}, wide.Texts("df_code_col"))
	assert.Equal(t, []string{"nan", "nan", "uncoded", "uncoded"}, wide.Texts("new_specify_col"))
	assert.True(t, wide.Cell(0, "new_specify_col").IsNull())
}

func TestSpecifyMissingColumn(t *testing.T) {
	wide := table(t, []string{"label"}, col("x"))

	err := Specify{Column: "s", CodedColumn: "code", LabelColumn: "label", Code: "99"}.Apply(wide)

	assert.ErrorIs(t, err, types.ErrColumnNotFound)
}

func TestSelectSubjects(t *testing.T) {
	wide := table(t, []string{"Subject", "a", "b", "c", "empty"},
		col("10100001", "10100002", "10100003", "10100004"),
		col("x", "x", nil, "x"),
		col("x", nil, "x", "x"),
		col(nil, nil, "x", nil),
		col(nil, nil, nil, nil),
	)
	core, logs := observer.New(zapcore.DebugLevel)

	picked, err := SelectSubjects(wide, SelectOptions{Count: 2, Logger: zap.New(core)})
	require.NoError(t, err)

	// 10100001 and 10100004 tie on one null; the first wins. Only c is left
	// open, which only 10100003 fills.
	assert.Equal(t, []string{"10100001", "10100003"}, picked)
	assert.Equal(t, 2, logs.FilterMessage("Picked subject").Len())
}

func TestSelectSubjectsMaxSubject(t *testing.T) {
	wide := table(t, []string{"Subject", "a"},
		col("10100001", "10100050", "10100002"),
		col(nil, "x", "x"),
	)

	picked, err := SelectSubjects(wide, SelectOptions{Count: 5, MaxSubject: 10100040})
	require.NoError(t, err)

	assert.Equal(t, []string{"10100002", "10100001"}, picked, "runs out of subjects before Count")
}

func TestSelectSubjectsErrors(t *testing.T) {
	_, err := SelectSubjects(table(t, []string{"a"}, col("x")), SelectOptions{Count: 1})
	assert.ErrorIs(t, err, types.ErrColumnNotFound)

	_, err = SelectSubjects(table(t, []string{"Subject"}, col("abc")), SelectOptions{Count: 1, MaxSubject: 10})
	assert.Error(t, err)
}
