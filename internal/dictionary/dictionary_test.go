package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

func TestFromPairs(t *testing.T) {
	d := FromPairs([][2]string{
		{"incl_main_ga", "1, No | 2, Yes"},
		{"comments", ""},
		{"broken", "1 No"},
		{"incl_main_ga", "9, Ignored"},
	})

	assert.Equal(t, []string{"incl_main_ga", "comments", "broken"}, d.Variables())

	s, err := d.Scheme("incl_main_ga")
	require.NoError(t, err)
	code, _ := s.Code("Yes")
	assert.Equal(t, "2", code, "first entry wins")
	assert.True(t, d.ExpectNumeric("incl_main_ga"))

	s, err = d.Scheme("comments")
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, d.ExpectNumeric("comments"))

	_, err = d.Scheme("broken")
	assert.ErrorIs(t, err, ErrMalformedEntry)

	s, err = d.Scheme("absent")
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestFromTable(t *testing.T) {
	tbl, err := types.FromRows(
		[]string{ColumnVariable, ColumnFieldType, ColumnChoices, ColumnValidation},
		[][]string{
			{"obs_id", "text", "", ""},
			{"incl_main_ga", "radio", "1, No | 2, Yes", ""},
			{"bmi", "calc", "[weight]/([height]*[height])", ""},
			{"age", "text", "", "integer"},
			{"weight", "text", "", "number_1dp"},
			{"notes", "notes", "", ""},
			{"pain", "slider", "None | | Worst", ""},
		},
	)
	require.NoError(t, err)

	d, err := FromTable(tbl)
	require.NoError(t, err)

	s, err := d.Scheme("incl_main_ga")
	require.NoError(t, err)
	require.NotNil(t, s)

	s, err = d.Scheme("bmi")
	assert.NoError(t, err, "calc formulas are not codings")
	assert.Nil(t, s)
	_, err = d.Scheme("pain")
	assert.NoError(t, err, "slider labels are not codings")

	assert.True(t, d.ExpectNumeric("incl_main_ga"))
	assert.True(t, d.ExpectNumeric("bmi"))
	assert.True(t, d.ExpectNumeric("age"))
	assert.True(t, d.ExpectNumeric("weight"))
	assert.False(t, d.ExpectNumeric("obs_id"))
	assert.False(t, d.ExpectNumeric("notes"))

	e, ok := d.Entry("age")
	require.True(t, ok)
	assert.Equal(t, "integer", e.Validation)
}

func TestFromTableMissingColumn(t *testing.T) {
	tbl, err := types.FromRows([]string{ColumnVariable}, [][]string{{"x"}})
	require.NoError(t, err)
	_, err = FromTable(tbl)
	assert.ErrorIs(t, err, types.ErrColumnNotFound)
}

func TestWithNumericOverrides(t *testing.T) {
	d := FromPairs([][2]string{{"incl_main_ga", "1, No | 2, Yes"}})
	o := d.WithNumericOverrides(map[string]bool{"incl_main_ga": false, "visit_count": true})

	assert.False(t, o.ExpectNumeric("incl_main_ga"))
	assert.True(t, o.ExpectNumeric("visit_count"))
	assert.True(t, d.ExpectNumeric("incl_main_ga"), "original is unchanged")
	assert.Equal(t, 2, o.Len())

	s, err := o.Scheme("incl_main_ga")
	require.NoError(t, err)
	assert.NotNil(t, s, "coding survives the override")
}
