package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/config"
	"github.com/rseeto/obs-clinic-migration/internal/converter"
	"github.com/rseeto/obs-clinic-migration/internal/csvparser"
	"github.com/rseeto/obs-clinic-migration/internal/dictionary"
	"github.com/rseeto/obs-clinic-migration/internal/preprocess"
	"github.com/rseeto/obs-clinic-migration/internal/types"
	"github.com/rseeto/obs-clinic-migration/internal/validation"
	"github.com/rseeto/obs-clinic-migration/internal/xlsxparser"
	"github.com/rseeto/obs-clinic-migration/pkg/utils"
)

const raveCSV = `Subject,INCL_GA,MEDHX_1,MEDHX_2,MEDHX_CODE_1,MEDHX_CODE_2
10100001,Yes,Asthma,Diabetes mellitus,1,2
10100002,No,Rash,,99,
`

func testInputs(t *testing.T, format string) *inputs {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rave.csv")
	require.NoError(t, os.WriteFile(path, []byte(raveCSV), 0o644))
	wide, err := loadTable(path)
	require.NoError(t, err)

	return &inputs{
		main: &config.MainConfig{
			OutputFormat:   format,
			FileNameFormat: "{instrument}",
			MissingTokens:  converter.DefaultMissingTokens,
		},
		wide: wide,
		dict: dictionary.FromPairs([][2]string{
			{"incl_main_ga", "1, No | 2, Yes"},
			{"medhx", "1, Asthma | 2, Diabetes | 3, Other"},
		}),
	}
}

func medicalHistory() *config.InstrumentConfig {
	return &config.InstrumentConfig{
		Name:             "medical_history",
		Stubs:            []converter.StubMapping{{Stub: "MEDHX_", Field: "medhx"}, {Stub: "MEDHX_CODE_", Field: "medhx_code"}},
		StubRepeat:       2,
		EventName:        "baseline_arm_1",
		CompleteColumn:   "medical_history_complete",
		RepeatInstrument: "medical_history",
		Specify: []preprocess.Specify{{
			Column: "MEDHX_OTHER_1", CodedColumn: "MEDHX_CODE_1", LabelColumn: "MEDHX_1", Code: "99", Answer: "Other",
		}},
		Corrections: []converter.Correction{{Column: "medhx", Replace: map[string]string{"Diabetes mellitus": "Diabetes"}}},
		RemoveNA:    true,
	}
}

func TestLoadTableXLSXSheet(t *testing.T) {
	tbl, err := types.FromColumns([]string{"a"}, [][]types.Value{{types.String("x")}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dict.xlsx")
	require.NoError(t, xlsxparser.WriteReport(path, []xlsxparser.Sheet{{Name: "First", Table: tbl}, {Name: "Fields", Table: tbl}}))

	got, err := loadTable(path + "#Fields")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Texts("a"))

	_, err = loadTable("")
	assert.Error(t, err)
}

func TestBuildSession(t *testing.T) {
	in := testInputs(t, config.FormatCSV)

	session, err := buildSession(in, medicalHistory(), zap.NewNop())
	require.NoError(t, err)

	data := session.Data()
	assert.Equal(t, []string{"10100001", "10100002", "10100001"}, data.Texts("obs_id"))
	assert.Equal(t, []string{"1", "3", "2"}, data.Texts("medhx"))
	assert.Equal(t, converter.StateMutated, session.State())
	assert.False(t, in.wide.HasColumn("MEDHX_OTHER_1"), "preprocessing runs on a copy")
	assert.Equal(t, []string{"Asthma", "Rash"}, in.wide.Texts("MEDHX_1"))

	misses := validation.Filter(session.Diagnostics(), validation.KindLookupMiss)
	assert.Len(t, misses, 0)
}

func TestConvertInstrumentCSV(t *testing.T) {
	in := testInputs(t, config.FormatCSV)
	fm := &utils.FileManager{OutputDir: t.TempDir(), RunID: "run"}

	result, _ := convertInstrument(in, medicalHistory(), fm)
	require.NoError(t, result.Err)

	assert.Equal(t, filepath.Join(fm.OutputDir, "medical_history.csv"), result.OutputFile)
	assert.Equal(t, 3, result.Rows)

	written, err := csvparser.Parse(result.OutputFile, csvparser.Settings{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"obs_id", "redcap_repeat_instance", "medhx", "medhx_code",
		"redcap_event_name", "medical_history_complete", "redcap_repeat_instrument",
	}, written.Columns())
	assert.Equal(t, []string{"2", "2", "2"}, written.Texts("medical_history_complete"))
}

func TestConvertInstrumentXML(t *testing.T) {
	in := testInputs(t, config.FormatXML)
	fm := &utils.FileManager{OutputDir: t.TempDir(), RunID: "run"}

	result, _ := convertInstrument(in, medicalHistory(), fm)
	require.NoError(t, result.Err)

	doc, err := os.ReadFile(result.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<medhx><![CDATA[3]]></medhx>")
}

func TestConvertInstrumentFailure(t *testing.T) {
	in := testInputs(t, config.FormatCSV)
	ic := medicalHistory()
	ic.StubRepeat = 3

	result, _ := convertInstrument(in, ic, &utils.FileManager{OutputDir: t.TempDir()})

	assert.ErrorIs(t, result.Err, converter.ErrMissingColumn)
}

func TestSelectInstruments(t *testing.T) {
	all := []*config.InstrumentConfig{{Name: "a"}, {Name: "b"}}

	got, err := selectInstruments(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = selectInstruments(all, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, "b", got[0].Name)

	_, err = selectInstruments(all, []string{"c"})
	assert.ErrorContains(t, err, `unknown instrument "c"`)
}

func TestIssuesTable(t *testing.T) {
	tbl, err := issuesTable([]string{"medical_history"}, []validation.Diagnostic{validation.ColumnIssue("10100001", "medhx")})
	require.NoError(t, err)

	assert.Equal(t, []string{"instrument", "obs_id", "column", "message"}, tbl.Columns())
	assert.Equal(t, []string{"medical_history"}, tbl.Texts("instrument"))
	assert.Equal(t, []string{"10100001"}, tbl.Texts("obs_id"))
	assert.Equal(t, []string{"medhx"}, tbl.Texts("column"))
}

func TestBuildSessionRaveLabels(t *testing.T) {
	wide, err := types.FromColumns([]string{"Subject", "INCL_GA"}, [][]types.Value{
		types.Strings("10100001", "10100002"),
		types.Strings("1", "0"),
	})
	require.NoError(t, err)
	entries, err := types.FromRows(
		[]string{dictionary.RaveColumnDictionaryName, dictionary.RaveColumnCodedData, dictionary.RaveColumnUserString},
		[][]string{{"noyes", "0", "No"}, {"noyes", "1", "Yes"}},
	)
	require.NoError(t, err)
	fields, err := types.FromRows(
		[]string{dictionary.RaveColumnVariableOID, dictionary.RaveColumnDictionaryName},
		[][]string{{"INCL_GA", "noyes"}},
	)
	require.NoError(t, err)
	rave, err := dictionary.NewRaveDictionary(entries, fields)
	require.NoError(t, err)

	in := &inputs{
		main: &config.MainConfig{},
		wide: wide,
		dict: dictionary.FromPairs([][2]string{{"incl_main_ga", "1, No | 2, Yes"}}),
		rave: rave,
	}
	ic := &config.InstrumentConfig{
		Name:       "inclusion",
		Stubs:      []converter.StubMapping{{Stub: "INCL_GA", Field: "incl_main_ga"}},
		RaveLabels: []preprocess.RaveLabel{{Column: "INCL_GA"}},
	}

	session, err := buildSession(in, ic, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, session.Data().Texts("incl_main_ga"))

	in.rave = nil
	_, err = buildSession(in, ic, zap.NewNop())
	assert.ErrorContains(t, err, "no Rave data dictionary")
}
