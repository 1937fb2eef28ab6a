package converter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rseeto/obs-clinic-migration/internal/dictionary"
	"github.com/rseeto/obs-clinic-migration/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// yesNo is the coding of every inclusion variable in the fixtures.
const yesNo = "1, No | 2, Yes"

func testDictionary() *dictionary.Dictionary {
	return dictionary.FromPairs([][2]string{
		{"incl_main_ga", yesNo},
		{"incl_main_eng", yesNo},
		{"incl_main_age", yesNo},
	})
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

func assertTable(t *testing.T, want, got *types.Table) {
	t.Helper()
	if diff := cmp.Diff(want.Columns(), got.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	for _, name := range want.Columns() {
		w, _ := want.Column(name)
		g, _ := got.Column(name)
		if diff := cmp.Diff(w, g); diff != "" {
			t.Errorf("column %q mismatch (-want +got):\n%s", name, diff)
		}
	}
}
