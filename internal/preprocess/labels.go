package preprocess

import (
	"fmt"

	"github.com/rseeto/obs-clinic-migration/internal/dictionary"
	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// RaveLabel turns a Rave column that holds codes back into labels, so it
// recodes against the REDCap dictionary like every other column.
type RaveLabel struct {
	// Column is the wide Rave column.
	Column string `yaml:"column"`

	// VariableOID is the Rave variable the column belongs to.
	// Default: Column
	VariableOID string `yaml:"variable_oid"`
}

// Apply replaces the codes of Column with their labels (in place).
//
// RETURNS:
//   - The number of values replaced.
//   - An error if the column is missing or the variable has no Rave data
//     dictionary.
func (l RaveLabel) Apply(t *types.Table, rd *dictionary.RaveDictionary) (int, error) {
	if rd == nil {
		return 0, fmt.Errorf("rave label %q: no Rave data dictionary loaded", l.Column)
	}
	oid := l.VariableOID
	if oid == "" {
		oid = l.Column
	}
	n, err := rd.LabelColumn(t, l.Column, oid)
	if err != nil {
		return 0, fmt.Errorf("rave label %q: %w", l.Column, err)
	}
	return n, nil
}
