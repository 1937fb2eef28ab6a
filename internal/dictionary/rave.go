package dictionary

import (
	"fmt"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// Rave data dictionary export columns.
const (
	RaveColumnDictionaryName = "DataDictionaryName"
	RaveColumnCodedData      = "CodedData"
	RaveColumnUserString     = "UserDataString"
	RaveColumnVariableOID    = "VariableOID"
)

// RaveDictionary resolves Rave coded values back to their labels. Some Rave
// export columns hold codes rather than labels; they are turned into labels
// before the REDCap recoding so both sides go through the same dictionary.
//
// The CodedData column is used as the code, not Ordinal: the flat export
// codes "Not applicable" as 9 in some fields regardless of ordinal.
type RaveDictionary struct {
	labels    map[string]map[string]string // dictionary name -> code -> label
	variables map[string]string            // variable OID -> dictionary name
}

// NewRaveDictionary builds a RaveDictionary from the entries and fields
// sheets of a Rave data dictionary export.
func NewRaveDictionary(entries, fields *types.Table) (*RaveDictionary, error) {
	for _, col := range []string{RaveColumnDictionaryName, RaveColumnCodedData, RaveColumnUserString} {
		if !entries.HasColumn(col) {
			return nil, fmt.Errorf("rave entries: %q: %w", col, types.ErrColumnNotFound)
		}
	}
	for _, col := range []string{RaveColumnVariableOID, RaveColumnDictionaryName} {
		if !fields.HasColumn(col) {
			return nil, fmt.Errorf("rave fields: %q: %w", col, types.ErrColumnNotFound)
		}
	}

	rd := &RaveDictionary{
		labels:    make(map[string]map[string]string),
		variables: make(map[string]string),
	}
	for r := 0; r < entries.Len(); r++ {
		name := entries.Cell(r, RaveColumnDictionaryName).Str()
		if rd.labels[name] == nil {
			rd.labels[name] = make(map[string]string)
		}
		rd.labels[name][entries.Cell(r, RaveColumnCodedData).Str()] = entries.Cell(r, RaveColumnUserString).Str()
	}
	for r := 0; r < fields.Len(); r++ {
		oid := fields.Cell(r, RaveColumnVariableOID).Str()
		if _, seen := rd.variables[oid]; !seen {
			rd.variables[oid] = fields.Cell(r, RaveColumnDictionaryName).Str()
		}
	}
	return rd, nil
}

// CodeLabels returns the code -> label map of a named Rave dictionary
// (for example "noyes").
func (rd *RaveDictionary) CodeLabels(name string) map[string]string {
	out := make(map[string]string, len(rd.labels[name]))
	for k, v := range rd.labels[name] {
		out[k] = v
	}
	return out
}

// LabelColumn replaces the codes of a Rave column with their labels, using
// the dictionary the variable is bound to. Unknown codes pass through.
//
// RETURNS:
//   - The number of values replaced.
//   - An error if the column or the variable binding is missing.
func (rd *RaveDictionary) LabelColumn(t *types.Table, column, variableOID string) (int, error) {
	name, ok := rd.variables[variableOID]
	if !ok {
		return 0, fmt.Errorf("rave variable %q has no data dictionary", variableOID)
	}
	labels := rd.labels[name]
	replaced := 0
	err := t.Map(column, func(v types.Value) types.Value {
		if v.IsNull() {
			return v
		}
		if label, ok := labels[v.Str()]; ok {
			replaced++
			return types.String(label)
		}
		return v
	})
	return replaced, err
}
