package preprocess

import (
	"fmt"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// Specify splits "please specify" answers out of a Rave label column.
//
// Rave stores the free text of an "Other, please specify" answer in the
// label column itself. REDCap has a separate text field for it, and the
// label column must hold the canonical answer so it recodes.
type Specify struct {
	// Column is the new free text column.
	Column string `yaml:"column"`

	// CodedColumn holds the Rave codes.
	CodedColumn string `yaml:"coded_column"`

	// LabelColumn holds the Rave labels, including the free text.
	LabelColumn string `yaml:"label_column"`

	// Code is the coded value of the "please specify" answer.
	Code string `yaml:"code"`

	// Answer replaces the free text in LabelColumn. It should be a label
	// of the REDCap coding.
	Answer string `yaml:"answer"`
}

// Apply adds Column and rewrites LabelColumn where CodedColumn equals Code
// (in place). Other rows get a null in Column.
func (s Specify) Apply(t *types.Table) error {
	coded, ok := t.Column(s.CodedColumn)
	if !ok {
		return fmt.Errorf("specify: %q: %w", s.CodedColumn, types.ErrColumnNotFound)
	}
	labels, ok := t.Column(s.LabelColumn)
	if !ok {
		return fmt.Errorf("specify: %q: %w", s.LabelColumn, types.ErrColumnNotFound)
	}

	specified := make([]types.Value, t.Len())
	for r, c := range coded {
		if c.IsNull() || c.Str() != s.Code {
			continue
		}
		specified[r] = labels[r]
		labels[r] = types.String(s.Answer)
	}

	if err := t.SetColumn(s.Column, specified); err != nil {
		return fmt.Errorf("specify: %w", err)
	}
	if err := t.SetColumn(s.LabelColumn, labels); err != nil {
		return fmt.Errorf("specify: %w", err)
	}
	return nil
}
