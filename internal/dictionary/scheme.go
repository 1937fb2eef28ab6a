// =============================================================================
// OBS Clinic Migration - Coding Schemes
// =============================================================================
//
// A REDCap data dictionary stores the coding of a categorical variable in its
// "Choices, Calculations, OR Slider Labels" column as a single string:
//
//   1, No | 2, Yes | 99, Don't know, or unsure
//
// Entries are separated by a bar. Within an entry the FIRST comma separates
// the code from the label, so labels may contain commas. Labels may NOT
// contain a bar: the format has no escape, so a bar always starts a new
// entry. This is a hard constraint of the REDCap format, not something this
// package tries to disambiguate.
//
// =============================================================================

package dictionary

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMalformedEntry is returned when an entry has no comma, or an empty
	// code or label.
	ErrMalformedEntry = errors.New("malformed coding entry")

	// ErrDuplicateLabel is returned when a label appears twice in one coding
	// string. Lookup by label must yield exactly one code.
	ErrDuplicateLabel = errors.New("duplicate label")
)

// =============================================================================
// SCHEME
// =============================================================================

// Scheme is a bidirectional label <-> code mapping for one variable.
type Scheme struct {
	codes  map[string]string // label -> code
	labels map[string]string // code -> label
	order  []string          // labels in declaration order
}

// Parse converts a coding string into a Scheme.
//
// PARAMETERS:
//   - coding: A string of the form "code1, label1 | code2, label2".
//
// RETURNS:
//   - The scheme, with labels and codes trimmed of surrounding whitespace.
//     An empty or blank coding string yields (nil, nil): no scheme.
//   - ErrMalformedEntry or ErrDuplicateLabel, wrapped with the entry text.
//
// A label containing a literal "|" cannot be represented; it is split into
// two entries and the second normally fails with ErrMalformedEntry.
func Parse(coding string) (*Scheme, error) {
	if strings.TrimSpace(coding) == "" {
		return nil, nil
	}

	s := &Scheme{
		codes:  make(map[string]string),
		labels: make(map[string]string),
	}

	for _, entry := range strings.Split(coding, "|") {
		code, label, ok := strings.Cut(entry, ",")
		code = strings.TrimSpace(code)
		label = strings.TrimSpace(label)
		if !ok || code == "" || label == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedEntry, strings.TrimSpace(entry))
		}
		if _, dup := s.codes[label]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
		}
		s.codes[label] = code
		// A code reused for two labels keeps its first label.
		if _, seen := s.labels[code]; !seen {
			s.labels[code] = label
		}
		s.order = append(s.order, label)
	}

	return s, nil
}

// MustParse is like Parse but panics on error. It is intended for fixtures.
func MustParse(coding string) *Scheme {
	s, err := Parse(coding)
	if err != nil {
		panic(err)
	}
	return s
}

// Code returns the code for a label.
func (s *Scheme) Code(label string) (string, bool) {
	code, ok := s.codes[label]
	return code, ok
}

// Label returns the label for a code.
func (s *Scheme) Label(code string) (string, bool) {
	label, ok := s.labels[code]
	return label, ok
}

// Labels returns the labels in declaration order.
func (s *Scheme) Labels() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of entries.
func (s *Scheme) Len() int {
	return len(s.order)
}

// LabelToCode returns a copy of the label -> code mapping.
func (s *Scheme) LabelToCode() map[string]string {
	out := make(map[string]string, len(s.codes))
	for k, v := range s.codes {
		out[k] = v
	}
	return out
}
