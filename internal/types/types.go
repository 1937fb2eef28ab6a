// =============================================================================
// OBS Clinic Migration - Shared Types
// =============================================================================
//
// This package contains the tabular types shared by every module to avoid
// import cycles. Types defined here are used by:
//   - dictionary
//   - converter
//   - reconcile
//   - preprocess
//   - csvparser / xlsxparser / xmlwriter
//
// Every cell is text. Numeric-looking values are never converted: the
// recoding and comparison logic is defined over their textual form.
//
// =============================================================================

package types

// =============================================================================
// WELL-KNOWN COLUMN NAMES
// =============================================================================

const (
	// SourceKey is the subject identifier column in the Rave export.
	SourceKey = "Subject"

	// KeyColumn is the subject identifier column in REDCap.
	// REDCap rejects an import whose first column is not the record id.
	KeyColumn = "obs_id"

	// RepeatInstanceColumn holds the 1-based instance number of a repeating
	// instrument. It is always string typed.
	RepeatInstanceColumn = "redcap_repeat_instance"

	// RepeatInstrumentColumn names the repeating instrument of a row.
	RepeatInstrumentColumn = "redcap_repeat_instrument"

	// EventNameColumn names the REDCap event a row belongs to.
	EventNameColumn = "redcap_event_name"

	// SourceColumn tags each row of a reconciliation result with its origin.
	SourceColumn = "Source"
)

// IsKeyColumn reports whether name identifies a record rather than holding
// data: the subject key or the repeat instance.
func IsKeyColumn(name string) bool {
	return name == KeyColumn || name == RepeatInstanceColumn
}

// =============================================================================
// VALUE
// =============================================================================

// Value is a single cell. A Value is either a string or null; the empty
// string is a valid, non-null value.
type Value struct {
	s     string
	valid bool
}

// String returns a non-null Value holding s.
func String(s string) Value {
	return Value{s: s, valid: true}
}

// Null returns the null Value.
func Null() Value {
	return Value{}
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool {
	return !v.valid
}

// Str returns the text of v, or "" when v is null.
func (v Value) Str() string {
	return v.s
}

// Text returns the text of v with null rendered as "nan", the token the
// comparison logic uses when both sides are forced to text.
func (v Value) Text() string {
	if !v.valid {
		return "nan"
	}
	return v.s
}

// Equal reports whether two values are both null or hold the same text.
func (v Value) Equal(o Value) bool {
	return v.valid == o.valid && v.s == o.s
}

// GoString makes test diffs readable.
func (v Value) GoString() string {
	if !v.valid {
		return "<null>"
	}
	return "\"" + v.s + "\""
}

// Strings converts a list of strings to non-null Values.
func Strings(ss ...string) []Value {
	out := make([]Value, len(ss))
	for i, s := range ss {
		out[i] = String(s)
	}
	return out
}
