// =============================================================================
// OBS Clinic Migration - Diagnostics
// =============================================================================
//
// The conversion is operator driven: run, inspect diagnostics, correct,
// re-run. Nothing on the core path is fatal. Every problem the pipeline
// notices becomes a Diagnostic that is both logged and returned to the
// caller.
//
// DIAGNOSTIC KINDS:
//   - structural_mismatch : observed max repeat instance != declared repeats
//   - recode_anomaly      : a non-numeric value survived recoding
//   - column_failure      : recoding one column failed (bad dictionary row)
//   - lookup_miss         : a manual correction could not be applied
//   - column_issue        : a subject/column pair disagrees between sources
//
// A value that matches no label passes through unchanged. That is how
// label drift propagates; the anomaly check is the only guard against it
// and is a known, accepted risk.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// DIAGNOSTIC TYPES
// =============================================================================

// Kind classifies a diagnostic.
type Kind string

const (
	KindStructuralMismatch Kind = "structural_mismatch"
	KindRecodeAnomaly      Kind = "recode_anomaly"
	KindColumnFailure      Kind = "column_failure"
	KindLookupMiss         Kind = "lookup_miss"
	KindColumnIssue        Kind = "column_issue"
)

// Severity is "warning" for expected operator follow-ups and "error" for
// failures that skipped work. Neither stops the run.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a single non-fatal finding.
type Diagnostic struct {
	// Kind classifies the finding.
	Kind Kind

	// Severity indicates whether work was skipped.
	Severity Severity

	// Column is the variable the finding is about, if any.
	Column string

	// Value is the offending value, if any.
	Value string

	// Subject is the obs_id the finding is about, if any.
	Subject string

	// Message is the operator-facing text.
	Message string

	// Err is the underlying error for failures.
	Err error
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(d.Severity)), d.Message)
}

// Unwrap returns the underlying error.
func (d Diagnostic) Unwrap() error {
	return d.Err
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// StructuralMismatch reports that the highest repeat instance left after
// dropping blank rows differs from the declared number of repeats.
func StructuralMismatch(observed, declared int) Diagnostic {
	return Diagnostic{
		Kind:     KindStructuralMismatch,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("max redcap_repeat_instance = %d; stub_repeat = %d", observed, declared),
	}
}

// RecodeAnomaly reports a value that is not numeric after recoding.
func RecodeAnomaly(column, value string) Diagnostic {
	return Diagnostic{
		Kind:     KindRecodeAnomaly,
		Severity: SeverityWarning,
		Column:   column,
		Value:    value,
		Message:  fmt.Sprintf("Column '%s' has an issue with the variable '%s'.", column, value),
	}
}

// ColumnFailure reports that recoding a column failed and was skipped.
func ColumnFailure(column string, err error) Diagnostic {
	return Diagnostic{
		Kind:     KindColumnFailure,
		Severity: SeverityError,
		Column:   column,
		Message:  fmt.Sprintf("Column '%s' could not be recoded: %v", column, err),
		Err:      err,
	}
}

// LookupMiss reports a correction that could not be applied.
func LookupMiss(column string, err error) Diagnostic {
	return Diagnostic{
		Kind:     KindLookupMiss,
		Severity: SeverityError,
		Column:   column,
		Message:  fmt.Sprintf("Column '%s' could not be corrected: %v", column, err),
		Err:      err,
	}
}

// ColumnIssue reports a subject/column pair that disagrees between the
// converted data and the double data entry.
func ColumnIssue(subject, column string) Diagnostic {
	return Diagnostic{
		Kind:     KindColumnIssue,
		Severity: SeverityWarning,
		Column:   column,
		Subject:  subject,
		Message:  fmt.Sprintf("Subject '%s' has an issue with the column '%s'.", subject, column),
	}
}

// =============================================================================
// COLLECTOR
// =============================================================================

// Collector logs diagnostics as they are found and keeps them for the
// caller.
type Collector struct {
	logger *zap.Logger
	items  []Diagnostic
}

// NewCollector returns a Collector logging to logger. A nil logger
// discards log output.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

// Add records and logs d.
func (c *Collector) Add(d Diagnostic) {
	c.items = append(c.items, d)

	fields := []zap.Field{zap.String("kind", string(d.Kind))}
	if d.Column != "" {
		fields = append(fields, zap.String("column", d.Column))
	}
	if d.Value != "" {
		fields = append(fields, zap.String("value", d.Value))
	}
	if d.Subject != "" {
		fields = append(fields, zap.String("subject", d.Subject))
	}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
	}

	if d.Severity == SeverityError {
		c.logger.Error(d.Message, fields...)
		return
	}
	c.logger.Warn(d.Message, fields...)
}

// Extend records and logs every diagnostic in ds.
func (c *Collector) Extend(ds []Diagnostic) {
	for _, d := range ds {
		c.Add(d)
	}
}

// Append records diagnostics that were already logged elsewhere.
func (c *Collector) Append(ds ...Diagnostic) {
	c.items = append(c.items, ds...)
}

// Diagnostics returns a copy of the recorded diagnostics.
func (c *Collector) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), c.items...)
}

// =============================================================================
// FORMATTING
// =============================================================================

// Filter returns the diagnostics of the given kind.
func Filter(ds []Diagnostic, kind Kind) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Format renders diagnostics as a numbered list for display or logging.
func Format(ds []Diagnostic) string {
	if len(ds) == 0 {
		return "No diagnostics."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversion completed with %d diagnostic(s):\n\n", len(ds))
	for i, d := range ds {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Error())
	}
	return b.String()
}
