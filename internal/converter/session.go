// =============================================================================
// OBS Clinic Migration - Conversion Session
// =============================================================================
//
// A Session owns the converted table of one instrument. It is created from
// the wide Rave table, reshaped and recoded once, then refined by operator
// steps until it is finalized:
//
//   New ──► Reshaped ──► Recoded ──► Mutated ──► Finalized
//                │                      ▲ │
//                └──────────────────────┘ └─► PrepImport / ChangeStr / RemoveNA
//
// Every diagnostic produced along the way is collected on the session and
// logged when it is produced. After Finalize the data can only be read.
//
// =============================================================================

package converter

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/dictionary"
	"github.com/rseeto/obs-clinic-migration/internal/reconcile"
	"github.com/rseeto/obs-clinic-migration/internal/types"
	"github.com/rseeto/obs-clinic-migration/internal/validation"
)

// ErrFinalized is returned by mutating operations after Finalize.
var ErrFinalized = errors.New("session is finalized")

// CompleteDefault is the REDCap "Complete" status.
const CompleteDefault = "2"

// State is the lifecycle position of a Session.
type State int

const (
	StateReshaped State = iota + 1
	StateRecoded
	StateMutated
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateReshaped:
		return "reshaped"
	case StateRecoded:
		return "recoded"
	case StateMutated:
		return "mutated"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Session.
type Options struct {
	// Mappings lists the Rave stubs to convert, in output order.
	Mappings []StubMapping

	// StubRepeat is 0 for single-instance variables, otherwise the expected
	// number of instances per stub.
	StubRepeat int

	// Recode substitutes dictionary codes for labels when true.
	Recode bool

	// MissingTokens stand for null. Nil means DefaultMissingTokens.
	MissingTokens []string

	// Logger receives diagnostics and progress. Nil disables logging.
	Logger *zap.Logger
}

// Correction rewrites mislabelled values of one column.
type Correction struct {
	// Column is the REDCap variable to fix.
	Column string `yaml:"column"`

	// Replace maps each wrong label to its right label. All replacements
	// apply in a single pass, so chains like a->b, b->c do not cascade.
	Replace map[string]string `yaml:"replace"`
}

// Session is one instrument's conversion in progress.
type Session struct {
	data   *types.Table
	dict   *dictionary.Dictionary
	opts   Options
	tokens map[string]bool
	state  State
	diags  *validation.Collector
	logger *zap.Logger
}

// New reshapes the wide table and, if requested, recodes it.
//
// PARAMETERS:
//   - wide: The Rave table. It is not modified.
//   - dict: The REDCap data dictionary. It is shared read-only.
//   - opts: Stub mappings, repeat count and recode switch.
//
// RETURNS:
//   - The session in state Recoded (or Reshaped without recoding).
//   - An error for a negative repeat count or a missing source column.
//     Structural mismatches and recode anomalies are diagnostics, not errors.
func New(wide *types.Table, dict *dictionary.Dictionary, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if dict == nil {
		dict = dictionary.New(nil)
	}

	s := &Session{
		dict:   dict,
		opts:   opts,
		tokens: tokenSet(opts.MissingTokens),
		diags:  validation.NewCollector(logger),
		logger: logger,
	}

	data, err := Reshape(wide, opts.Mappings, opts.StubRepeat, s.diags)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	s.data = data
	s.state = StateReshaped

	if opts.Recode {
		Recode(s.data, dict, opts.MissingTokens, s.diags)
		s.state = StateRecoded
	}

	logger.Info("Converted Rave data",
		zap.Int("subjects", wide.Len()),
		zap.Int("rows", s.data.Len()),
		zap.Int("fields", len(opts.Mappings)),
		zap.Int("stub_repeat", opts.StubRepeat),
		zap.Bool("recoded", opts.Recode),
		zap.Int("diagnostics", len(s.diags.Diagnostics())),
	)
	return s, nil
}

// Data returns a copy of the current table.
func (s *Session) Data() *types.Table {
	return s.data.Clone()
}

// Diagnostics returns every diagnostic collected so far, in order.
func (s *Session) Diagnostics() []validation.Diagnostic {
	return s.diags.Diagnostics()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Finalize freezes the session and returns its table.
func (s *Session) Finalize() *types.Table {
	s.state = StateFinalized
	return s.data.Clone()
}

func (s *Session) mutable() error {
	if s.state == StateFinalized {
		return ErrFinalized
	}
	return nil
}

// =============================================================================
// OPERATOR STEPS
// =============================================================================

// PrepImport adds the REDCap import bookkeeping columns and moves the subject
// key to the front.
//
// PARAMETERS:
//   - eventName: Value of redcap_event_name for every row.
//   - completeColumn: Name of the instrument's "_complete" column; every row
//     is set to CompleteDefault.
//   - repeatInstrument: Value of redcap_repeat_instrument. Empty means the
//     instrument does not repeat and the column is not added.
func (s *Session) PrepImport(eventName, completeColumn, repeatInstrument string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if completeColumn == "" {
		return errors.New("prep import: complete column name is required")
	}

	s.data.Fill(types.EventNameColumn, types.String(eventName))
	s.data.Fill(completeColumn, types.String(CompleteDefault))
	if repeatInstrument != "" {
		s.data.Fill(types.RepeatInstrumentColumn, types.String(repeatInstrument))
	}
	if err := s.data.MoveFirst(types.KeyColumn); err != nil {
		return fmt.Errorf("prep import: %w", err)
	}

	s.state = StateMutated
	s.logger.Debug("Prepared import columns",
		zap.String("event", eventName),
		zap.String("complete_column", completeColumn),
		zap.String("repeat_instrument", repeatInstrument),
	)
	return nil
}

// ChangeStr applies label corrections and recodes the corrected columns.
//
// For each correction the wrong labels are rewritten to their right labels,
// then the column goes through the dictionary again. A column missing from
// the data or the dictionary, or a right label the dictionary does not know,
// is logged as a LookupMiss and the remaining corrections still run.
//
// RETURNS:
//   - The value counts of each corrected column, for operator review.
//   - ErrFinalized after Finalize.
func (s *Session) ChangeStr(corrections []Correction) ([]ColumnCounts, error) {
	if err := s.mutable(); err != nil {
		return nil, err
	}

	var out []ColumnCounts
	for _, c := range corrections {
		if !s.data.HasColumn(c.Column) {
			s.diags.Add(validation.LookupMiss(c.Column, fmt.Errorf("%q: %w", c.Column, types.ErrColumnNotFound)))
			continue
		}

		_ = s.data.Map(c.Column, func(v types.Value) types.Value {
			if v.IsNull() {
				return v
			}
			if right, ok := c.Replace[v.Str()]; ok {
				return types.String(right)
			}
			return v
		})

		s.recodeCorrected(c)
		normalizeColumn(s.data, c.Column, s.tokens)

		counts := ColumnCounts{
			Column: c.Column,
			Counts: valueCounts(s.data, c.Column, s.tokens),
			Nulls:  countNulls(s.data, c.Column),
		}
		out = append(out, counts)
		s.logger.Info("Corrected column",
			zap.String("column", c.Column),
			zap.Int("replacements", len(c.Replace)),
			zap.Any("value_counts", counts.Counts),
			zap.Int("nulls", counts.Nulls),
		)
	}

	s.state = StateMutated
	return out, nil
}

// recodeCorrected runs the dictionary over one corrected column.
func (s *Session) recodeCorrected(c Correction) {
	scheme, err := s.dict.Scheme(c.Column)
	if err != nil {
		s.diags.Add(validation.LookupMiss(c.Column, err))
		return
	}
	if scheme == nil {
		s.diags.Add(validation.LookupMiss(c.Column, fmt.Errorf("variable %q has no coding in the data dictionary", c.Column)))
		return
	}
	for _, right := range sortedValues(c.Replace) {
		if _, ok := scheme.Code(right); !ok {
			s.diags.Add(validation.LookupMiss(c.Column, fmt.Errorf("label %q is not in the coding of %q", right, c.Column)))
		}
	}
	if err := recodeColumn(s.data, c.Column, scheme); err != nil {
		s.diags.Add(validation.ColumnFailure(c.Column, err))
	}
}

// RemoveNA drops rows that carry no data: every column other than the
// subject key and repeat instance is null, a missing token or ZeroToken.
// A table with no such column is left alone.
func (s *Session) RemoveNA() error {
	if err := s.mutable(); err != nil {
		return err
	}

	var meaningful []string
	for _, col := range s.data.Columns() {
		if col != types.KeyColumn && col != types.RepeatInstanceColumn {
			meaningful = append(meaningful, col)
		}
	}
	if len(meaningful) > 0 {
		before := s.data.Len()
		s.data = s.data.Filter(func(r int) bool {
			for _, col := range meaningful {
				v := s.data.Cell(r, col)
				if v.IsNull() || s.tokens[v.Str()] || v.Str() == ZeroToken {
					continue
				}
				return true
			}
			return false
		})
		s.logger.Debug("Removed empty rows", zap.Int("removed", before-s.data.Len()))
	}

	s.state = StateMutated
	return nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// CompareDDE compares the session data with independently entered data.
// See reconcile.Compare. The session is not modified.
func (s *Session) CompareDDE(external *types.Table, ignoreColumns []string) (*types.Table, error) {
	return reconcile.Compare(s.data, external, reconcile.Options{
		IgnoreColumns: ignoreColumns,
		Logger:        s.logger,
	})
}

// FindColumnIssues locates the subject and column of each disagreement with
// the independently entered data. The issues are also recorded on the
// session.
func (s *Session) FindColumnIssues(external *types.Table, ignoreColumns []string) ([]validation.Diagnostic, error) {
	issues, err := reconcile.FindColumnIssues(s.data, external, reconcile.Options{
		IgnoreColumns: ignoreColumns,
		Logger:        s.logger.Named("issues"),
	})
	if err != nil {
		return nil, err
	}
	s.diags.Append(issues...)
	return issues, nil
}

func sortedValues(m map[string]string) []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
