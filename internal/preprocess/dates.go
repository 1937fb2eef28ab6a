// =============================================================================
// OBS Clinic Migration - Rave Preprocessing
// =============================================================================
//
// Rave and REDCap do not model every variable the same way. The steps in
// this package rewrite the wide Rave table before conversion so that it
// carries the columns REDCap expects:
//
//   RaveLabel   : turn coded Rave columns back into labels
//   DateUnknown : derive the "date available" flag of partial dates
//   Specify     : split "please specify" free text into its own column
//
// SelectSubjects picks the subjects to double enter for reconciliation.
//
// All steps work on the wide table in place.
//
// =============================================================================

package preprocess

import (
	"fmt"
	"strconv"

	"github.com/rseeto/obs-clinic-migration/internal/types"
)

// Date part suffixes of a Rave partial date, and the REDCap answers used
// for it.
const (
	YearSuffix  = "YYYY_"
	MonthSuffix = "MM_"
	DaySuffix   = "DD_"

	// FlagSuffix names the derived flag column: <stub>yn_date_<k>.
	FlagSuffix = "yn_date_"

	// UnknownYear is what Rave sites entered when the year was unknown.
	UnknownYear = "1900"

	// DontKnow is the REDCap "don't know" code for date parts.
	DontKnow = "99"

	AnswerYes = "Yes"
	AnswerNo  = "No"
)

// DateUnknown describes one partial date field of a repeated Rave form.
type DateUnknown struct {
	// Stub is the date column stub, for example "ONSET_YR_" for
	// ONSET_YR_YYYY_1, ONSET_YR_MM_1 and ONSET_YR_DD_1.
	Stub string `yaml:"stub"`

	// Dependency is the stub of the question that decides whether the date
	// is needed, for example "MEDHX_NY_".
	Dependency string `yaml:"dependency"`

	// DependencyAnswer is the answer to Dependency that requires a date.
	DependencyAnswer string `yaml:"dependency_answer"`

	// Repeat is the number of instances of the form.
	Repeat int `yaml:"repeat"`
}

// Apply adds the <Stub>yn_date_<k> flag for k = 1..Repeat and rewrites the
// date parts to REDCap conventions (in place).
//
// For each instance:
//   - The flag is "Yes" when the year is present and not 1900, or the month
//     or day is present.
//   - Otherwise the flag is "No" when the dependency holds the required
//     answer; the date was needed but unknown.
//   - Under "Yes" a 1900 year becomes 99 and a missing month or day becomes
//     99. Under "No" a 1900 year becomes null.
//
// RETURNS:
//   - An error if one of the columns is missing.
func (d DateUnknown) Apply(t *types.Table) error {
	for k := 1; k <= d.Repeat; k++ {
		n := strconv.Itoa(k)
		yearCol := d.Stub + YearSuffix + n
		monthCol := d.Stub + MonthSuffix + n
		dayCol := d.Stub + DaySuffix + n
		depCol := d.Dependency + n

		year, ok := t.Column(yearCol)
		if !ok {
			return fmt.Errorf("date unknown: %q: %w", yearCol, types.ErrColumnNotFound)
		}
		month, ok := t.Column(monthCol)
		if !ok {
			return fmt.Errorf("date unknown: %q: %w", monthCol, types.ErrColumnNotFound)
		}
		day, ok := t.Column(dayCol)
		if !ok {
			return fmt.Errorf("date unknown: %q: %w", dayCol, types.ErrColumnNotFound)
		}
		dep, ok := t.Column(depCol)
		if !ok {
			return fmt.Errorf("date unknown: %q: %w", depCol, types.ErrColumnNotFound)
		}

		flag, _ := t.Column(d.Stub + FlagSuffix + n)
		if flag == nil {
			flag = make([]types.Value, t.Len())
		}

		for r := range flag {
			known := (!year[r].IsNull() && year[r].Str() != UnknownYear) ||
				!month[r].IsNull() || !day[r].IsNull()
			switch {
			case known:
				flag[r] = types.String(AnswerYes)
			case flag[r].IsNull() && !dep[r].IsNull() && dep[r].Str() == d.DependencyAnswer:
				flag[r] = types.String(AnswerNo)
			}

			switch flag[r].Str() {
			case AnswerYes:
				if year[r].Str() == UnknownYear {
					year[r] = types.String(DontKnow)
				}
				if month[r].IsNull() {
					month[r] = types.String(DontKnow)
				}
				if day[r].IsNull() {
					day[r] = types.String(DontKnow)
				}
			case AnswerNo:
				if year[r].Str() == UnknownYear {
					year[r] = types.Null()
				}
			}
		}

		for name, vals := range map[string][]types.Value{yearCol: year, monthCol: month, dayCol: day} {
			if err := t.SetColumn(name, vals); err != nil {
				return fmt.Errorf("date unknown: %w", err)
			}
		}
		if err := t.SetColumn(d.Stub+FlagSuffix+n, flag); err != nil {
			return fmt.Errorf("date unknown: %w", err)
		}
	}
	return nil
}
