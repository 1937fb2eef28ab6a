// =============================================================================
// OBS Clinic Migration - Compare Command
// =============================================================================
//
// The compare command reconciles the converted data with the subjects that
// were double entered in REDCap. The report workbook has one sheet per
// instrument listing the rows that disagree, and an Issues sheet naming the
// subject and column of each disagreement.
//
// The comparison runs on the converted data before REDCap import columns are
// added, so only data variables are compared.
//
// =============================================================================

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/types"
	"github.com/rseeto/obs-clinic-migration/internal/validation"
	"github.com/rseeto/obs-clinic-migration/internal/xlsxparser"
	"github.com/rseeto/obs-clinic-migration/pkg/utils"
)

// Issues sheet columns.
const (
	issueInstrument = "instrument"
	issueSubject    = "obs_id"
	issueColumn     = "column"
	issueMessage    = "message"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Reconcile converted data against double data entry",
	Long: `The compare command converts every configured instrument, compares it with
the double data entry export (dde_file) and writes a reconciliation workbook.

Only subjects and columns present on both sides are compared. Columns listed
in an instrument's ignore_columns are left out.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompare()
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringSliceVar(
		&only,
		"instrument",
		nil,
		"Compare only the named instrument(s)",
	)
}

func runCompare() error {
	startTime := time.Now()

	in, err := loadInputs()
	if err != nil {
		return err
	}
	instruments, err := selectInstruments(in.instruments, only)
	if err != nil {
		return err
	}
	external, err := loadTable(in.main.DDEFile)
	if err != nil {
		return fmt.Errorf("failed to load double data entry file: %w", err)
	}

	fm := utils.NewFileManager(in.main.OutputDir)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	var (
		sheets  []xlsxparser.Sheet
		issues  []validation.Diagnostic
		owners  []string
		diags   = make(map[string][]validation.Diagnostic, len(instruments))
		order   = make([]string, 0, len(instruments))
		results = make([]utils.InstrumentResult, 0, len(instruments))
	)
	for _, ic := range instruments {
		log := logger.With(zap.String("instrument", ic.Name))
		result := utils.InstrumentResult{Name: ic.Name}
		order = append(order, ic.Name)

		session, err := buildSession(in, ic, log)
		if err != nil {
			result.Err = err
			results = append(results, result)
			log.Error("Conversion failed", zap.Error(err))
			continue
		}

		diff, err := session.CompareDDE(external, ic.IgnoreColumns)
		if err != nil {
			result.Err = err
			results = append(results, result)
			diags[ic.Name] = session.Diagnostics()
			continue
		}
		found, err := session.FindColumnIssues(external, ic.IgnoreColumns)
		if err != nil {
			result.Err = err
			results = append(results, result)
			diags[ic.Name] = session.Diagnostics()
			continue
		}

		sheets = append(sheets, xlsxparser.Sheet{Name: ic.Name, Table: diff})
		issues = append(issues, found...)
		for range found {
			owners = append(owners, ic.Name)
		}
		diags[ic.Name] = session.Diagnostics()

		result.Rows = diff.Len()
		result.Diagnostics = len(found)
		results = append(results, result)
		fmt.Printf("  %s: %d disagreeing row(s), %d column issue(s)\n", ic.Name, diff.Len(), len(found))
	}

	issueTable, err := issuesTable(owners, issues)
	if err != nil {
		return err
	}
	sheets = append(sheets, xlsxparser.Sheet{Name: "Issues", Table: issueTable})

	reportPath := fm.OutputPath("reconciliation_{timestamp}", "xlsx", nil)
	if err := xlsxparser.WriteReport(reportPath, sheets); err != nil {
		return err
	}
	for i := range results {
		if results[i].Err == nil {
			results[i].OutputFile = reportPath
		}
	}
	fmt.Printf("\nReconciliation report written to %s\n", reportPath)

	if err := utils.WriteDiagnosticLog(diags, order, fm.OutputPath("diagnostics_{timestamp}", "txt", nil)); err != nil {
		return err
	}
	summary := utils.ProcessingSummary{
		Command:     "compare",
		RunID:       fm.RunID,
		StartTime:   startTime,
		EndTime:     time.Now(),
		Instruments: results,
	}
	if err := utils.WriteSummaryLog(summary, fm.OutputPath("processing_summary_{timestamp}", "txt", nil)); err != nil {
		return err
	}

	logger.Info("Reconciliation complete",
		zap.Int("instruments", len(instruments)),
		zap.Int("issues", len(issues)),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	if n := summary.Failed(); n > 0 {
		return fmt.Errorf("%d of %d instrument(s) failed", n, len(instruments))
	}
	return nil
}

// issuesTable lists column issues with the instrument they belong to.
func issuesTable(owners []string, issues []validation.Diagnostic) (*types.Table, error) {
	n := len(issues)
	instrument := make([]types.Value, n)
	subject := make([]types.Value, n)
	column := make([]types.Value, n)
	message := make([]types.Value, n)
	for i, d := range issues {
		instrument[i] = types.String(owners[i])
		subject[i] = types.String(d.Subject)
		column[i] = types.String(d.Column)
		message[i] = types.String(d.Message)
	}
	return types.FromColumns(
		[]string{issueInstrument, issueSubject, issueColumn, issueMessage},
		[][]types.Value{instrument, subject, column, message},
	)
}
