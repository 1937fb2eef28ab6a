// =============================================================================
// OBS Clinic Migration - Convert Command
// =============================================================================
//
// The convert command writes one REDCap import file per instrument.
//
// For each instrument:
//   1. Preprocessing steps run on a copy of the Rave table
//   2. Stubs are reshaped and labels recoded
//   3. Corrections and empty row removal are applied
//   4. REDCap import columns are added
//   5. The table is written as CSV or flat XML
//
// Instruments are independent; they run concurrently and a failure in one
// does not stop the others. Diagnostics of all instruments go to one log.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rseeto/obs-clinic-migration/internal/config"
	"github.com/rseeto/obs-clinic-migration/internal/csvparser"
	"github.com/rseeto/obs-clinic-migration/internal/validation"
	"github.com/rseeto/obs-clinic-migration/internal/xmlwriter"
	"github.com/rseeto/obs-clinic-migration/pkg/utils"
)

// dryRun converts without writing any file.
var dryRun bool

// only restricts the run to the named instruments.
var only []string

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the Rave export into REDCap import files",
	Long: `The convert command converts every configured instrument and writes one
REDCap import file per instrument to the output directory, together with a
diagnostic log and a processing summary.

Diagnostics (structure mismatches, values that did not recode, columns that
failed) never stop the run; review the diagnostic log before importing.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert()
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Convert without writing output files",
	)

	convertCmd.Flags().StringSliceVar(
		&only,
		"instrument",
		nil,
		"Convert only the named instrument(s)",
	)
}

// runConvert is the main conversion logic.
func runConvert() error {
	startTime := time.Now()

	in, err := loadInputs()
	if err != nil {
		return err
	}
	instruments, err := selectInstruments(in.instruments, only)
	if err != nil {
		return err
	}

	fm := utils.NewFileManager(in.main.OutputDir)
	if !dryRun {
		if err := fm.EnsureDirectories(); err != nil {
			return err
		}
	}

	results := make([]utils.InstrumentResult, len(instruments))
	diags := make(map[string][]validation.Diagnostic, len(instruments))
	var mu sync.Mutex

	var eg errgroup.Group
	eg.SetLimit(in.main.MaxConcurrency)
	for i, ic := range instruments {
		i, ic := i, ic
		eg.Go(func() error {
			result, ds := convertInstrument(in, ic, fm)
			results[i] = result
			mu.Lock()
			diags[ic.Name] = ds
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	order := make([]string, len(instruments))
	total := 0
	for i, ic := range instruments {
		order[i] = ic.Name
		total += len(diags[ic.Name])
		if results[i].Err != nil {
			fmt.Printf("  ✗ %s: %v\n", ic.Name, results[i].Err)
			continue
		}
		fmt.Printf("  ✓ %s -> %s (%d rows, %d diagnostics)\n", ic.Name, results[i].OutputFile, results[i].Rows, results[i].Diagnostics)
	}

	summary := utils.ProcessingSummary{
		Command:     "convert",
		RunID:       fm.RunID,
		StartTime:   startTime,
		EndTime:     time.Now(),
		Instruments: results,
	}
	if !dryRun {
		logPath := fm.OutputPath("diagnostics_{timestamp}", "txt", nil)
		if err := utils.WriteDiagnosticLog(diags, order, logPath); err != nil {
			return err
		}
		if total > 0 {
			fmt.Printf("\n%d diagnostic(s) logged to %s\n", total, logPath)
		}
		if err := utils.WriteSummaryLog(summary, fm.OutputPath("processing_summary_{timestamp}", "txt", nil)); err != nil {
			return err
		}
	}

	logger.Info("Conversion complete",
		zap.Int("instruments", len(instruments)),
		zap.Int("failed", summary.Failed()),
		zap.Int("diagnostics", total),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	if n := summary.Failed(); n > 0 {
		return fmt.Errorf("%d of %d instrument(s) failed", n, len(instruments))
	}
	return nil
}

// convertInstrument runs the full pipeline for one instrument and writes its
// import file.
func convertInstrument(in *inputs, ic *config.InstrumentConfig, fm *utils.FileManager) (utils.InstrumentResult, []validation.Diagnostic) {
	result := utils.InstrumentResult{Name: ic.Name}
	log := logger.With(zap.String("instrument", ic.Name))

	session, err := buildSession(in, ic, log)
	if err != nil {
		result.Err = err
		log.Error("Conversion failed", zap.Error(err))
		return result, nil
	}
	if err := session.PrepImport(ic.EventName, ic.CompleteColumn, ic.RepeatInstrument); err != nil {
		result.Err = err
		return result, session.Diagnostics()
	}

	data := session.Finalize()
	result.Rows = data.Len()
	result.Diagnostics = len(session.Diagnostics())
	if dryRun {
		result.OutputFile = "(dry run)"
		return result, session.Diagnostics()
	}

	path := fm.OutputPath(in.main.FileNameFormat, in.main.OutputFormat, map[string]string{"instrument": ic.Name})
	switch in.main.OutputFormat {
	case config.FormatXML:
		var doc []byte
		doc, err = xmlwriter.Generate(data)
		if err == nil {
			err = os.WriteFile(path, doc, 0o644)
		}
	default:
		err = csvparser.Write(path, data)
	}
	if err != nil {
		result.Err = fmt.Errorf("failed to write import file: %w", err)
		return result, session.Diagnostics()
	}

	result.OutputFile = path
	log.Info("Wrote import file", zap.String("path", path), zap.Int("rows", result.Rows))
	return result, session.Diagnostics()
}

// selectInstruments filters instruments by name. An unknown name is an
// error so typos do not silently convert nothing.
func selectInstruments(all []*config.InstrumentConfig, names []string) ([]*config.InstrumentConfig, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]*config.InstrumentConfig, len(all))
	for _, ic := range all {
		byName[ic.Name] = ic
	}
	out := make([]*config.InstrumentConfig, 0, len(names))
	for _, name := range names {
		ic, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown instrument %q", name)
		}
		out = append(out, ic)
	}
	return out, nil
}
