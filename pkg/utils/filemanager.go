// =============================================================================
// OBS Clinic Migration - File Manager Utility
// =============================================================================
//
// This module handles the output side of a run:
//   - Creating the output directory
//   - Naming output files
//   - Writing the diagnostic log and the processing summary
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rseeto/obs-clinic-migration/internal/validation"
)

const rule = "================================================================================\n"

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager places the files of one run in an output directory.
type FileManager struct {
	// OutputDir receives every file of the run.
	OutputDir string

	// RunID is shared by every file of the run so they can be matched up.
	RunID string
}

// NewFileManager creates a FileManager with a fresh run id.
func NewFileManager(outputDir string) *FileManager {
	return &FileManager{
		OutputDir: outputDir,
		RunID:     uuid.NewString(),
	}
}

// EnsureDirectories creates the output directory if it does not exist.
func (fm *FileManager) EnsureDirectories() error {
	if err := os.MkdirAll(fm.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fm.OutputDir, err)
	}
	return nil
}

// OutputPath returns the path of an output file named from format.
//
// PARAMETERS:
//   - format: The file name format; see GenerateOutputFileName.
//   - ext: The extension to ensure, without the dot.
//   - params: Extra placeholder values.
func (fm *FileManager) OutputPath(format, ext string, params map[string]string) string {
	merged := map[string]string{"uuid": fm.RunID}
	for k, v := range params {
		merged[k] = v
	}
	return filepath.Join(fm.OutputDir, GenerateOutputFileName(format, ext, merged))
}

// =============================================================================
// FILE NAMING
// =============================================================================

// GenerateOutputFileName generates an output file name based on a format
// string.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}       - A random UUID, unless params sets one
//     {timestamp}  - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}       - Current date (YYYYMMDD)
//     {instrument} - Instrument name, from params
//   - ext: The extension to ensure, without the dot.
//   - params: A map of placeholder values.
//
// RETURNS:
//   - The generated file name.
//
// EXAMPLE:
//
//	format: "{instrument}_{timestamp}"
//	ext:    "csv"
//	params: {"instrument": "medical_history"}
//	output: "medical_history_20240115_143022.csv"
func GenerateOutputFileName(format, ext string, params map[string]string) string {
	now := time.Now()

	replacements := map[string]string{
		"{uuid}":      uuid.NewString(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = sanitizeFileName(value)
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if ext != "" && !strings.HasSuffix(strings.ToLower(result), "."+strings.ToLower(ext)) {
		result += "." + ext
	}
	return result
}

// sanitizeFileName replaces path separators and other characters that are
// unsafe in file names.
func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// =============================================================================
// DIAGNOSTIC LOG
// =============================================================================

// WriteDiagnosticLog writes the diagnostics of a run to a text file.
//
// PARAMETERS:
//   - diags: The diagnostics, grouped by instrument.
//   - order: The instruments in output order.
//   - path: The log file to create.
//
// RETURNS:
//   - An error if writing fails. Nothing is written when there are no
//     diagnostics.
func WriteDiagnosticLog(diags map[string][]validation.Diagnostic, order []string, path string) error {
	total := 0
	for _, ds := range diags {
		total += len(ds)
	}
	if total == 0 {
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create diagnostic log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "OBS Clinic Migration - Diagnostic Log\n"+
		"Generated: %s\n"+
		"Total Diagnostics: %d\n"+
		rule+"\n",
		time.Now().Format("2006-01-02 15:04:05"),
		total)

	for _, group := range order {
		ds := diags[group]
		if len(ds) == 0 {
			continue
		}
		fmt.Fprintf(writer, "Instrument: %s (%d)\n", group, len(ds))
		for i, d := range ds {
			fmt.Fprintf(writer, "  %d. [%s] %s\n", i+1, d.Kind, d.Message)
			if d.Err != nil {
				fmt.Fprintf(writer, "     Error: %v\n", d.Err)
			}
		}
		writer.WriteString("\n")
	}

	writer.WriteString(rule + "End of Diagnostic Log\n")
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush diagnostic log: %w", err)
	}
	return nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a run.
type ProcessingSummary struct {
	Command     string
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	Instruments []InstrumentResult
}

// InstrumentResult describes the outcome of one instrument.
type InstrumentResult struct {
	Name        string
	OutputFile  string
	Rows        int
	Diagnostics int
	Err         error
}

// Failed returns the number of instruments that failed.
func (s ProcessingSummary) Failed() int {
	n := 0
	for _, r := range s.Instruments {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// WriteSummaryLog writes a processing summary to a text file.
func WriteSummaryLog(summary ProcessingSummary, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "OBS Clinic Migration - Processing Summary\n"+
		rule+"\n"+
		"Run Information:\n"+
		"  Command:        %s\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Instruments:    %d\n"+
		"  Failed:         %d\n\n",
		summary.Command,
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		len(summary.Instruments),
		summary.Failed())

	for _, r := range summary.Instruments {
		fmt.Fprintf(writer, "  Instrument:   %s\n", r.Name)
		if r.Err != nil {
			fmt.Fprintf(writer, "  Error:        %v\n\n", r.Err)
			continue
		}
		fmt.Fprintf(writer, "  Output:       %s\n", r.OutputFile)
		fmt.Fprintf(writer, "  Rows:         %d\n", r.Rows)
		fmt.Fprintf(writer, "  Diagnostics:  %d\n\n", r.Diagnostics)
	}

	writer.WriteString(rule + "End of Summary\n")
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary file: %w", err)
	}
	return nil
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
