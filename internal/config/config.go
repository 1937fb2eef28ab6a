// =============================================================================
// OBS Clinic Migration - Configuration Module
// =============================================================================
//
// This module loads the main configuration and one configuration per REDCap
// instrument.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): Input files, output settings and logging
//   2. Instrument Configs (instruments/*.yaml): Stub mapping and operator
//      steps of one REDCap instrument
//
// An instrument is converted exactly as its file describes. Adding an
// instrument means adding a file; no code changes.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rseeto/obs-clinic-migration/internal/converter"
	"github.com/rseeto/obs-clinic-migration/internal/preprocess"
)

// Output formats.
const (
	FormatCSV = "csv"
	FormatXML = "xml"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// INPUT FILES
	// =========================================================================

	// SourceFile is the wide Rave export (CSV).
	SourceFile string `yaml:"source_file"`

	// DictionaryFile is the REDCap data dictionary export. CSV or XLSX.
	DictionaryFile string `yaml:"dictionary_file"`

	// RaveEntriesFile and RaveFieldsFile are the data dictionary entries and
	// fields of the Rave study, usually two sheets of one workbook
	// ("dictionary.xlsx#Entries"). Only needed by instruments with
	// rave_labels.
	RaveEntriesFile string `yaml:"rave_entries_file"`
	RaveFieldsFile  string `yaml:"rave_fields_file"`

	// DDEFile is the double data entry export from REDCap (CSV or XLSX).
	// Only the compare command needs it.
	DDEFile string `yaml:"dde_file"`

	// InstrumentsDir holds one YAML file per instrument.
	// Default: "./instruments"
	InstrumentsDir string `yaml:"instruments_dir"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputDir receives import files, reports and logs.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// OutputFormat is "csv" or "xml" (REDCap flat XML).
	// Default: "csv"
	OutputFormat string `yaml:"output_format"`

	// FileNameFormat names output files.
	// Placeholders:
	//   {instrument} - Instrument name
	//   {timestamp}  - Current timestamp (YYYYMMDD_HHMMSS)
	//   {uuid}       - A random UUID, unique per run
	// The extension is added from OutputFormat.
	// Default: "{instrument}_{timestamp}"
	FileNameFormat string `yaml:"file_name_format"`

	// =========================================================================
	// CONVERSION SETTINGS
	// =========================================================================

	// MissingTokens stand for an absent value in the source data.
	// Default: ["nan", "NaN", ""]
	MissingTokens []string `yaml:"missing_tokens"`

	// SubjectFilterMax excludes subjects with a larger numeric id from DDE
	// subject selection. 0 disables the filter.
	SubjectFilterMax int64 `yaml:"subject_filter_max"`

	// DDESubjects is the number of subjects to pick for double data entry.
	// Default: 40
	DDESubjects int `yaml:"dde_subjects"`

	// MaxConcurrency is the maximum number of instruments converted at once.
	// Set to 1 for sequential processing.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`
}

// =============================================================================
// INSTRUMENT CONFIGURATION STRUCTURE
// =============================================================================

// InstrumentConfig describes the conversion of one REDCap instrument.
type InstrumentConfig struct {
	// Name identifies the instrument in logs, output file names and report
	// sheets.
	Name string `yaml:"name"`

	// Stubs maps Rave column stubs to REDCap variables, in output order.
	Stubs []converter.StubMapping `yaml:"stubs"`

	// StubRepeat is 0 for a non-repeating instrument, otherwise the number
	// of instances in the Rave export.
	StubRepeat int `yaml:"stub_repeat"`

	// Recode substitutes dictionary codes for labels.
	// Default: true
	Recode *bool `yaml:"recode"`

	// =========================================================================
	// IMPORT PREPARATION
	// =========================================================================

	// EventName is written to redcap_event_name.
	EventName string `yaml:"event_name"`

	// CompleteColumn is the instrument's "_complete" variable.
	// Default: "<name>_complete"
	CompleteColumn string `yaml:"complete_col"`

	// RepeatInstrument is written to redcap_repeat_instrument. Leave empty
	// for non-repeating instruments.
	RepeatInstrument string `yaml:"repeat_instrument"`

	// =========================================================================
	// OPERATOR STEPS
	// =========================================================================

	// RaveLabels turn coded Rave columns back into labels. They run first.
	RaveLabels []preprocess.RaveLabel `yaml:"rave_labels"`

	// DateUnknown steps run on the wide table before conversion.
	DateUnknown []preprocess.DateUnknown `yaml:"date_unknown"`

	// Specify steps run on the wide table before conversion, after
	// DateUnknown.
	Specify []preprocess.Specify `yaml:"specify"`

	// Corrections fix mislabelled values after recoding, in order.
	Corrections []converter.Correction `yaml:"corrections"`

	// RemoveNA drops rows without data before import preparation.
	RemoveNA bool `yaml:"remove_na"`

	// NumericOverrides force the numeric trait of dictionary variables.
	NumericOverrides map[string]bool `yaml:"numeric_overrides"`

	// =========================================================================
	// RECONCILIATION
	// =========================================================================

	// IgnoreColumns are left out of the DDE comparison.
	IgnoreColumns []string `yaml:"ignore_columns"`

	// SourceFile is the file this configuration was loaded from.
	SourceFile string `yaml:"-"`
}

// ShouldRecode reports whether recoding is enabled.
func (ic *InstrumentConfig) ShouldRecode() bool {
	return ic.Recode == nil || *ic.Recode
}

// SessionOptions returns the converter options of this instrument.
func (ic *InstrumentConfig) SessionOptions(missing []string) converter.Options {
	return converter.Options{
		Mappings:      append([]converter.StubMapping(nil), ic.Stubs...),
		StubRepeat:    ic.StubRepeat,
		Recode:        ic.ShouldRecode(),
		MissingTokens: missing,
	}
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct, with defaults applied.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InstrumentsDir == "" {
		config.InstrumentsDir = "./instruments"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.OutputFormat == "" {
		config.OutputFormat = FormatCSV
	}
	config.OutputFormat = strings.ToLower(config.OutputFormat)
	if config.FileNameFormat == "" {
		config.FileNameFormat = "{instrument}_{timestamp}"
	}
	if config.MissingTokens == nil {
		config.MissingTokens = append([]string(nil), converter.DefaultMissingTokens...)
	}
	if config.DDESubjects == 0 {
		config.DDESubjects = 40
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// validateMainConfig checks option values. Input files are checked by the
// commands that read them, since not every command needs every file.
func validateMainConfig(config *MainConfig) error {
	var errs []error

	switch config.OutputFormat {
	case FormatCSV, FormatXML:
	default:
		errs = append(errs, fmt.Errorf("output_format must be %q or %q, got %q", FormatCSV, FormatXML, config.OutputFormat))
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", config.LogLevel))
	}
	if config.DDESubjects < 0 {
		errs = append(errs, fmt.Errorf("dde_subjects must not be negative, got %d", config.DDESubjects))
	}
	if config.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be positive, got %d", config.MaxConcurrency))
	}
	if config.SubjectFilterMax < 0 {
		errs = append(errs, fmt.Errorf("subject_filter_max must not be negative, got %d", config.SubjectFilterMax))
	}

	return errors.Join(errs...)
}

// LoadInstrumentConfigs loads all instrument configurations from a
// directory.
//
// PARAMETERS:
//   - dir: The directory containing instrument YAML files.
//
// RETURNS:
//   - The instruments, ordered by file name.
//   - An error if a file cannot be parsed or is invalid, or two files use
//     the same instrument name.
func LoadInstrumentConfigs(dir string) ([]*InstrumentConfig, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list instrument files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list instrument files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	configs := make([]*InstrumentConfig, 0, len(files))
	names := make(map[string]string, len(files))
	for _, file := range files {
		config, err := LoadInstrumentConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if prev, dup := names[config.Name]; dup {
			return nil, fmt.Errorf("instrument %q defined in both %s and %s", config.Name, prev, file)
		}
		names[config.Name] = file
		configs = append(configs, config)
	}

	return configs, nil
}

// LoadInstrumentConfig loads and validates a single instrument file.
func LoadInstrumentConfig(filePath string) (*InstrumentConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config InstrumentConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	config.SourceFile = filePath

	applyInstrumentConfigDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyInstrumentConfigDefaults sets default values for an instrument.
func applyInstrumentConfigDefaults(config *InstrumentConfig) {
	if config.Name == "" && config.SourceFile != "" {
		base := filepath.Base(config.SourceFile)
		config.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if config.CompleteColumn == "" && config.Name != "" {
		config.CompleteColumn = config.Name + "_complete"
	}
	for i := range config.DateUnknown {
		if config.DateUnknown[i].DependencyAnswer == "" {
			config.DateUnknown[i].DependencyAnswer = preprocess.AnswerYes
		}
		if config.DateUnknown[i].Repeat == 0 {
			config.DateUnknown[i].Repeat = config.StubRepeat
		}
	}
}

// Validate reports every problem with the instrument at once.
func (ic *InstrumentConfig) Validate() error {
	var errs []error

	if ic.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(ic.Stubs) == 0 {
		errs = append(errs, errors.New("at least one stub is required"))
	}
	if ic.StubRepeat < 0 {
		errs = append(errs, fmt.Errorf("stub_repeat must not be negative, got %d", ic.StubRepeat))
	}

	fields := make(map[string]bool, len(ic.Stubs))
	for i, s := range ic.Stubs {
		if s.Stub == "" || s.Field == "" {
			errs = append(errs, fmt.Errorf("stubs[%d]: stub and field are required", i))
			continue
		}
		if fields[s.Field] {
			errs = append(errs, fmt.Errorf("stubs[%d]: field %q is mapped twice", i, s.Field))
		}
		fields[s.Field] = true
	}
	for i, c := range ic.Corrections {
		if c.Column == "" {
			errs = append(errs, fmt.Errorf("corrections[%d]: column is required", i))
		}
	}
	for i, d := range ic.DateUnknown {
		if d.Stub == "" || d.Dependency == "" {
			errs = append(errs, fmt.Errorf("date_unknown[%d]: stub and dependency are required", i))
		}
		if d.Repeat <= 0 {
			errs = append(errs, fmt.Errorf("date_unknown[%d]: repeat must be positive", i))
		}
	}
	for i, l := range ic.RaveLabels {
		if l.Column == "" {
			errs = append(errs, fmt.Errorf("rave_labels[%d]: column is required", i))
		}
	}
	for i, s := range ic.Specify {
		if s.Column == "" || s.CodedColumn == "" || s.LabelColumn == "" {
			errs = append(errs, fmt.Errorf("specify[%d]: column, coded_column and label_column are required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("instrument %q: %w", ic.Name, errors.Join(errs...))
	}
	return nil
}
