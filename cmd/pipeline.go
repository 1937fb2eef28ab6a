package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/config"
	"github.com/rseeto/obs-clinic-migration/internal/converter"
	"github.com/rseeto/obs-clinic-migration/internal/csvparser"
	"github.com/rseeto/obs-clinic-migration/internal/dictionary"
	"github.com/rseeto/obs-clinic-migration/internal/types"
	"github.com/rseeto/obs-clinic-migration/internal/xlsxparser"
)

// inputs are the files every conversion needs, loaded once per run.
type inputs struct {
	main        *config.MainConfig
	instruments []*config.InstrumentConfig
	wide        *types.Table
	dict        *dictionary.Dictionary

	// rave is nil unless the Rave data dictionary is configured.
	rave *dictionary.RaveDictionary
}

// loadConfigs loads the main configuration and the instruments, and applies
// the configured log level.
func loadConfigs() (*config.MainConfig, []*config.InstrumentConfig, error) {
	mainConfig, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load main config: %w", err)
	}
	if err := applyLogLevel(mainConfig.LogLevel); err != nil {
		return nil, nil, err
	}

	instruments, err := config.LoadInstrumentConfigs(mainConfig.InstrumentsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load instrument configs: %w", err)
	}
	logger.Info("Loaded configuration",
		zap.String("config", cfgFile),
		zap.Int("instruments", len(instruments)),
	)
	return mainConfig, instruments, nil
}

// loadInputs loads the configuration, the Rave export and the dictionary.
func loadInputs() (*inputs, error) {
	mainConfig, instruments, err := loadConfigs()
	if err != nil {
		return nil, err
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("no instrument configuration found in %s", mainConfig.InstrumentsDir)
	}

	wide, err := loadTable(mainConfig.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load source file: %w", err)
	}
	dictTable, err := loadTable(mainConfig.DictionaryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load data dictionary: %w", err)
	}
	dict, err := dictionary.FromTable(dictTable)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded inputs",
		zap.String("source_file", mainConfig.SourceFile),
		zap.Int("subjects", wide.Len()),
		zap.Int("source_columns", wide.Width()),
		zap.String("dictionary_file", mainConfig.DictionaryFile),
		zap.Int("variables", dict.Len()),
	)

	rave, err := loadRaveDictionary(mainConfig)
	if err != nil {
		return nil, err
	}

	return &inputs{
		main:        mainConfig,
		instruments: instruments,
		wide:        wide,
		dict:        dict,
		rave:        rave,
	}, nil
}

// loadRaveDictionary loads the Rave data dictionary when both of its files
// are configured.
func loadRaveDictionary(mainConfig *config.MainConfig) (*dictionary.RaveDictionary, error) {
	if mainConfig.RaveEntriesFile == "" && mainConfig.RaveFieldsFile == "" {
		return nil, nil
	}
	entries, err := loadTable(mainConfig.RaveEntriesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load Rave dictionary entries: %w", err)
	}
	fields, err := loadTable(mainConfig.RaveFieldsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load Rave dictionary fields: %w", err)
	}
	rave, err := dictionary.NewRaveDictionary(entries, fields)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded Rave data dictionary",
		zap.String("entries", mainConfig.RaveEntriesFile),
		zap.String("fields", mainConfig.RaveFieldsFile),
	)
	return rave, nil
}

// loadTable reads a CSV or XLSX file, chosen by extension. An XLSX path may
// name a sheet after a '#', as in "dictionary.xlsx#Fields".
func loadTable(path string) (*types.Table, error) {
	if path == "" {
		return nil, fmt.Errorf("no file configured")
	}
	file, sheet, _ := strings.Cut(path, "#")
	switch strings.ToLower(filepath.Ext(file)) {
	case ".xlsx", ".xlsm":
		return xlsxparser.ReadSheet(file, sheet)
	default:
		return csvparser.Parse(path, csvparser.Settings{})
	}
}

// buildSession preprocesses a copy of the wide table and converts it for one
// instrument, applying the configured corrections.
func buildSession(in *inputs, ic *config.InstrumentConfig, log *zap.Logger) (*converter.Session, error) {
	wide := in.wide.Clone()
	for _, step := range ic.RaveLabels {
		n, err := step.Apply(wide, in.rave)
		if err != nil {
			return nil, err
		}
		log.Debug("Labelled Rave codes", zap.String("column", step.Column), zap.Int("replaced", n))
	}
	for _, step := range ic.DateUnknown {
		if err := step.Apply(wide); err != nil {
			return nil, err
		}
	}
	for _, step := range ic.Specify {
		if err := step.Apply(wide); err != nil {
			return nil, err
		}
	}

	dict := in.dict
	if len(ic.NumericOverrides) > 0 {
		dict = dict.WithNumericOverrides(ic.NumericOverrides)
	}

	opts := ic.SessionOptions(in.main.MissingTokens)
	opts.Logger = log
	session, err := converter.New(wide, dict, opts)
	if err != nil {
		return nil, err
	}

	if len(ic.Corrections) > 0 {
		if _, err := session.ChangeStr(ic.Corrections); err != nil {
			return nil, err
		}
	}
	if ic.RemoveNA {
		if err := session.RemoveNA(); err != nil {
			return nil, err
		}
	}
	return session, nil
}
