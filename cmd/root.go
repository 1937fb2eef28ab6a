// =============================================================================
// OBS Clinic Migration - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (obsmigrate)
//   ├── convertCmd  (obsmigrate convert)
//   ├── compareCmd  (obsmigrate compare)
//   ├── subjectsCmd (obsmigrate subjects)
//   ├── validateCmd (obsmigrate validate)
//   └── versionCmd  (obsmigrate version)
//
// The root command owns the global flags and the logger. The logger is built
// before any subcommand runs and synced after it returns.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging, overriding log_level.
var verbose bool

// logger is shared by all commands. It is a no-op until PersistentPreRunE.
var logger = zap.NewNop()

// logLevel lets commands apply log_level from the configuration after the
// logger is built.
var logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "obsmigrate",
	Short: "Convert OBS clinic data from Rave to REDCap and reconcile it",
	Long: `obsmigrate converts clinical trial data exported from Rave (one wide row
per subject) into REDCap import files (long format, one row per subject and
instance, labels recoded to dictionary codes), and reconciles the result
against subjects double entered in REDCap.

Each REDCap instrument is described by one YAML file in the instruments
directory: which Rave stubs map to which REDCap variables, how many times
the form repeats, and the operator corrections to apply.

Example Usage:
  obsmigrate convert                    # Write REDCap import files
  obsmigrate compare                    # Reconcile against double entry
  obsmigrate subjects                   # Pick subjects to double enter
  obsmigrate validate                   # Check configuration only`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		config.Level = logLevel
		built, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = built
		return nil
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyLogLevel sets the configured level unless --verbose was given.
func applyLogLevel(level string) error {
	if verbose {
		return nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logLevel.SetLevel(lvl)
	return nil
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
