package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rseeto/obs-clinic-migration/internal/config"
	"github.com/rseeto/obs-clinic-migration/internal/preprocess"
)

// subjectCount overrides dde_subjects when set.
var subjectCount int

// subjectsCmd picks the subjects to double enter.
var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "Pick subjects for double data entry",
	Long: `The subjects command picks the subjects whose Rave records together cover
the most columns, so that double entering them exercises as much of the
REDCap project as possible. Subjects above subject_filter_max are skipped.

The picked subject ids are printed one per line, in pick order.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		mainConfig, err := config.LoadMainConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load main config: %w", err)
		}
		if err := applyLogLevel(mainConfig.LogLevel); err != nil {
			return err
		}
		wide, err := loadTable(mainConfig.SourceFile)
		if err != nil {
			return fmt.Errorf("failed to load source file: %w", err)
		}

		count := mainConfig.DDESubjects
		if subjectCount > 0 {
			count = subjectCount
		}
		picked, err := preprocess.SelectSubjects(wide, preprocess.SelectOptions{
			Count:      count,
			MaxSubject: mainConfig.SubjectFilterMax,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		for _, id := range picked {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		logger.Info("Selected subjects", zap.Int("requested", count), zap.Int("picked", len(picked)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subjectsCmd)

	subjectsCmd.Flags().IntVarP(&subjectCount, "count", "n", 0, "Number of subjects to pick (default dde_subjects)")
}
