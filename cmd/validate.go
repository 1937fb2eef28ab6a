package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rseeto/obs-clinic-migration/internal/converter"
)

// validateCmd checks configuration and inputs without converting.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration files without converting",
	Long: `The validate command loads the main configuration and every instrument file,
then checks that the source file has every column the instruments map and
that the data dictionary parses. Nothing is written.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInputs()
		if err != nil {
			return err
		}

		problems := 0
		for _, ic := range in.instruments {
			for _, col := range converter.SourceColumns(ic.Stubs, ic.StubRepeat) {
				if !in.wide.HasColumn(col) {
					fmt.Fprintf(cmd.OutOrStdout(), "  ✗ %s: source column %q is missing\n", ic.Name, col)
					problems++
				}
			}
			for _, s := range ic.Stubs {
				if _, err := in.dict.Scheme(s.Field); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "  ✗ %s: %v\n", ic.Name, err)
					problems++
				}
			}
		}

		if problems > 0 {
			return fmt.Errorf("%d problem(s) found", problems)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %d instrument(s)\n", len(in.instruments))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
