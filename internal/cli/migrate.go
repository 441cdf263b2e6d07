package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy legacy data into the durable store",
		Long: `Run the one-time migration from the legacy store if it has not run yet.
The server also runs it automatically at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := apiClient.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if outputFormat != "table" {
				printOutput(report, nil, nil)
				return nil
			}

			if !report.Ran {
				fmt.Printf("Nothing to migrate: %s.\n", report.Reason)
				return nil
			}
			fmt.Printf("Migrated: %d\n", report.Migrated)
			fmt.Printf("Skipped:  %d\n", report.Skipped)
			if report.Failed > 0 {
				color.Red("Failed:   %d", report.Failed)
				for _, k := range report.FailedKeys {
					fmt.Printf("  - %s\n", k)
				}
			}
			switch {
			case report.LegacyCleared:
				color.Green("Migration complete; legacy store cleared.")
			case report.Completed:
				color.Yellow("Migration marked complete; the legacy store was kept.")
			default:
				color.Yellow("Migration will be retried on the next start.")
			}
			return nil
		},
	}

	return cmd
}
