package cli

import (
	"github.com/spf13/cobra"

	"github.com/klubi/inkwell/pkg/client"
)

var (
	serverAddr string
	apiClient  *client.Client
)

// NewRootCmd creates the top-level inkwell CLI command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inkwell",
		Short: "Local-first storage service for manuscripts",
		Long: `Inkwell keeps drafts, settings, project records and images in a
durable local store, with a synchronous read cache in front of it and a
quota-limited fallback store when the durable store is unavailable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Skip client init for commands that don't need the API server.
			name := cmd.Name()
			if name == "serve" || name == "init" {
				return
			}
			apiClient = client.New(serverAddr)
		},
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:7117", "Inkwell server address")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")

	cmd.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newGetCmd(),
		newSetCmd(),
		newDeleteCmd(),
		newKeysCmd(),
		newClearCmd(),
		newProjectCmd(),
		newBlobCmd(),
		newStatusCmd(),
		newMigrateCmd(),
		newEventsCmd(),
		newUICmd(),
	)

	return cmd
}
