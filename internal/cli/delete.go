package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <key> [key...]",
		Aliases: []string{"delete", "del"},
		Short:   "Delete keys",
		Long:    "Delete one or more keys from the key/value table. Deleting a missing key is not an error.",
		Example: `  inkwell rm theme
  inkwell rm drafts/chapter-1 drafts/chapter-2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range args {
				if err := apiClient.RemoveItem(cmd.Context(), key); err != nil {
					return err
				}
				color.Green("%s deleted", key)
			}
			return nil
		},
	}

	return cmd
}
