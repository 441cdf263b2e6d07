package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keys [prefix]",
		Aliases: []string{"ls"},
		Short:   "List keys",
		Long:    "List the keys of the key/value table, optionally only those starting with a prefix.",
		Example: `  inkwell keys
  inkwell keys drafts/
  inkwell keys -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix string
			if len(args) > 0 {
				prefix = args[0]
			}

			keys, err := apiClient.Keys(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			if outputFormat != "table" {
				printOutput(v1.KeyList{Prefix: prefix, Keys: keys}, nil, nil)
				return nil
			}
			if len(keys) == 0 {
				fmt.Println("No keys found.")
				return nil
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}

	return cmd
}

func newClearCmd() *cobra.Command {
	var (
		prefix string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every key",
		Long: `Delete every key of the key/value table, or only those starting with
--prefix. Projects and blobs are not affected.`,
		Example: `  inkwell clear --yes
  inkwell clear --prefix drafts/ --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			if err := apiClient.Clear(cmd.Context(), prefix); err != nil {
				return err
			}
			if prefix == "" {
				color.Green("all keys cleared")
			} else {
				color.Green("keys under %q cleared", prefix)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only clear keys starting with this prefix")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the clear")

	return cmd
}
