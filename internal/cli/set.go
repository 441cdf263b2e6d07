package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klubi/inkwell/pkg/client"
)

func newSetCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Store a value at a key",
		Long: `Store a value at a key of the key/value table. The value is read from
stdin when omitted.

The server acknowledges the write once its cache is updated; the durable
write follows in the background. Use --wait to return only after the
durable write has been applied.`,
		Example: `  inkwell set theme dark
  inkwell set drafts/chapter-1 < chapter-1.md
  inkwell set settings '{"font":"serif"}' --wait`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading value from stdin: %w", err)
				}
				value = string(raw)
			}

			if err := apiClient.SetItem(cmd.Context(), key, value, wait); err != nil {
				if client.IsQuotaExceeded(err) {
					printQuotaWarning(err)
				}
				return err
			}

			color.Green("%s set", key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the durable write")

	return cmd
}
