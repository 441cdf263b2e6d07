package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

func newGetCmd() *cobra.Command {
	var consistent bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored at a key",
		Long: `Print the value stored at a key of the key/value table.

Before the server has finished hydrating, a key it has not seen yet may read
as missing. Use --consistent to make the server read its durable store.`,
		Example: `  inkwell get settings
  inkwell get drafts/chapter-1 --consistent
  inkwell get settings -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, ok, err := apiClient.GetItem(cmd.Context(), key, consistent)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key %q not found", key)
			}

			if outputFormat == "table" {
				fmt.Println(value)
				return nil
			}
			printOutput(v1.Item{Key: key, Value: value}, []string{"KEY", "VALUE"}, itemToRow)
			return nil
		},
	}

	cmd.Flags().BoolVar(&consistent, "consistent", false, "Read through to the durable store on a cache miss")

	return cmd
}

func itemToRow(v interface{}) []string {
	item := v.(v1.Item)
	return []string{item.Key, truncate(item.Value, 60)}
}
