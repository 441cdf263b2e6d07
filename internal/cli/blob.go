package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
	"github.com/klubi/inkwell/pkg/client"
)

func newBlobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "blob",
		Aliases: []string{"blobs"},
		Short:   "Manage binary blobs such as embedded images",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List blob keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				keys, err := apiClient.ListBlobs(cmd.Context())
				if err != nil {
					return err
				}
				if outputFormat != "table" {
					printOutput(v1.BlobList{Keys: keys}, nil, nil)
					return nil
				}
				if len(keys) == 0 {
					fmt.Println("No blobs found.")
					return nil
				}
				for _, k := range keys {
					fmt.Println(k)
				}
				return nil
			},
		},
		newBlobPutCmd(),
		newBlobGetCmd(),
		&cobra.Command{
			Use:     "rm <key>",
			Aliases: []string{"delete"},
			Short:   "Delete a blob",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := apiClient.DeleteBlob(cmd.Context(), args[0]); err != nil {
					return err
				}
				color.Green("blob %s deleted", args[0])
				return nil
			},
		},
	)

	return cmd
}

func newBlobPutCmd() *cobra.Command {
	var mimeType string

	cmd := &cobra.Command{
		Use:     "put <key> <file>",
		Short:   "Upload a file as a blob",
		Example: `  inkwell blob put cover.png ./cover.png`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}

			if err := apiClient.PutBlob(cmd.Context(), args[0], data, mimeType); err != nil {
				if client.IsQuotaExceeded(err) {
					printQuotaWarning(err)
				}
				return err
			}
			color.Green("blob %s saved (%s, %d bytes)", args[0], mimeType, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&mimeType, "type", "", "MIME type (detected from content when empty)")

	return cmd
}

func newBlobGetCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:     "get <key>",
		Short:   "Download a blob",
		Example: `  inkwell blob get cover.png --out cover.png`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, mimeType, err := apiClient.GetBlob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Printf("wrote %s (%s, %d bytes)\n", out, mimeType, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Write to this file instead of stdout")

	return cmd
}
