package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream storage events",
		Long:  "Follow the storage service's event stream: readiness, fallback, write failures and quota warnings.",
		Example: `  inkwell events
  inkwell events -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := apiClient.Events(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("Streaming events (Ctrl+C to stop)...")
			for evt := range events {
				if outputFormat == "json" {
					if err := printJSON(evt); err != nil {
						return err
					}
					continue
				}
				printEvent(evt)
			}
			return nil
		},
	}

	return cmd
}

func printEvent(evt v1.Event) {
	ts := evt.Time.Format("15:04:05")

	var typeStr string
	switch evt.Type {
	case v1.EventReady, v1.EventMigrated:
		typeStr = color.GreenString("%-24s", evt.Type)
	case v1.EventFallback, v1.EventQuotaExceeded:
		typeStr = color.YellowString("%-24s", evt.Type)
	case v1.EventWriteFailed:
		typeStr = color.RedString("%-24s", evt.Type)
	default:
		typeStr = fmt.Sprintf("%-24s", evt.Type)
	}

	line := fmt.Sprintf("%s %s", ts, typeStr)
	if evt.Key != "" {
		line += " " + evt.Key
	}
	if evt.Message != "" {
		line += "  " + evt.Message
	}
	fmt.Println(line)
}
