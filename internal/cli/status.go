package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show storage service status",
		Long:  "Display the lifecycle state of the Inkwell storage service.",
		Example: `  inkwell status
  inkwell status --watch
  inkwell status -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return statusWatch(cmd.Context())
			}
			return statusPrint(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Continuously refresh (every 2 seconds)")

	return cmd
}

func statusPrint(ctx context.Context) error {
	// Check server health first.
	if err := apiClient.Healthz(ctx); err != nil {
		color.Red("Inkwell: UNREACHABLE")
		return fmt.Errorf("cannot reach server: %w", err)
	}

	st, err := apiClient.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}
	if outputFormat != "table" {
		printOutput(st, nil, nil)
		return nil
	}

	bold := color.New(color.FgCyan, color.Bold)
	bold.Println("Inkwell Storage Status")
	fmt.Println("======================")
	fmt.Println()

	mode := color.GreenString("durable")
	if st.FallbackMode {
		mode = color.YellowString("fallback (durable store unavailable)")
	}
	if !st.Initialized {
		mode = "opening..."
	}
	fmt.Printf("Mode:        %s\n", mode)

	hydrated := color.YellowString("hydrating")
	if st.Hydrated {
		hydrated = color.GreenString("ready")
	}
	fmt.Printf("Cache:       %s (%d keys)\n", hydrated, st.CachedKeys)

	queue := fmt.Sprintf("%d pending", st.QueueDepth)
	if st.QueueDepth > 0 {
		queue = color.YellowString(queue)
	}
	fmt.Printf("Write queue: %s\n", queue)

	return nil
}

func statusWatch(ctx context.Context) error {
	fmt.Println("Watching status (Ctrl+C to stop)...")
	fmt.Println()

	for {
		// Clear screen with ANSI escape.
		fmt.Print("\033[2J\033[H")

		if err := statusPrint(ctx); err != nil {
			fmt.Printf("\nError: %v\n", err)
		}

		fmt.Printf("\nLast updated: %s\n", time.Now().Format("15:04:05"))
		time.Sleep(2 * time.Second)
	}
}
