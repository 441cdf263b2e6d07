package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/klubi/inkwell/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		outputFile string
		dataDir    string
		storeType  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Create an inkwell.yaml in the current directory holding every setting
with its default value, ready to customize.`,
		Example: `  inkwell init
  inkwell init --data-dir ./data --store sqlite
  inkwell init --output-file custom.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if dataDir != "" {
				cfg.Store.DataDir = dataDir
			}
			if storeType != "" {
				cfg.Store.Type = storeType
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			content, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			outputPath := filepath.Join(cwd, outputFile)

			// Check if file already exists.
			if _, err := os.Stat(outputPath); err == nil {
				return fmt.Errorf("file %s already exists. Use a different name with --output-file", outputFile)
			}

			if err := os.WriteFile(outputPath, content, 0644); err != nil {
				return fmt.Errorf("writing config file: %w", err)
			}

			bold := color.New(color.FgCyan, color.Bold)
			bold.Println("Inkwell configuration written!")
			fmt.Println()
			fmt.Printf("  Config:   %s\n", outputPath)
			fmt.Printf("  Store:    %s\n", cfg.Store.Type)
			fmt.Printf("  Data Dir: %s\n", cfg.Store.DataDir)
			fmt.Println()

			color.New(color.Bold).Println("Next steps:")
			fmt.Println("  1. Review and customize the configuration:")
			fmt.Printf("     vi %s\n", outputFile)
			fmt.Println()
			fmt.Println("  2. Start the server:")
			fmt.Printf("     inkwell serve --config %s\n", outputFile)
			fmt.Println()
			fmt.Println("  3. Check status:")
			fmt.Println("     inkwell status")

			return nil
		},
	}

	cmd.Flags().StringVar(&outputFile, "output-file", config.DefaultFile, "Output config filename")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory to write into the config")
	cmd.Flags().StringVar(&storeType, "store", "", "Durable store type: bolt|sqlite|memory|none")

	return cmd
}
