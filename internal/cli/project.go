package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
	"github.com/klubi/inkwell/pkg/client"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects", "proj"},
		Short:   "Manage project records",
		Long: `Project records hold whole serialized manuscripts. They are stored
separately from the key/value table and are never cached.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List project ids",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := apiClient.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				if outputFormat != "table" {
					printOutput(v1.ProjectList{IDs: ids}, nil, nil)
					return nil
				}
				if len(ids) == 0 {
					fmt.Println("No projects found.")
					return nil
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show a project record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := apiClient.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printOutput(*p, []string{"ID", "SIZE", "UPDATED", "DATA"}, projectToRow)
				return nil
			},
		},
		newProjectSaveCmd(),
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"delete"},
			Short:   "Delete a project record",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := apiClient.DeleteProject(cmd.Context(), args[0]); err != nil {
					return err
				}
				color.Green("project %s deleted", args[0])
				return nil
			},
		},
	)

	return cmd
}

func newProjectSaveCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "save [id]",
		Short: "Create or replace a project record",
		Long: `Store a project record read from --file, or stdin. Without an id the
server assigns a new one.`,
		Example: `  inkwell project save -f novel.json
  inkwell project save 3f1c... -f novel.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}

			var p *v1.Project
			if len(args) == 0 {
				p, err = apiClient.CreateProject(cmd.Context(), string(data))
			} else {
				p, err = apiClient.SaveProject(cmd.Context(), args[0], string(data))
			}
			if err != nil {
				if client.IsQuotaExceeded(err) {
					printQuotaWarning(err)
				}
				return err
			}

			color.Green("project %s saved", p.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the record from this file instead of stdin")

	return cmd
}

func projectToRow(v interface{}) []string {
	p := v.(v1.Project)
	return []string{p.ID, fmt.Sprintf("%d", len(p.Data)), formatAge(p.UpdatedAt), truncate(p.Data, 40)}
}

// readInput reads a file, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
