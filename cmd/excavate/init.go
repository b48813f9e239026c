package main

import (
	"fmt"

	"github.com/nao1215/excavate/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new excavate configuration file",
		Long: `Initialize creates a new .excavate.yaml configuration file in the current directory.

The generated file includes:
- Default spider limits and extension lists
- Commented examples for custom signature rules
- Commented examples for per-site cookies and headers

Examples:
  # Create .excavate.yaml in current directory
  excavate init

  # Create config file at a specific path
  excavate init -o myconfig.yaml

  # Force overwrite existing file
  excavate init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if err := config.WriteTemplate(outputPath, force); err != nil {
		return fmt.Errorf("failed to write configuration file: %w (use -f to overwrite)", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Spider distance, depth and links per page")
	fmt.Fprintln(out, "  - Custom signature rules")
	fmt.Fprintln(out, "  - Per-site cookies, headers and URL patterns")

	return nil
}
