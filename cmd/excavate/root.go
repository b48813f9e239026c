package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for excavate.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "excavate",
		Short: "Extract links, findings and parameters from web targets",
		Long: `excavate fetches web targets, extracts everything of interest from each
response and follows in-scope links within the configured spider limits.

Extracted items are reported as typed events: URL, URL_UNVERIFIED, FINDING,
PROTOCOL, WEB_PARAMETER, DNS_NAME and EMAIL_ADDRESS. Custom signature rules
can be added through the configuration file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON lines")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewRulesCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
