package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the HourLedger admin CLI. Subcommands
// (migrate, tenant, period, auth) are attached here.
var rootCmd = &cobra.Command{
	Use:           "hourledger",
	Short:         "HourLedger admin CLI",
	Long:          "Administrative utilities for HourLedger (migrations, dev tokens, tenant bootstrap, period locks).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
