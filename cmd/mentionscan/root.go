// Package main provides the entry point for the mentionscan CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for mentionscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mentionscan",
		Short: "Mention count reports from an analytics search API",
		Long: `Mentionscan counts how often a roster of subjects is mentioned, using
the search API of an analytics service, and turns the counts into
weekly and monthly reports.

Generate a report once with 'mentionscan report', or run 'mentionscan
schedule' as a long-lived service that fires on the calendar cadence
from the configuration file. Generated reports are kept in a local
database and can be browsed with 'mentionscan history'.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewScheduleCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewLogoutCmd())
	cmd.AddCommand(NewHistoryCmd())
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
