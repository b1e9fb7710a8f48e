package main

import (
	"errors"
	"fmt"

	"github.com/nao1215/mentionscan/internal/session"
	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the locally stored session",
		Long: `Logout deletes the locally stored analytics session.

This only clears local state. The next report run or 'mentionscan
login' authenticates from scratch.`,
		Args: cobra.NoArgs,
		RunE: runLogoutCmd,
	}
}

// runLogoutCmd executes the logout command.
func runLogoutCmd(cmd *cobra.Command, _ []string) error {
	store := session.DefaultStore()

	if _, err := store.Load(); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			fmt.Fprintln(cmd.OutOrStdout(), "No stored session.")
			return nil
		}
		return fmt.Errorf("failed to read stored session: %w", err)
	}

	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session cleared from %s\n", store.Path())
	return nil
}
