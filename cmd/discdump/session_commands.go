package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"discdump/internal/config"
	"discdump/internal/resume"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List saved dump sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *resume.Store) error {
				rows, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No saved sessions")
					return nil
				}
				fmt.Fprintln(out, renderSessions(rows))
				return nil
			})
		},
	}
}

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or forget one saved session",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *resume.Store) error {
				cp, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if cp == nil {
					return fmt.Errorf("no session for fingerprint %s", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderCheckpoint(cp))
				return nil
			})
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "forget <fingerprint>",
		Short: "Delete a saved session so the next dump starts over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *resume.Store) error {
				removed, err := store.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no session for fingerprint %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot session %s\n", args[0])
				return nil
			})
		},
	})

	return sessionCmd
}
