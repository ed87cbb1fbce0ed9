package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"discdump/internal/devlock"
	"discdump/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show readiness checks for the configured drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cfg, 0, false)

			lockDetail := "free"
			lock, err := devlock.Acquire(cfg.LockPath())
			switch {
			case errors.Is(err, devlock.ErrBusy):
				lockDetail = "held by a running dump"
			case err != nil:
				lockDetail = err.Error()
			default:
				_ = lock.Release()
			}

			rows := make([][]string, 0, len(results)+1)
			for _, r := range results {
				rows = append(rows, []string{r.Name, yesNo(r.Passed), r.Detail})
			}
			rows = append(rows, []string{"Device lock", yesNo(lockDetail == "free"), lockDetail})
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "OK", "Detail"}, rows))
			return nil
		},
	}
}
