// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBreakerCommand(ctx *commandContext) *cobra.Command {
	breakerCmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect and reset the probe circuit breaker",
	}
	breakerCmd.AddCommand(newBreakerStatusCommand(ctx))
	breakerCmd.AddCommand(newBreakerResetCommand(ctx))
	return breakerCmd
}

func newBreakerStatusCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether lightweight probes are enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := wantJSON(cmd, output)
			if err != nil {
				return err
			}
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			status := rt.breaker.Status()
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:     %s\n", status.State)
			fmt.Fprintf(out, "Threshold: %d distinct not-found URLs\n", status.Threshold)
			if !status.DisabledAt.IsZero() {
				fmt.Fprintf(out, "Disabled:  %s\n", status.DisabledAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newBreakerResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Re-enable lightweight probes and clear the persisted flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.breaker.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset breaker: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "breaker reset: lightweight probes enabled")
			return nil
		},
	}
}
