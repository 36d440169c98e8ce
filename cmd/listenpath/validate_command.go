// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/listenpath/internal/config"
	"github.com/ManuGH/listenpath/internal/validate"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [episode.yaml...]",
		Short: "Validate the configuration and any episode files",
		Long: `Validate loads the application configuration (defaults, file and
LISTENPATH_* environment) and then every episode file given, reporting each
invalid field.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "config: ok (storage=%s, api=%s)\n", cfg.Storage.Backend, cfg.API.Listen)

			failed := 0
			for _, path := range args {
				ep, err := config.LoadEpisode(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: invalid\n", path)
					var verr validate.ValidationError
					if errors.As(err, &verr) {
						for _, fe := range verr.Errors() {
							fmt.Fprintf(out, "  - %s: %s\n", fe.Field, fe.Message)
						}
					} else {
						fmt.Fprintf(out, "  - %v\n", err)
					}
					continue
				}
				fmt.Fprintf(out, "%s: ok (episode %s, %d languages)\n", path, ep.ID, len(ep.Languages))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d episode files invalid", failed, len(args))
			}
			return nil
		},
	}
}
