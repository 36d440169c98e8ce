// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/listenpath/internal/api"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/telemetry"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics, breaker and cache endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg := rt.cfg
			if listen != "" {
				cfg.API.Listen = listen
			}

			provider, err := telemetry.NewProvider(cmd.Context(), telemetry.Config{
				Enabled:        cfg.Telemetry.Enabled,
				ServiceName:    cfg.Log.Service,
				ServiceVersion: cfg.Version,
				Environment:    cfg.Telemetry.Environment,
				ExporterType:   cfg.Telemetry.Exporter,
				Endpoint:       cfg.Telemetry.Endpoint,
				SamplingRate:   cfg.Telemetry.SamplingRate,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := contextWithTimeout(cmd, 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					logger := lplog.WithComponent("cli")
					logger.Warn().Err(err).Msg("telemetry shutdown failed")
				}
			}()

			tracing := ""
			if cfg.Telemetry.Enabled {
				tracing = cfg.Log.Service
			}
			srv := api.New(api.Config{
				Listen:            cfg.API.Listen,
				RequestsPerMinute: cfg.API.RateLimit,
				TracingService:    tracing,
				Version:           cfg.Version,
			}, rt.breaker, rt.cache)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Override api.listen")
	return cmd
}
