// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the operational HTTP surface: health, Prometheus
// metrics, the probe circuit breaker and the availability cache.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/listenpath/internal/api/middleware"
	"github.com/ManuGH/listenpath/internal/availability"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/resilience"
)

// Breaker is the probe circuit breaker as seen by operators.
type Breaker interface {
	Status() resilience.Status
	Reset(ctx context.Context) error
}

// Availability is the cache surface exposed to operators.
type Availability interface {
	Read(ctx context.Context, episodeID string, version int) *availability.Record
	Purge(ctx context.Context, episodeID string, version int) error
	List(ctx context.Context) ([]availability.Entry, error)
}

// Config tunes the server.
type Config struct {
	Listen            string
	RequestsPerMinute int
	TracingService    string
	Version           string
}

// Server is the ops HTTP server.
type Server struct {
	cfg     Config
	breaker Breaker
	cache   Availability
	started time.Time
}

// New creates a server. Both collaborators are required.
func New(cfg Config, breaker Breaker, cache Availability) *Server {
	return &Server{cfg: cfg, breaker: breaker, cache: cache, started: time.Now()}
}

// Handler builds the router. Health and metrics stay outside the rate limit.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RequestsPerMinute > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.cfg.RequestsPerMinute,
				WindowSize:   time.Minute,
			}))
		}
		r.Get("/breaker", s.handleBreakerStatus)
		r.Post("/breaker/reset", s.handleBreakerReset)
		r.Get("/availability", s.handleAvailabilityList)
		r.Get("/availability/{episode}", s.handleAvailabilityGet)
		r.Delete("/availability/{episode}", s.handleAvailabilityPurge)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	logger := lplog.WithComponent("api")
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("event", "api.listen").Str("addr", s.cfg.Listen).Msg("ops API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.Info().Str("event", "api.shutdown").Msg("shutting down ops API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
