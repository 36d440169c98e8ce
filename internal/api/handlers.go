// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	lplog "github.com/ManuGH/listenpath/internal/log"
)

type healthResponse struct {
	Status  string `json:"status"`
	Breaker string `json:"breaker"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Breaker: string(s.breaker.Status().State),
		Version: s.cfg.Version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	})
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.breaker.Status())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	logger := lplog.WithComponentFromContext(r.Context(), "api")
	if err := s.breaker.Reset(r.Context()); err != nil {
		logger.Error().Err(err).Str("event", "breaker.reset_failed").Msg("breaker reset failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reset_failed", Detail: err.Error()})
		return
	}
	logger.Info().Str("event", "breaker.reset").Msg("probe breaker reset by operator")
	writeJSON(w, http.StatusOK, s.breaker.Status())
}

func (s *Server) handleAvailabilityList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cache.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list_failed", Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAvailabilityGet(w http.ResponseWriter, r *http.Request) {
	episode, version, ok := episodeParams(w, r)
	if !ok {
		return
	}
	rec := s.cache.Read(r.Context(), episode, version)
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Detail: "no live availability record"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAvailabilityPurge(w http.ResponseWriter, r *http.Request) {
	episode, version, ok := episodeParams(w, r)
	if !ok {
		return
	}
	if err := s.cache.Purge(r.Context(), episode, version); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "purge_failed", Detail: err.Error()})
		return
	}
	logger := lplog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "availability.purged").
		Str(lplog.FieldEpisodeID, episode).
		Int("cache_version", version).
		Msg("availability record purged")
	w.WriteHeader(http.StatusNoContent)
}

// episodeParams reads {episode} and the required ?version=N.
func episodeParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	episode := chi.URLParam(r, "episode")
	raw := r.URL.Query().Get("version")
	version, err := strconv.Atoi(raw)
	if episode == "" || err != nil || version < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Detail: "episode and non-negative ?version= are required"})
		return "", 0, false
	}
	return episode, version, true
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
