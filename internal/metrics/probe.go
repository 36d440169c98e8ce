// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_probe_total",
		Help: "Existence probe attempts by tier and outcome",
	}, []string{"tier", "outcome"})

	probeDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listenpath_probe_deduped_total",
		Help: "Probe calls answered by a shared in-flight check or the memo",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "listenpath_probe_breaker_state",
		Help: "Probe circuit breaker state (active state=1, others 0)",
	}, []string{"state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_probe_breaker_trips_total",
		Help: "Total number of probe breaker trips",
	}, []string{"reason"})
)

var breakerStates = []string{"enabled", "disabled"}

// RecordProbe counts one tier attempt.
func RecordProbe(tier, outcome string) {
	probeTotal.WithLabelValues(normalizeTier(tier), normalizeProbeOutcome(outcome)).Inc()
}

// RecordProbeDeduped counts a probe answered without a new network check.
func RecordProbeDeduped() {
	probeDedupedTotal.Inc()
}

// SetBreakerState records the active probe breaker state.
func SetBreakerState(state string) {
	for _, s := range breakerStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		breakerState.WithLabelValues(s).Set(value)
	}
}

// RecordBreakerTrip increments the trip counter when the breaker disables lightweight tiers.
func RecordBreakerTrip(reason string) {
	breakerTrips.WithLabelValues(reason).Inc()
}

func normalizeTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "head", "range", "media":
		return strings.ToLower(strings.TrimSpace(tier))
	default:
		return "unknown"
	}
}

func normalizeProbeOutcome(outcome string) string {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "exists", "missing", "not_found", "transport_error", "status_error", "timeout", "skipped":
		return strings.ToLower(strings.TrimSpace(outcome))
	default:
		return "unknown"
	}
}
