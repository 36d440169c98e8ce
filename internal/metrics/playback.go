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
	selectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_selection_total",
		Help: "Default variant selections by codec and reason",
	}, []string{"codec", "reason"})

	switchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_switch_total",
		Help: "Source switches by trigger reason and outcome",
	}, []string{"reason", "outcome"})

	switchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listenpath_switch_duration_seconds",
		Help:    "Time from switch start to finalization",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 9, 10},
	}, []string{"outcome"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_fallback_total",
		Help: "Codec fallback chain invocations by trigger and outcome",
	}, []string{"trigger", "outcome"})

	seekTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_seek_total",
		Help: "Seek operations by outcome",
	}, []string{"outcome"})
)

// RecordSelection records one default-variant decision.
func RecordSelection(codec, reason string) {
	selectionTotal.WithLabelValues(normalizeCodec(codec), normalizeLabel(reason)).Inc()
}

// RecordSwitch records a finalized or superseded switch.
func RecordSwitch(reason, outcome string, seconds float64) {
	outcome = normalizeSwitchOutcome(outcome)
	switchTotal.WithLabelValues(normalizeLabel(reason), outcome).Inc()
	if outcome != "stale" {
		switchDuration.WithLabelValues(outcome).Observe(seconds)
	}
}

// RecordFallback records one fallback chain decision.
func RecordFallback(trigger, outcome string) {
	fallbackTotal.WithLabelValues(normalizeLabel(trigger), normalizeLabel(outcome)).Inc()
}

// RecordSeek records a seek outcome (confirmed, retried, unconfirmed, deferred).
func RecordSeek(outcome string) {
	seekTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeCodec(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "opus", "aac", "mp3":
		return strings.ToLower(strings.TrimSpace(codec))
	case "", "none":
		return "none"
	default:
		return "other"
	}
}

func normalizeSwitchOutcome(outcome string) string {
	switch outcome {
	case "ready", "ready_soft", "failed", "stale":
		return outcome
	default:
		return "unknown"
	}
}

func normalizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	if len(v) > 32 {
		return "other"
	}
	for _, r := range v {
		if (r < 'a' || r > 'z') && r != '_' && (r < '0' || r > '9') {
			return "other"
		}
	}
	return v
}
