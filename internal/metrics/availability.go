// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_availability_cache_lookups_total",
		Help: "Availability cache reads by result",
	}, []string{"result"})

	cacheHeals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenpath_availability_cache_heals_total",
		Help: "Self-heal re-probes of cached AAC verdicts by outcome",
	}, []string{"outcome"})

	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listenpath_scan_duration_seconds",
		Help:    "Duration of availability scans by kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})
)

// RecordCacheLookup records hit, miss, expired or malformed.
func RecordCacheLookup(result string) {
	switch result {
	case "hit", "miss", "expired", "malformed", "error":
	default:
		result = "unknown"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheHeal records whether a self-heal re-probe invalidated the cached verdict.
func RecordCacheHeal(invalidated bool) {
	outcome := "kept"
	if invalidated {
		outcome = "invalidated"
	}
	cacheHeals.WithLabelValues(outcome).Inc()
}

// ObserveScan records a scan duration. kind is "full" or "quick".
func ObserveScan(kind string, seconds float64) {
	if kind != "full" && kind != "quick" {
		kind = "unknown"
	}
	scanDuration.WithLabelValues(kind).Observe(seconds)
}
