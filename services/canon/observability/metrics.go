// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// canonicalization ledger.
//
// # Description
//
// This package implements Prometheus metrics for monitoring ledger
// operations. Metrics include:
//   - Merge counters and duration histograms (by result)
//   - Candidate pair production counters
//   - Promotion counters (by outcome)
//   - Consistency violation counters (broken canonical pointers)
//   - Graph replay counters (by backend and status)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for ledger metrics
const canonSubsystem = "canon"

// CanonMetrics holds all Prometheus metrics for ledger operations.
//
// # Description
//
// Provides counters and histograms for monitoring merge throughput,
// detection output, promotion outcomes and consistency health. Initialize
// once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type CanonMetrics struct {
	// MergesTotal counts merge attempts by terminal result.
	// Labels: result (committed, aborted)
	MergesTotal *prometheus.CounterVec

	// MergeDurationSeconds measures end-to-end merge latency.
	// Labels: result (committed, aborted)
	MergeDurationSeconds *prometheus.HistogramVec

	// CandidatePairsTotal counts pairs proposed by detection runs.
	CandidatePairsTotal prometheus.Counter

	// PromotionsTotal counts promotion attempts by outcome.
	// Labels: outcome (promoted, or the skip reason)
	PromotionsTotal *prometheus.CounterVec

	// BrokenPointerTotal counts detected canonical pointer violations.
	// Any nonzero rate is an alert condition.
	BrokenPointerTotal prometheus.Counter

	// GraphReplaysTotal counts graph replays by backend and status.
	// Labels: backend (weaviate, memory), status (success, error)
	GraphReplaysTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of CanonMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *CanonMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup, after the Prometheus registry is available.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *CanonMetrics {
	DefaultMetrics = &CanonMetrics{
		MergesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: canonSubsystem,
				Name:      "merges_total",
				Help:      "Total merge attempts by terminal result",
			},
			[]string{"result"},
		),

		MergeDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: canonSubsystem,
				Name:      "merge_duration_seconds",
				Help:      "End-to-end merge duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"result"},
		),

		CandidatePairsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: canonSubsystem,
				Name:      "candidate_pairs_total",
				Help:      "Total duplicate-candidate pairs proposed by detection",
			},
		),

		PromotionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: canonSubsystem,
				Name:      "promotions_total",
				Help:      "Total promotion attempts by outcome",
			},
			[]string{"outcome"},
		),

		BrokenPointerTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: canonSubsystem,
				Name:      "broken_pointer_total",
				Help:      "Total canonical pointer consistency violations observed",
			},
		),

		GraphReplaysTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: canonSubsystem,
				Name:      "graph_replays_total",
				Help:      "Total graph edge replays by backend and status",
			},
			[]string{"backend", "status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordMerge records one merge attempt with its duration.
//
// # Inputs
//
//   - result: Terminal result string (committed, aborted).
//   - seconds: End-to-end duration in seconds.
func (m *CanonMetrics) RecordMerge(result string, seconds float64) {
	m.MergesTotal.WithLabelValues(result).Inc()
	m.MergeDurationSeconds.WithLabelValues(result).Observe(seconds)
}

// RecordPairs records the output size of one detection run.
func (m *CanonMetrics) RecordPairs(count int) {
	m.CandidatePairsTotal.Add(float64(count))
}

// RecordPromotion records one promotion attempt outcome. The outcome is
// "promoted" or the skip reason.
func (m *CanonMetrics) RecordPromotion(outcome string) {
	m.PromotionsTotal.WithLabelValues(outcome).Inc()
}

// RecordBrokenPointer records an observed consistency violation.
func (m *CanonMetrics) RecordBrokenPointer() {
	m.BrokenPointerTotal.Inc()
}

// RecordGraphReplay records one graph replay.
//
// # Inputs
//
//   - backend: Backend name (weaviate, memory).
//   - success: Whether the replay completed.
func (m *CanonMetrics) RecordGraphReplay(backend string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.GraphReplaysTotal.WithLabelValues(backend, status).Inc()
}
