// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the balance service.
//
// # Description
//
// Metrics cover the three things an operator of the planner cares about:
//   - Search outcomes, effort (states expanded) and latency
//   - Plan cost in crane minutes
//   - Sessions: uploads, live sessions and crane steps walked through
//
// Metrics are exposed on /metrics by `ballast serve`.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// A nil *Metrics is valid and records nothing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "ballast"
	balanceSubsystem = "balance"
)

// Outcome labels a finished search.
type Outcome string

const (
	OutcomeBalanced   Outcome = "balanced"
	OutcomeSolved     Outcome = "solved"
	OutcomeInfeasible Outcome = "infeasible"
	OutcomeLimit      Outcome = "limit"
	OutcomeMalformed  Outcome = "malformed"
	OutcomeCached     Outcome = "cached"
)

// UploadStatus labels a manifest upload.
type UploadStatus string

const (
	UploadAccepted UploadStatus = "accepted"
	UploadRejected UploadStatus = "rejected"
	UploadFailed   UploadStatus = "failed"
)

// Metrics holds the balance service's collectors.
type Metrics struct {
	// SearchesTotal counts searches by outcome.
	SearchesTotal *prometheus.CounterVec

	// SearchExpansions measures states expanded per search.
	SearchExpansions prometheus.Histogram

	// SearchDurationSeconds measures wall time per search.
	SearchDurationSeconds prometheus.Histogram

	// PlanCost measures total crane minutes of successful plans.
	PlanCost prometheus.Histogram

	// UploadsTotal counts manifest uploads by status.
	UploadsTotal *prometheus.CounterVec

	// StepsTotal counts steps walked through by kind (relocate, reposition, park).
	StepsTotal *prometheus.CounterVec

	// ArchiveLookupsTotal counts plan archive lookups by result (hit, miss, error).
	ArchiveLookupsTotal *prometheus.CounterVec

	// ActiveSessions tracks sessions currently held in memory.
	ActiveSessions prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
//
// # Limitations
//
//   - Panics if the same registry is passed twice (duplicate registration).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: balanceSubsystem,
				Name:      "searches_total",
				Help:      "Total balance searches by outcome",
			},
			[]string{"outcome"},
		),
		SearchExpansions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: balanceSubsystem,
			Name:      "search_expansions",
			Help:      "States expanded per search",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		SearchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: balanceSubsystem,
			Name:      "search_duration_seconds",
			Help:      "Wall time per search in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		PlanCost: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: balanceSubsystem,
			Name:      "plan_cost_minutes",
			Help:      "Total crane minutes of successful plans",
			Buckets:   []float64{0, 5, 10, 20, 40, 80, 160, 320},
		}),
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: balanceSubsystem,
				Name:      "uploads_total",
				Help:      "Total manifest uploads by status",
			},
			[]string{"status"},
		),
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: balanceSubsystem,
				Name:      "steps_total",
				Help:      "Total crane steps walked through by kind",
			},
			[]string{"kind"},
		),
		ArchiveLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: balanceSubsystem,
				Name:      "archive_lookups_total",
				Help:      "Total plan archive lookups by result",
			},
			[]string{"result"},
		),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: balanceSubsystem,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
	}
}

// RecordSearch records one finished search. Effort and latency are
// observed for every outcome; cost only for solved and balanced ones.
func (m *Metrics) RecordSearch(outcome Outcome, expanded int, seconds float64, cost int) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeCached {
		return
	}
	m.SearchExpansions.Observe(float64(expanded))
	m.SearchDurationSeconds.Observe(seconds)
	if outcome == OutcomeSolved || outcome == OutcomeBalanced {
		m.PlanCost.Observe(float64(cost))
	}
}

// RecordUpload counts a manifest upload.
func (m *Metrics) RecordUpload(status UploadStatus) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(string(status)).Inc()
}

// RecordStep counts a step the operator walked through.
func (m *Metrics) RecordStep(kind string) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(kind).Inc()
}

// RecordArchiveLookup counts a plan archive lookup.
func (m *Metrics) RecordArchiveLookup(result string) {
	if m == nil {
		return
	}
	m.ArchiveLookupsTotal.WithLabelValues(result).Inc()
}

// SessionOpened increments the active sessions gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active sessions gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
