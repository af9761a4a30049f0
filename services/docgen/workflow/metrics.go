// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"time"

	"github.com/AleutianAI/codescribe/services/docgen/reviewer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runTotal counts finished runs by terminal status
	runTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgen_run_total",
		Help: "Total refinement runs by terminal status",
	}, []string{"status"})

	// runDuration tracks end-to-end run latency
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docgen_run_duration_seconds",
		Help:    "Refinement run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
	}, []string{"status"})

	// runCycles tracks how many cycles runs needed
	runCycles = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docgen_run_cycles",
		Help:    "Draft/review cycles per refinement run",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	// reviewScore tracks per-cycle review scores
	reviewScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docgen_review_score",
		Help:    "Review scores per cycle",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// criticalFailureTotal counts cycles blocked by critical findings
	criticalFailureTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docgen_critical_failure_total",
		Help: "Total review cycles with critical failures",
	})
)

// Metrics records refinement outcomes to Prometheus.
type Metrics struct{}

// NewMetrics returns the shared metrics recorder. Collectors register
// on the default registry at package init.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(result *Result, elapsed time.Duration) {
	status := string(result.Status)
	runTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if result.Cycles > 0 {
		runCycles.Observe(float64(result.Cycles))
	}
}

// ObserveCycle records one completed review cycle.
func (m *Metrics) ObserveCycle(review *reviewer.Review) {
	reviewScore.Observe(float64(review.Score))
	if review.CriticalFailure {
		criticalFailureTotal.Inc()
	}
}
