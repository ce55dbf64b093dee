/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weave_evaluation_observations_total",
			Help: "Number of scored examples observed",
		},
		[]string{"evaluation", "namespace"},
	)

	failureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weave_evaluation_failures_total",
			Help: "Number of failed evaluation observations",
		},
		[]string{"evaluation", "namespace"},
	)

	gradeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weave_evaluation_grade",
			Help: "Most recent evaluation grade (0.0-1.0)",
		},
		[]string{"evaluation", "namespace"},
	)
)

// MetricsObserver exports observations as Prometheus metrics.
type MetricsObserver struct {
	count atomic.Int64

	evalCounter prometheus.Counter
	failCounter prometheus.Counter
	gradeGauge  prometheus.Gauge
}

// NewMetricsObserver returns an observer labelled with the evaluation name
// and the observer namespace.
func NewMetricsObserver(evaluation, namespace string) *MetricsObserver {
	labels := prometheus.Labels{"evaluation": evaluation, "namespace": namespace}
	return &MetricsObserver{
		evalCounter: evaluationCounter.With(labels),
		failCounter: failureCounter.With(labels),
		gradeGauge:  gradeGauge.With(labels),
	}
}

// MetricsFactory builds a MetricsObserver per namespace, for use with
// NewNamespacedObserver.
func MetricsFactory(evaluation string) func(string) *MetricsObserver {
	return func(namespace string) *MetricsObserver {
		return NewMetricsObserver(evaluation, namespace)
	}
}

// Increment implements Observer.
func (m *MetricsObserver) Increment() {
	m.count.Add(1)
	m.evalCounter.Inc()
}

// Fail implements Observer.
func (m *MetricsObserver) Fail(string) {
	m.failCounter.Inc()
}

// Grade implements Observer.
func (m *MetricsObserver) Grade(score float64, _ string) {
	m.gradeGauge.Set(score)
}

// Log implements Observer. Metrics have nothing to record for it.
func (m *MetricsObserver) Log(string) {}

// Total implements Observer.
func (m *MetricsObserver) Total() int64 {
	return m.count.Load()
}
