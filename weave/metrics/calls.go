/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tracing failure stages.
const (
	StageSerialize = "serialize"
	StageStart     = "start"
	StageFinish    = "finish"
	StageHandler   = "on_finish"
	StageFlush     = "flush"
	StageObject    = "object"
	StageListener  = "listener"
)

var (
	CallsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weave_calls_started_total",
			Help: "Total number of traced calls started",
		},
		[]string{"op"},
	)

	CallsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weave_calls_finished_total",
			Help: "Total number of traced calls finished, by status",
		},
		[]string{"op", "status"},
	)

	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weave_call_latency_seconds",
			Help:    "Wall time of traced calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"op"},
	)

	// TracingFailures counts swallowed errors from the tracing machinery.
	TracingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weave_tracing_failures_total",
			Help: "Total number of tracing infrastructure failures that were logged and dropped",
		},
		[]string{"stage"},
	)

	BatchFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weave_batch_flushes_total",
			Help: "Total number of batched trace writes, by result",
		},
		[]string{"result"},
	)

	BatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weave_batch_queue_depth",
			Help: "Number of trace writes waiting to be flushed",
		},
	)
)
