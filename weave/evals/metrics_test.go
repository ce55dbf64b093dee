/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserver(t *testing.T) {
	labels := prometheus.Labels{"evaluation": "qa", "namespace": "/model/a/exact"}
	before := testutil.ToFloat64(evaluationCounter.With(labels))
	fails := testutil.ToFloat64(failureCounter.With(labels))

	observer := NewMetricsObserver("qa", "/model/a/exact")
	observer.Increment()
	observer.Increment()
	observer.Fail("wrong")
	observer.Grade(0.85, "close")
	observer.Log("ignored")

	if got := observer.Total(); got != 2 {
		t.Errorf("Total: got = %d, wanted = 2", got)
	}
	if got := testutil.ToFloat64(evaluationCounter.With(labels)) - before; got != 2 {
		t.Errorf("observations: got = %v, wanted = 2", got)
	}
	if got := testutil.ToFloat64(failureCounter.With(labels)) - fails; got != 1 {
		t.Errorf("failures: got = %v, wanted = 1", got)
	}
	if got := testutil.ToFloat64(gradeGauge.With(labels)); got != 0.85 {
		t.Errorf("grade: got = %v, wanted = 0.85", got)
	}
}

func TestMetricsFactory(t *testing.T) {
	root := NewNamespacedObserver(MetricsFactory("qa"))
	child := root.Path("model", "b")
	child.Increment()
	if got := child.Total(); got != 1 {
		t.Errorf("Total: got = %d, wanted = 1", got)
	}
	if got := testutil.ToFloat64(evaluationCounter.With(prometheus.Labels{"evaluation": "qa", "namespace": "/model/b"})); got < 1 {
		t.Errorf("observations: got = %v, wanted >= 1", got)
	}
}
