/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"sync"
	"sync/atomic"
)

// Grade is one score with its reasoning.
type Grade struct {
	Score     float64
	Reasoning string
}

// ResultCollector records failures and grades so they can be reported
// after the run. Failures are forwarded to the inner observer as logs, so
// wrapping a *testing.T observer does not fail the test.
type ResultCollector struct {
	inner    Observer
	total    atomic.Int64
	mu       sync.Mutex
	failures []string
	grades   []Grade
}

// NewResultCollector wraps inner, which may be nil.
func NewResultCollector(inner Observer) *ResultCollector {
	return &ResultCollector{inner: inner}
}

// Fail implements Observer.
func (r *ResultCollector) Fail(msg string) {
	if r.inner != nil {
		r.inner.Log(msg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
}

// Log implements Observer.
func (r *ResultCollector) Log(msg string) {
	if r.inner != nil {
		r.inner.Log(msg)
	}
}

// Grade implements Observer.
func (r *ResultCollector) Grade(score float64, reasoning string) {
	if r.inner != nil {
		r.inner.Grade(score, reasoning)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grades = append(r.grades, Grade{Score: score, Reasoning: reasoning})
}

// Increment implements Observer.
func (r *ResultCollector) Increment() {
	if r.inner != nil {
		r.inner.Increment()
	}
	r.total.Add(1)
}

// Total implements Observer. It counts the increments seen by the
// collector itself.
func (r *ResultCollector) Total() int64 {
	return r.total.Load()
}

// Failures returns a copy of the failure messages.
func (r *ResultCollector) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// Grades returns a copy of the grades.
func (r *ResultCollector) Grades() []Grade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Grade(nil), r.grades...)
}

// PassRate is the fraction of observed instances that did not fail. It is
// zero when nothing was observed.
func (r *ResultCollector) PassRate() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(total-int64(len(r.Failures()))) / float64(total)
}

// MeanGrade averages the grades, reporting false when there are none.
func (r *ResultCollector) MeanGrade() (float64, bool) {
	grades := r.Grades()
	if len(grades) == 0 {
		return 0, false
	}
	var sum float64
	for _, g := range grades {
		sum += g.Score
	}
	return sum / float64(len(grades)), true
}
