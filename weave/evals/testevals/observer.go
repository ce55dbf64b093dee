/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testevals

import (
	"fmt"
	"path"
	"sync/atomic"
	"testing"

	"github.com/wandb/weave-sub009/weave/evals"
)

// observer reports failures as test errors and everything else as test
// logs.
type observer struct {
	tb     testing.TB
	prefix string
	min    float64
	count  atomic.Int64
}

var _ evals.Observer = (*observer)(nil)

// New returns an Observer reporting to tb.
func New(tb testing.TB) evals.Observer {
	return &observer{tb: tb, min: -1}
}

// NewPrefix returns an Observer reporting to tb with every message prefixed.
func NewPrefix(tb testing.TB, prefix string) evals.Observer {
	return &observer{tb: tb, prefix: prefix, min: -1}
}

// Observe returns an ObserverFunc prefixing messages with
// model/example/scorer.
func Observe(tb testing.TB) evals.ObserverFunc {
	return func(model, example, scorer string) evals.Observer {
		return NewPrefix(tb, path.Join(model, example, scorer))
	}
}

// ObserveMinGrade is like Observe but also fails the test for every grade
// below minimum.
func ObserveMinGrade(tb testing.TB, minimum float64) evals.ObserverFunc {
	return func(model, example, scorer string) evals.Observer {
		return &observer{tb: tb, prefix: path.Join(model, example, scorer), min: minimum}
	}
}

func (o *observer) Fail(msg string) {
	o.tb.Helper()
	if o.prefix != "" {
		o.tb.Errorf("%s: %s", o.prefix, msg)
	} else {
		o.tb.Error(msg)
	}
}

func (o *observer) Log(msg string) {
	o.tb.Helper()
	if o.prefix != "" {
		o.tb.Logf("%s: %s", o.prefix, msg)
	} else {
		o.tb.Log(msg)
	}
}

func (o *observer) Grade(score float64, reasoning string) {
	o.tb.Helper()
	if o.min >= 0 && score < o.min {
		o.Fail(fmt.Sprintf("grade: got = %.2f, wanted >= %.2f (%s)", score, o.min, reasoning))
		return
	}
	o.Log(fmt.Sprintf("Grade: %.2f - %s", score, reasoning))
}

func (o *observer) Increment() {
	o.count.Add(1)
}

func (o *observer) Total() int64 {
	return o.count.Load()
}
