/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testevals_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wandb/weave-sub009/weave/evals"
	"github.com/wandb/weave-sub009/weave/evals/testevals"
	"github.com/wandb/weave-sub009/weave/op"
)

// recorder captures what an observer reports instead of failing the test.
type recorder struct {
	testing.TB

	mu     sync.Mutex
	errors []string
	logs   []string
}

func (r *recorder) Helper() {}

func (r *recorder) Error(args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fmt.Sprint(args...))
}

func (r *recorder) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recorder) Log(args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, fmt.Sprint(args...))
}

func (r *recorder) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

func TestObserver(t *testing.T) {
	rec := &recorder{TB: t}
	obs := testevals.New(rec)

	obs.Increment()
	obs.Increment()
	obs.Log("starting")
	obs.Grade(0.5, "partial")
	obs.Fail("wrong answer")

	require.Equal(t, int64(2), obs.Total())
	require.Equal(t, []string{"starting", "Grade: 0.50 - partial"}, rec.logs)
	require.Equal(t, []string{"wrong answer"}, rec.errors)
}

func TestNewPrefix(t *testing.T) {
	rec := &recorder{TB: t}
	obs := testevals.NewPrefix(rec, "suite")

	obs.Log("hello")
	obs.Fail("boom")

	require.Equal(t, []string{"suite: hello"}, rec.logs)
	require.Equal(t, []string{"suite: boom"}, rec.errors)
}

func TestNamespaced(t *testing.T) {
	rec := &recorder{TB: t}
	root := evals.NewNamespacedObserver(func(name string) evals.Observer {
		return testevals.NewPrefix(rec, name)
	})

	// Namespaced paths are rooted at "/".
	root.Path("model", "a").Fail("nope")
	require.Equal(t, []string{"/model/a: nope"}, rec.errors)
}

type sample struct {
	Q        int `json:"q"`
	Expected int `json:"expected"`
}

type scored struct {
	ModelOutput int `json:"model_output"`
	Expected    int `json:"expected"`
}

func TestObserveEvaluation(t *testing.T) {
	model := op.New("model", func(_ context.Context, in sample) (int, error) {
		return in.Q + 1, nil
	})
	closeness := op.New("closeness", func(_ context.Context, in scored) (float64, error) {
		if in.ModelOutput == in.Expected {
			return 1, nil
		}
		return 0.25, nil
	})
	matches := op.New("matches", func(_ context.Context, in scored) (bool, error) {
		return in.ModelOutput == in.Expected, nil
	})

	dataset := []evals.Example{
		{"id": "right", "q": 1, "expected": 2},
		{"id": "wrong", "q": 2, "expected": 4},
	}

	rec := &recorder{TB: t}
	eval := &evals.Evaluation{
		Dataset:     dataset,
		Scorers:     []op.Op{closeness, matches},
		Concurrency: 1,
		Observe:     testevals.ObserveMinGrade(rec, 0.5),
	}
	_, err := eval.Evaluate(context.Background(), model)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{
		"model/wrong/closeness: grade: got = 0.25, wanted >= 0.50 ()",
		"model/wrong/matches: score: got = false, wanted = true",
	}, rec.errors)
	require.Contains(t, rec.logs, "model/right/closeness: Grade: 1.00 - ")

	rec = &recorder{TB: t}
	eval = &evals.Evaluation{
		Dataset: dataset,
		Scorers: []op.Op{closeness},
		Observe: testevals.Observe(rec),
	}
	_, err = eval.Evaluate(context.Background(), model)
	require.NoError(t, err)
	require.Empty(t, rec.errors)
	require.Len(t, rec.logs, 2)
}
