/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/client"
	"github.com/wandb/weave-sub009/weave/evals"
	"github.com/wandb/weave-sub009/weave/op"
	"github.com/wandb/weave-sub009/weave/traceserver"
)

func tracedContext(t *testing.T) (context.Context, *client.Client) {
	t.Helper()
	c, err := client.New(context.Background(), "", client.WithConfig(client.Config{
		Project:     "team/project",
		Parallelism: 4,
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return client.WithClient(context.Background(), c), c
}

type question struct {
	Q int `json:"q"`
}

type graded struct {
	ModelOutput int `json:"model_output"`
	Expected    int `json:"expected"`
}

var (
	doubler = op.New("model", func(_ context.Context, in question) (int, error) {
		return in.Q * 2, nil
	})

	exact = op.New("exact", func(_ context.Context, in graded) (float64, error) {
		if in.ModelOutput == in.Expected {
			return 1, nil
		}
		return 0, nil
	})

	positive = op.New("positive", func(_ context.Context, in graded) (bool, error) {
		return in.ModelOutput > 0, nil
	})
)

func dataset() []evals.Example {
	return []evals.Example{
		{"id": "a", "q": 1, "expected": 2},
		{"id": "b", "q": 2, "expected": 5},
		{"id": "c", "q": 3, "expected": 6},
	}
}

type node struct {
	Op    string
	Depth int
}

func TestEvaluationTopology(t *testing.T) {
	ctx, c := tracedContext(t)

	eval := &evals.Evaluation{
		Dataset:     dataset(),
		Scorers:     []op.Op{exact, positive},
		Concurrency: 1,
	}
	_, root, err := eval.EvaluateCall(ctx, doubler)
	require.NoError(t, err)
	require.NotNil(t, root)

	calls, err := c.GetCalls(ctx, traceserver.Filter{})
	require.NoError(t, err)
	require.Len(t, calls, 14)
	for _, ch := range calls {
		require.Equal(t, root.TraceID, ch.TraceID)
		require.Equal(t, call.StatusSuccess, ch.Status(), ch.OpName)
	}

	var got []node
	root.Walk(func(c *call.Call, depth int) {
		got = append(got, node{Op: c.OpName, Depth: depth})
	})
	want := []node{{evals.EvaluateOpName, 0}}
	for range 3 {
		want = append(want,
			node{evals.PredictAndScoreOpName, 1},
			node{"model", 2},
			node{"exact", 2},
			node{"positive", 2},
		)
	}
	want = append(want, node{evals.SummarizeOpName, 1})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("topology (-want +got):\n%s", diff)
	}
}

func TestEvaluationSummaries(t *testing.T) {
	ctx, _ := tracedContext(t)

	custom := evals.WithSummarizer(positive, func(_ context.Context, scores []any) (any, error) {
		for _, s := range scores {
			if s != true {
				return false, nil
			}
		}
		return true, nil
	})
	eval := &evals.Evaluation{
		Dataset: dataset(),
		Scorers: []op.Op{exact, custom},
	}
	summary, root, err := eval.EvaluateCall(ctx, doubler)
	require.NoError(t, err)

	mean, err := call.Lookup(summary, "exact", "mean")
	require.NoError(t, err)
	require.InDelta(t, 2.0/3.0, mean, 1e-9)

	require.Equal(t, true, summary["positive"])

	outputMean, err := call.Lookup(summary, evals.KeyModelOutput, "mean")
	require.NoError(t, err)
	require.InDelta(t, 4.0, outputMean, 1e-9)

	_, err = call.Lookup(summary, evals.KeyModelLatency, "mean")
	require.NoError(t, err)

	surfaced, err := call.Lookup(root.Summary(), "evaluation", "exact", "mean")
	require.NoError(t, err)
	require.InDelta(t, 2.0/3.0, surfaced, 1e-9)
}

func TestEvaluationExcludesFailedExamples(t *testing.T) {
	ctx, c := tracedContext(t)

	flaky := op.New("flaky", func(_ context.Context, in question) (int, error) {
		if in.Q == 2 {
			return 0, errors.New("model unavailable")
		}
		return in.Q * 2, nil
	})
	eval := &evals.Evaluation{
		Dataset: dataset(),
		Scorers: []op.Op{exact},
	}
	summary, root, err := eval.EvaluateCall(ctx, flaky)
	require.NoError(t, err)
	require.Equal(t, call.StatusSuccess, root.Status())

	mean, err := call.Lookup(summary, "exact", "mean")
	require.NoError(t, err)
	require.InDelta(t, 1.0, mean, 1e-9)

	failed, err := c.GetCalls(ctx, traceserver.Filter{OpNames: []string{evals.PredictAndScoreOpName}})
	require.NoError(t, err)
	var errored int
	for _, ch := range failed {
		if ch.Status() == call.StatusError {
			errored++
			require.Contains(t, ch.Exception(), "model unavailable")
		}
	}
	require.Equal(t, 1, errored)
}

func TestEvaluationExcludesFailedScores(t *testing.T) {
	ctx, _ := tracedContext(t)

	picky := op.New("picky", func(_ context.Context, in graded) (float64, error) {
		if in.Expected == 5 {
			return 0, errors.New("cannot grade")
		}
		return 0.5, nil
	})
	eval := &evals.Evaluation{
		Dataset: dataset(),
		Scorers: []op.Op{picky, exact},
	}
	summary, err := eval.Evaluate(ctx, doubler)
	require.NoError(t, err)

	picked, err := call.Lookup(summary, "picky", "mean")
	require.NoError(t, err)
	require.InDelta(t, 0.5, picked, 1e-9)

	exactMean, err := call.Lookup(summary, "exact", "mean")
	require.NoError(t, err)
	require.InDelta(t, 2.0/3.0, exactMean, 1e-9)
}

func TestEvaluationAllExamplesFail(t *testing.T) {
	ctx, _ := tracedContext(t)

	broken := op.New("broken", func(context.Context, question) (int, error) {
		return 0, errors.New("down")
	})
	eval := &evals.Evaluation{Dataset: dataset(), Scorers: []op.Op{exact}}
	summary, err := eval.Evaluate(ctx, broken)
	require.NoError(t, err)
	require.Nil(t, summary["exact"])
	require.Nil(t, summary[evals.KeyModelOutput])
}

func TestEvaluationRejectsNonOps(t *testing.T) {
	ctx, _ := tracedContext(t)

	eval := &evals.Evaluation{Dataset: dataset(), Scorers: []op.Op{exact}}
	_, err := eval.Evaluate(ctx, func(int) int { return 0 })
	require.ErrorIs(t, err, evals.ErrNotAnOp)

	eval = &evals.Evaluation{Dataset: dataset(), Scorers: []op.Op{nil}}
	_, err = eval.Evaluate(ctx, doubler)
	require.ErrorIs(t, err, evals.ErrNotAnOp)
}

func TestEvaluationTrials(t *testing.T) {
	ctx, c := tracedContext(t)

	eval := &evals.Evaluation{
		Dataset: dataset()[:2],
		Scorers: []op.Op{exact},
		Trials:  3,
	}
	_, err := eval.Evaluate(ctx, doubler)
	require.NoError(t, err)

	rows, err := c.GetCalls(ctx, traceserver.Filter{OpNames: []string{evals.PredictAndScoreOpName}})
	require.NoError(t, err)
	require.Len(t, rows, 6)
}

func TestEvaluationUntraced(t *testing.T) {
	eval := &evals.Evaluation{Dataset: dataset(), Scorers: []op.Op{exact}}
	summary, root, err := eval.EvaluateCall(context.Background(), doubler)
	require.NoError(t, err)
	require.Nil(t, root)

	mean, err := call.Lookup(summary, "exact", "mean")
	require.NoError(t, err)
	require.InDelta(t, 2.0/3.0, mean, 1e-9)
}

func TestEvaluationCancelled(t *testing.T) {
	ctx, _ := tracedContext(t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	eval := &evals.Evaluation{Dataset: dataset(), Scorers: []op.Op{exact}}
	_, err := eval.Evaluate(ctx, doubler)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEvaluationObserve(t *testing.T) {
	ctx, _ := tracedContext(t)

	root := evals.NewNamespacedObserver(func(string) *evals.ResultCollector {
		return evals.NewResultCollector(nil)
	})
	eval := &evals.Evaluation{
		Dataset: dataset(),
		Scorers: []op.Op{exact, positive},
		Observe: evals.Namespaced(root),
	}
	_, err := eval.Evaluate(ctx, doubler)
	require.NoError(t, err)

	b := root.Path("model", "b", "exact").Inner()
	require.Equal(t, int64(1), b.Total())
	if diff := cmp.Diff([]evals.Grade{{Score: 0}}, b.Grades()); diff != "" {
		t.Errorf("grades (-want +got):\n%s", diff)
	}

	a := root.Path("model", "a", "positive").Inner()
	require.Equal(t, int64(1), a.Total())
	require.Empty(t, a.Failures())
}
