/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/evals"
	"github.com/wandb/weave-sub009/weave/op"
)

// tree builds a finished call named root with one finished child per name.
// A child name ending in "!" finishes with an error.
func tree(root string, children ...string) *call.Call {
	parent := call.New("team/project", root, nil)
	for _, name := range children {
		exception := ""
		if name[len(name)-1] == '!' {
			name, exception = name[:len(name)-1], "boom"
		}
		child := call.New("team/project", name, parent)
		_ = child.Finish(nil, exception, time.Time{})
		parent.AddChild(child)
	}
	_ = parent.Finish(int64(1), "", time.Time{})
	return parent
}

func TestChildCallCounts(t *testing.T) {
	tests := []struct {
		name     string
		check    evals.Check
		children int
		wantFail string
	}{{
		name:     "exact match",
		check:    evals.ExactChildCalls(2),
		children: 2,
	}, {
		name:     "exact mismatch",
		check:    evals.ExactChildCalls(3),
		children: 2,
		wantFail: "child call count: got = 2, wanted = 3",
	}, {
		name:     "minimum",
		check:    evals.MinimumNChildCalls(3),
		children: 1,
		wantFail: "child call count: got = 1, wanted >= 3",
	}, {
		name:     "maximum",
		check:    evals.MaximumNChildCalls(1),
		children: 2,
		wantFail: "child call count: got = 2, wanted <= 1",
	}, {
		name:     "none",
		check:    evals.NoChildCalls(),
		children: 1,
		wantFail: "child call count: got = 1, wanted = 0",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			children := make([]string, tt.children)
			for i := range children {
				children[i] = fmt.Sprintf("step%d", i)
			}
			obs := &recordingObserver{}
			tt.check(obs, tree("root", children...))

			if tt.wantFail == "" {
				require.Empty(t, obs.failures)
				return
			}
			require.Equal(t, []string{tt.wantFail}, obs.failures)
		})
	}
}

func TestChildOps(t *testing.T) {
	c := tree("agent", "search", "read", "search")

	obs := &recordingObserver{}
	evals.OnlyChildOps("search", "read")(obs, c)
	require.Empty(t, obs.failures)

	obs = &recordingObserver{}
	evals.OnlyChildOps("search")(obs, c)
	require.Len(t, obs.failures, 1)
	require.Contains(t, obs.failures[0], `unexpected child call "read"`)

	obs = &recordingObserver{}
	evals.RequiredChildOps("read", "write", "edit")(obs, c)
	require.Equal(t, []string{"missing required child calls: [edit write]"}, obs.failures)

	obs = &recordingObserver{}
	var seen int
	evals.ChildCallNamed("search", func(evals.Observer, *call.Call) error {
		seen++
		return nil
	})(obs, c)
	require.Empty(t, obs.failures)
	require.Equal(t, 2, seen)

	obs = &recordingObserver{}
	evals.ChildCallNamed("write", func(evals.Observer, *call.Call) error { return nil })(obs, c)
	require.Equal(t, []string{`child call named "write": got = not found, wanted = found`}, obs.failures)

	obs = &recordingObserver{}
	evals.ChildCallNamed("read", func(evals.Observer, *call.Call) error { return errors.New("empty") })(obs, c)
	require.Equal(t, []string{"child call read validation failed: empty"}, obs.failures)
}

func TestNoErrors(t *testing.T) {
	obs := &recordingObserver{}
	evals.NoErrors()(obs, tree("agent", "search", "read"))
	require.Empty(t, obs.failures)

	obs = &recordingObserver{}
	evals.NoErrors()(obs, tree("agent", "search", "read!"))
	require.Equal(t, []string{"child call read error: got = boom, wanted = none"}, obs.failures)

	failed := call.New("team/project", "agent", nil)
	_ = failed.Finish(nil, "timeout", time.Time{})
	obs = &recordingObserver{}
	evals.NoErrors()(obs, failed)
	require.Equal(t, []string{"call error: got = timeout, wanted = none"}, obs.failures)
}

func TestOutputValidator(t *testing.T) {
	check := evals.OutputValidator(func(output any) error {
		if output != int64(1) {
			return fmt.Errorf("output: got = %v, wanted = 1", output)
		}
		return nil
	})

	obs := &recordingObserver{}
	check(obs, tree("agent"))
	require.Empty(t, obs.failures)

	running := call.New("team/project", "agent", nil)
	obs = &recordingObserver{}
	check(obs, running)
	require.Equal(t, []string{"status: got = running, wanted = success"}, obs.failures)
}

func TestByCodeListener(t *testing.T) {
	ctx, c := tracedContext(t)

	root := evals.NewNamespacedObserver(func(string) *evals.ResultCollector {
		return evals.NewResultCollector(nil)
	})
	var all atomic.Int64
	remove := c.AddListener(evals.BuildListener(root, "agent", map[string]evals.Check{
		"no-errors": evals.NoErrors(),
		"searched":  evals.RequiredChildOps("search"),
	}))
	defer remove()
	c.AddListener(evals.ByCode("", func(*call.Call) { all.Add(1) }))

	search := op.New("search", func(_ context.Context, q string) (string, error) {
		if q == "" {
			return "", errors.New("empty query")
		}
		return "result for " + q, nil
	})
	agent := op.New("agent", func(ctx context.Context, q string) (string, error) {
		out, err := search.Do(ctx, q)
		if err != nil {
			return "", err
		}
		return out, nil
	})

	_, err := agent.Do(ctx, "weave")
	require.NoError(t, err)
	_, err = agent.Do(ctx, "")
	require.Error(t, err)

	require.Equal(t, int64(4), all.Load())

	noErrors := root.Child("no-errors").Inner()
	require.Equal(t, int64(2), noErrors.Total())
	require.Len(t, noErrors.Failures(), 1)

	searched := root.Child("searched").Inner()
	require.Equal(t, int64(2), searched.Total())
	require.Empty(t, searched.Failures())
}
