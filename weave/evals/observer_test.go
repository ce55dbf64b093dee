/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals_test

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wandb/weave-sub009/weave/evals"
)

func TestNamespacedObserverPaths(t *testing.T) {
	var created []string
	root := evals.NewNamespacedObserver(func(name string) *recordingObserver {
		created = append(created, name)
		return &recordingObserver{}
	})

	leaf := root.Path("model", "example-1", "exact")
	require.Equal(t, "/model/example-1/exact", leaf.Name())
	require.Same(t, leaf, root.Child("model").Child("example-1").Child("exact"))
	if diff := cmp.Diff([]string{"/", "/model", "/model/example-1", "/model/example-1/exact"}, created); diff != "" {
		t.Errorf("created (-want +got):\n%s", diff)
	}

	leaf.Increment()
	leaf.Fail("wrong")
	leaf.Grade(0.5, "half")
	leaf.Log("note")
	require.Equal(t, int64(1), leaf.Total())
	require.Equal(t, []string{"wrong"}, leaf.Inner().failures)
	require.Equal(t, []evals.Grade{{Score: 0.5, Reasoning: "half"}}, leaf.Inner().grades)
	require.Equal(t, int64(0), root.Total())
}

func TestNamespacedObserverWalkOrder(t *testing.T) {
	root := evals.NewNamespacedObserver(func(string) *recordingObserver { return &recordingObserver{} })
	root.Path("b", "y")
	root.Path("a")
	root.Path("b", "x")

	var visited []string
	root.Walk(func(name string, _ *recordingObserver) {
		visited = append(visited, name)
	})
	if diff := cmp.Diff([]string{"/", "/a", "/b", "/b/x", "/b/y"}, visited); diff != "" {
		t.Errorf("walk (-want +got):\n%s", diff)
	}
}

func TestNamespacedObserverConcurrentChildren(t *testing.T) {
	root := evals.NewNamespacedObserver(func(string) *evals.ResultCollector {
		return evals.NewResultCollector(nil)
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			root.Path("model", "shared").Increment()
		}()
	}
	wg.Wait()
	require.Equal(t, int64(50), root.Path("model", "shared").Total())
}

func TestResultCollector(t *testing.T) {
	inner := &recordingObserver{}
	collector := evals.NewResultCollector(inner)

	for range 4 {
		collector.Increment()
	}
	collector.Fail("first")
	collector.Grade(1, "great")
	collector.Grade(0.5, "fine")
	collector.Log("note")

	require.Equal(t, int64(4), collector.Total())
	require.Equal(t, int64(4), inner.Total())
	require.Equal(t, []string{"first"}, collector.Failures())
	require.Empty(t, inner.failures)
	require.Equal(t, []string{"first", "note"}, inner.logs)
	require.InDelta(t, 0.75, collector.PassRate(), 1e-9)

	mean, ok := collector.MeanGrade()
	require.True(t, ok)
	require.InDelta(t, 0.75, mean, 1e-9)

	_, ok = evals.NewResultCollector(nil).MeanGrade()
	require.False(t, ok)
	require.Zero(t, evals.NewResultCollector(nil).PassRate())
}

func TestMulti(t *testing.T) {
	a, b := evals.NewResultCollector(nil), evals.NewResultCollector(nil)
	obs := evals.Multi(a, b)

	obs.Increment()
	obs.Fail("boom")
	obs.Grade(0.5, "half")
	obs.Log("note")

	for _, c := range []*evals.ResultCollector{a, b} {
		require.Equal(t, int64(1), c.Total())
		require.Equal(t, []string{"boom"}, c.Failures())
		require.Equal(t, []evals.Grade{{Score: 0.5, Reasoning: "half"}}, c.Grades())
	}
	require.Equal(t, int64(1), obs.Total())
	require.Equal(t, int64(0), evals.Multi().Total())
}
