/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package call

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		dst  map[string]any
		src  map[string]any
		want map[string]any
	}{{
		name: "into nil",
		src:  map[string]any{"a": 1},
		want: map[string]any{"a": int64(1)},
	}, {
		name: "numbers sum",
		dst:  map[string]any{"a": int64(1), "b": 1.5},
		src:  map[string]any{"a": 2, "b": 2},
		want: map[string]any{"a": int64(3), "b": 3.5},
	}, {
		name: "per model usage accumulates",
		dst:  Usage("gpt", 1, 10, 5, 15),
		src: Merge(Usage("gpt", 1, 1, 1, 2), Usage("claude", 1, 3, 4, 7)),
		want: map[string]any{
			KeyUsage: map[string]any{
				"gpt": map[string]any{
					"requests": int64(2), "prompt_tokens": int64(11),
					"completion_tokens": int64(6), "total_tokens": int64(17),
				},
				"claude": map[string]any{
					"requests": int64(1), "prompt_tokens": int64(3),
					"completion_tokens": int64(4), "total_tokens": int64(7),
				},
			},
		},
	}, {
		name: "strings last write wins",
		dst:  map[string]any{"model": "a"},
		src:  map[string]any{"model": "b"},
		want: map[string]any{"model": "b"},
	}, {
		name: "mixed types take source",
		dst:  map[string]any{"x": int64(1), "y": map[string]any{"z": int64(1)}},
		src:  map[string]any{"x": "one", "y": int64(2)},
		want: map[string]any{"x": "one", "y": int64(2)},
	}, {
		name: "disjoint keys carried",
		dst:  map[string]any{"a": int64(1)},
		src:  map[string]any{"b": map[string]int{"c": 2}},
		want: map[string]any{"a": int64(1), "b": map[string]any{"c": int64(2)}},
	}, {
		name: "bools are not summed",
		dst:  map[string]any{"ok": true},
		src:  map[string]any{"ok": false},
		want: map[string]any{"ok": false},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.dst, tt.src)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeLargeIntegers(t *testing.T) {
	got := Merge(nil, map[string]any{"tokens": uint64(math.MaxUint64)})
	if v, ok := got["tokens"].(float64); !ok || v != float64(uint64(math.MaxUint64)) {
		t.Errorf("uint64 above MaxInt64: got = %#v, wanted a positive float64", got["tokens"])
	}

	got = Merge(map[string]any{"tokens": int64(math.MaxInt64)}, map[string]any{"tokens": int64(1)})
	if v, ok := got["tokens"].(float64); !ok || v <= 0 {
		t.Errorf("overflowing sum: got = %#v, wanted a positive float64", got["tokens"])
	}

	got = Merge(map[string]any{"tokens": int64(2)}, map[string]any{"tokens": uint64(3)})
	if diff := cmp.Diff(map[string]any{"tokens": int64(5)}, got); diff != "" {
		t.Errorf("small uint64 (-want +got):\n%s", diff)
	}
}

func TestMergeDoesNotAliasSource(t *testing.T) {
	src := map[string]any{"usage": map[string]any{"m": map[string]any{"requests": int64(1)}}}
	dst := Merge(nil, src)
	Merge(dst, src)

	got, err := Lookup(src, "usage", "m", "requests")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != int64(1) {
		t.Errorf("source mutated: got = %v, wanted = 1", got)
	}
}

func TestLookup(t *testing.T) {
	s := map[string]any{"a": map[string]any{"b": int64(2)}, "c": "x"}
	if got, err := Lookup(s, "a", "b"); err != nil || got != int64(2) {
		t.Errorf("Lookup(a, b): got = %v, %v, wanted = 2", got, err)
	}
	if _, err := Lookup(s, "a", "missing"); err == nil {
		t.Error("Lookup(a, missing): wanted error")
	}
	if _, err := Lookup(s, "c", "d"); err == nil {
		t.Error("Lookup(c, d): wanted error")
	}
}

// Builds a heap-shaped tree where node i's parent is (i-1)/2, gives every node
// a known token contribution, finishes leaves first and checks that the root
// carries the total.
func TestSummaryRollupProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("root summary sums every node's contribution", prop.ForAll(
		func(tokens []int64) bool {
			n := len(tokens) + 1
			nodes := make([]*Call, n)
			nodes[0] = New("p", "root", nil)
			for i := 1; i < n; i++ {
				nodes[i] = New("p", "node", nodes[(i-1)/2])
			}

			var want int64
			for i, tok := range tokens {
				nodes[i+1].AddSummary(Usage("m", 1, tok, 0, tok))
				want += tok
			}

			for i := n - 1; i >= 0; i-- {
				if err := nodes[i].Finish(i, "", nodes[i].StartedAt); err != nil {
					return false
				}
				if i > 0 {
					nodes[(i-1)/2].AddChild(nodes[i])
				}
			}

			root := nodes[0].Summary()
			if len(tokens) > 0 {
				got, err := Lookup(root, KeyUsage, "m", "total_tokens")
				if err != nil || got != want {
					return false
				}
				reqs, err := Lookup(root, KeyUsage, "m", "requests")
				if err != nil || reqs != int64(len(tokens)) {
					return false
				}
			}
			count, err := Lookup(root, KeyStatusCounts, string(StatusSuccess))
			return err == nil && count == int64(n)
		},
		gen.SliceOf(gen.Int64Range(0, 100000)),
	))

	properties.Property("parent and child share the trace", prop.ForAll(
		func(depth int) bool {
			cur := New("p", "root", nil)
			traceID := cur.TraceID
			for range depth {
				child := New("p", "child", cur)
				if child.TraceID != traceID || child.ParentID != cur.ID {
					return false
				}
				cur = child
			}
			return true
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
