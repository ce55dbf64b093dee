/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/op"
	"github.com/wandb/weave-sub009/weave/serialize"
)

// Summarizer is implemented by scorers that reduce their own per-example
// scores. The returned value becomes the scorer's summary as it is.
type Summarizer interface {
	Summarize(ctx context.Context, scores []any) (any, error)
}

// SummarizeFunc reduces the scores of one scorer.
type SummarizeFunc func(ctx context.Context, scores []any) (any, error)

type summarizingOp struct {
	op.Op
	fn SummarizeFunc
}

func (s summarizingOp) Summarize(ctx context.Context, scores []any) (any, error) {
	return s.fn(ctx, scores)
}

// WithSummarizer attaches a custom summary to a scorer op.
func WithSummarizer(scorer op.Op, fn SummarizeFunc) op.Op {
	return summarizingOp{Op: scorer, fn: fn}
}

// AutoSummarize reduces scores leaf-wise. Numbers become {"mean"}, booleans
// become {"true_count", "true_fraction"} and mappings are summarized key by
// key. Nil entries are left out of every population. It returns nil when
// nothing can be summarized, including when scores is empty.
func AutoSummarize(scores []any) any {
	values := make([]any, 0, len(scores))
	for _, s := range scores {
		if v := leaf(s); v != nil {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}

	switch values[0].(type) {
	case bool:
		var n, count int64
		for _, v := range values {
			if b, ok := v.(bool); ok {
				n++
				if b {
					count++
				}
			}
		}
		return map[string]any{
			"true_count":    count,
			"true_fraction": float64(count) / float64(n),
		}

	case int64, float64:
		var n int
		var sum float64
		for _, v := range values {
			switch x := v.(type) {
			case int64:
				sum += float64(x)
			case float64:
				sum += x
			default:
				continue
			}
			n++
		}
		return map[string]any{"mean": sum / float64(n)}

	case map[string]any:
		var keys []string
		columns := map[string][]any{}
		for _, v := range values {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			for k, x := range m {
				if _, seen := columns[k]; !seen {
					keys = append(keys, k)
				}
				columns[k] = append(columns[k], x)
			}
		}
		slices.Sort(keys)
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			if s := AutoSummarize(columns[k]); s != nil {
				out[k] = s
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out

	default:
		return nil
	}
}

// leaf normalizes one score into bool, int64, float64, map[string]any or
// nil for anything that cannot be summarized.
func leaf(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case *serialize.Map:
		if t == nil {
			return nil
		}
		return serialize.Plain(t)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Struct:
		m, ok := serialize.Fields(rv.Interface())
		if !ok {
			return nil
		}
		return serialize.Plain(m)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		return call.Normalize(rv.Interface())
	}
	switch n := call.Normalize(rv.Interface()).(type) {
	case int64, float64:
		return n
	}
	return nil
}

// Judge reports a score to obs. A false boolean fails, a number grades, a
// mapping with a numeric "score" grades with its "reasoning" and an error
// fails with its message. Other shapes are logged.
func Judge(obs Observer, score any) {
	if err, ok := score.(error); ok {
		obs.Fail(err.Error())
		return
	}
	switch s := leaf(score).(type) {
	case bool:
		if !s {
			obs.Fail("score: got = false, wanted = true")
		}
	case int64:
		obs.Grade(float64(s), "")
	case float64:
		obs.Grade(s, "")
	case map[string]any:
		v := leaf(s["score"])
		reasoning, _ := s["reasoning"].(string)
		switch x := v.(type) {
		case float64:
			obs.Grade(x, reasoning)
		case int64:
			obs.Grade(float64(x), reasoning)
		case bool:
			if !x {
				obs.Fail(fmt.Sprintf("score: got = false, wanted = true: %s", reasoning))
			}
		default:
			obs.Log(fmt.Sprintf("ungraded score: %v", s))
		}
	default:
		obs.Log(fmt.Sprintf("ungraded score: %v", score))
	}
}
