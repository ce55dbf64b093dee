/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package call

import (
	"fmt"
	"math"
	"reflect"
)

// Well-known summary keys.
const (
	KeyLatencyMS    = "latency_ms"
	KeyStatusCounts = "status_counts"
	KeyUsage        = "usage"
)

// Merge deep-merges src into dst and returns dst, allocating it when nil.
//
// Numeric leaves present on both sides are summed. Mappings present on both
// sides are merged recursively. Any other collision takes the value from src.
// Keys present on only one side are carried through. Values copied out of src
// are normalized so that dst never aliases src.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		dv, ok := dst[k]
		if !ok {
			dst[k] = Normalize(sv)
			continue
		}
		dst[k] = mergeValue(dv, sv)
	}
	return dst
}

func mergeValue(dv, sv any) any {
	if dm, ok := dv.(map[string]any); ok {
		if sm, ok := Normalize(sv).(map[string]any); ok {
			return Merge(dm, sm)
		}
	}
	if a, ok := toNumber(dv); ok {
		if b, ok := toNumber(sv); ok {
			return a.add(b)
		}
	}
	return Normalize(sv)
}

// Normalize returns a copy of v in the canonical summary shape: integers
// become int64, floats become float64 and string-keyed maps become
// map[string]any, recursively. Other values are returned as they are.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	if n, ok := toNumber(v); ok {
		return n.value()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of a summary mapping.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Merge(nil, m)
}

type number struct {
	i       int64
	f       float64
	isFloat bool
}

func toNumber(v any) (number, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return number{}, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return number{f: float64(u), isFloat: true}, true
		}
		return number{i: int64(u)}, true
	case reflect.Float32, reflect.Float64:
		return number{f: rv.Float(), isFloat: true}, true
	default:
		return number{}, false
	}
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

func (n number) add(o number) any {
	if !n.isFloat && !o.isFloat {
		sum := n.i + o.i
		// Integer sums that overflow continue as floats.
		if (o.i > 0 && sum < n.i) || (o.i < 0 && sum > n.i) {
			return n.float() + o.float()
		}
		return sum
	}
	return n.float() + o.float()
}

// Usage builds the per-model usage contribution providers report.
func Usage(model string, requests, promptTokens, completionTokens, totalTokens int64) map[string]any {
	if model == "" {
		model = "unknown"
	}
	return map[string]any{
		KeyUsage: map[string]any{
			model: map[string]any{
				"requests":          requests,
				"prompt_tokens":     promptTokens,
				"completion_tokens": completionTokens,
				"total_tokens":      totalTokens,
			},
		},
	}
}

// Lookup walks a summary along path and returns the leaf, if present.
func Lookup(summary map[string]any, path ...string) (any, error) {
	var cur any = summary
	for i, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("summary path %v: %q is not a mapping", path, path[i-1])
		}
		if cur, ok = m[p]; !ok {
			return nil, fmt.Errorf("summary path %v: key %q not found", path, p)
		}
	}
	return cur, nil
}
