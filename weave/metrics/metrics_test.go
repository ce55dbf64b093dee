/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m := NewGenAIWithProvider(provider, "test")
	m.SetEnricher(func(_ context.Context, attrs []attribute.KeyValue) []attribute.KeyValue {
		return append(attrs, attribute.String("project", "p"))
	})

	m.RecordUsage(ctx, map[string]any{
		"gpt":    map[string]any{"requests": int64(2), "prompt_tokens": int64(10), "completion_tokens": int64(5)},
		"claude": map[string]any{"requests": int64(1), "prompt_tokens": int64(3), "completion_tokens": int64(4)},
		"bogus":  "not a mapping",
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("project"); !ok || v.AsString() != "p" {
					t.Errorf("%s: missing enriched attribute", md.Name)
				}
				totals[md.Name] += dp.Value
			}
		}
	}

	for name, want := range map[string]int64{
		"weave.usage.requests":          3,
		"weave.usage.prompt_tokens":     13,
		"weave.usage.completion_tokens": 9,
	} {
		if got := totals[name]; got != want {
			t.Errorf("%s: got = %d, wanted = %d", name, got, want)
		}
	}
}
