/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Enricher adds attributes to every usage data point. It receives the
// model attribute and returns the full set.
type Enricher func(ctx context.Context, attrs []attribute.KeyValue) []attribute.KeyValue

// GenAI records the token usage found in call summaries.
type GenAI struct {
	requests   metric.Int64Counter
	prompt     metric.Int64Counter
	completion metric.Int64Counter
	enrich     Enricher
}

// NewGenAI creates the usage counters on the global meter provider.
func NewGenAI(meterName string) *GenAI {
	return NewGenAIWithProvider(otel.GetMeterProvider(), meterName)
}

// NewGenAIWithProvider creates the usage counters on mp. A counter that
// cannot be created is replaced by a no-op one.
func NewGenAIWithProvider(mp metric.MeterProvider, meterName string) *GenAI {
	meter := mp.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))
	return &GenAI{
		requests:   counter(meter, meterName, "weave.usage.requests", "Model requests recorded in call usage", "{requests}"),
		prompt:     counter(meter, meterName, "weave.usage.prompt_tokens", "Prompt tokens recorded in call usage", "{tokens}"),
		completion: counter(meter, meterName, "weave.usage.completion_tokens", "Completion tokens recorded in call usage", "{tokens}"),
	}
}

func counter(meter metric.Meter, meterName, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		slog.Warn("Failed to create usage counter, it will be disabled", "counter", name, "meter", meterName, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// SetEnricher installs e for every later recording.
func (m *GenAI) SetEnricher(e Enricher) {
	m.enrich = e
}

// RecordUsage records every per-model entry of a usage mapping, as found
// under "usage" in a call summary. Pass a call's own contribution so usage
// is counted once rather than again at every ancestor.
func (m *GenAI) RecordUsage(ctx context.Context, usage map[string]any, attrs ...attribute.KeyValue) {
	for model, v := range usage {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		set := []attribute.KeyValue{attribute.String("model", model)}
		if m.enrich != nil {
			set = m.enrich(ctx, set)
		}
		opt := metric.WithAttributes(append(set, attrs...)...)

		m.requests.Add(ctx, asInt(entry["requests"]), opt)
		m.prompt.Add(ctx, asInt(entry["prompt_tokens"]), opt)
		m.completion.Add(ctx, asInt(entry["completion_tokens"]), opt)
	}
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
