/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCallSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	c := newTestClient(t)
	ctx := WithClient(context.Background(), c)

	root := c.CreateCall(ctx, "plan", inputs("goal", "ship"), StartOptions{})
	child := c.CreateCall(root.Context(), "step", inputs("n", 1), StartOptions{})
	c.FinishCall(child, nil, errors.New("step failed"))
	c.FinishCall(root, "done", nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	step, plan := spans[0], spans[1]
	require.Equal(t, "weave.call", plan.Name())
	require.Equal(t, plan.SpanContext().SpanID(), step.Parent().SpanID())

	attrs := map[attribute.Key]string{}
	for _, kv := range step.Attributes() {
		attrs[kv.Key] = kv.Value.AsString()
	}
	require.Equal(t, "step", attrs["weave.op"])
	require.Equal(t, child.Call.ID, attrs["weave.call_id"])
	require.Equal(t, root.Call.TraceID, attrs["weave.trace_id"])

	require.Equal(t, codes.Error, step.Status().Code)
	require.Equal(t, codes.Ok, plan.Status().Code)
}
