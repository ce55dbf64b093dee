/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/callstack"
	"github.com/wandb/weave-sub009/weave/metrics"
	"github.com/wandb/weave-sub009/weave/serialize"
	"github.com/wandb/weave-sub009/weave/traceserver"
)

const instrumentationName = "github.com/wandb/weave-sub009/weave"

// StartOptions describes a call beyond its op name and inputs.
type StartOptions struct {
	// OpRef is the versioned ref of the op being called.
	OpRef string
	// DisplayName overrides the op name as the call's label.
	DisplayName string
	// DisplayNameFunc computes the label from the started call. It wins over
	// DisplayName when it returns a non-empty string.
	DisplayNameFunc func(*call.Call) string
	// Attributes are merged over those carried by the context.
	Attributes map[string]any
}

// Running is a call that has started and not yet finished.
type Running struct {
	// Call is the record being built.
	Call *call.Call

	ctx    context.Context
	tok    callstack.Token
	parent *call.Call
	span   oteltrace.Span
}

// Context returns the context the traced function must run under. Its
// call stack has Call on top.
func (r *Running) Context() context.Context { return r.ctx }

// CreateCall starts a call to opName beneath the current call in ctx,
// persists its start and pushes it onto the call stack. Raw inputs are
// serialized here; failures degrade to a partial record and never surface.
func (c *Client) CreateCall(ctx context.Context, opName string, inputs *serialize.Map, opts StartOptions) *Running {
	parent := callstack.Current(ctx)
	ch := call.New(c.cfg.Project, opName, parent)
	ch.OpRef = opts.OpRef

	attrs := maps.Clone(Attributes(ctx))
	if attrs == nil {
		attrs = map[string]any{}
	}
	maps.Copy(attrs, opts.Attributes)
	ch.Attributes = attrs

	encoded, err := c.serializer.EncodeInputs(ctx, inputs)
	if err != nil {
		c.warn(ctx, metrics.StageSerialize, ch, err, "Failed to serialize call inputs")
	}
	ch.Inputs = encoded

	if opts.DisplayName != "" {
		ch.DisplayName = opts.DisplayName
	}
	if opts.DisplayNameFunc != nil {
		if name := c.displayName(ctx, ch, opts.DisplayNameFunc); name != "" {
			ch.DisplayName = name
		}
	}
	ch.BindFeedback(c.server)

	ctx, span := otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0")).
		Start(ctx, "weave.call", oteltrace.WithAttributes(
			attribute.String("weave.op", opName),
			attribute.String("weave.call_id", ch.ID),
			attribute.String("weave.trace_id", ch.TraceID),
		))

	metrics.CallsStarted.WithLabelValues(opName).Inc()
	if err := c.server.CreateCall(ctx, traceserver.StartReq{Call: ch.Schema()}); err != nil {
		c.warn(ctx, metrics.StageStart, ch, err, "Failed to persist call start")
	}

	ctx, tok := callstack.Push(ctx, ch)
	return &Running{Call: ch, ctx: ctx, tok: tok, parent: parent, span: span}
}

func (c *Client) displayName(ctx context.Context, ch *call.Call, fn func(*call.Call) string) (name string) {
	defer func() {
		if r := recover(); r != nil {
			c.warn(ctx, metrics.StageStart, ch, fmt.Errorf("panic: %v", r), "Display name function panicked")
			name = ""
		}
	}()
	return fn(ch)
}

// FinishCall records the outcome of r, folds the summaries of its finished
// children into its own, persists the end and notifies listeners. A non-nil
// err marks the call as failed and output is ignored. It returns r's
// context with the call popped off the stack.
func (c *Client) FinishCall(r *Running, output any, err error) context.Context {
	ctx, ch := r.ctx, r.Call
	defer func() {
		if rec := recover(); rec != nil {
			c.warn(ctx, metrics.StageFinish, ch, fmt.Errorf("panic: %v", rec), "Finishing call panicked")
		}
	}()

	var exception string
	var encoded any
	if err != nil {
		exception = Exception(err)
	} else {
		var serr error
		if encoded, serr = c.serializer.Encode(ctx, output); serr != nil {
			c.warn(ctx, metrics.StageSerialize, ch, serr, "Failed to serialize call output")
			encoded = serialize.Repr(reflect.ValueOf(output))
		}
	}

	if ferr := ch.Finish(encoded, exception, time.Now()); ferr != nil {
		c.warn(ctx, metrics.StageFinish, ch, ferr, "Call finished twice")
		return callstack.Pop(ctx, r.tok)
	}
	if r.parent != nil {
		r.parent.AddChild(ch)
	}

	status := ch.Status()
	metrics.CallsFinished.WithLabelValues(ch.OpName, string(status)).Inc()
	metrics.CallLatency.WithLabelValues(ch.OpName).Observe(ch.EndedAt().Sub(ch.StartedAt).Seconds())
	if c.genai != nil {
		if usage, ok := ch.Contribution()[call.KeyUsage].(map[string]any); ok {
			c.genai.RecordUsage(ctx, usage, attribute.String("op", ch.OpName))
		}
	}

	if perr := c.server.FinishCall(ctx, traceserver.EndReq{
		Project:   ch.Project,
		ID:        ch.ID,
		Output:    encoded,
		Exception: exception,
		Summary:   ch.Summary(),
		EndedAt:   ch.EndedAt(),
	}); perr != nil {
		c.warn(ctx, metrics.StageFinish, ch, perr, "Failed to persist call end")
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, exception)
		} else {
			r.span.SetStatus(codes.Ok, "")
		}
		r.span.End()
	}

	c.notify(ctx, ch)
	return callstack.Pop(ctx, r.tok)
}

// Exception renders err the way it is stored on a failed call.
func Exception(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}

func (c *Client) warn(ctx context.Context, stage string, ch *call.Call, err error, msg string) {
	metrics.TracingFailures.WithLabelValues(stage).Inc()
	clog.FromContext(ctx).With("op", ch.OpName, "call_id", ch.ID, "error", err).Warn(msg)
}
