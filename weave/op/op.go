/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package op

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/client"
	"github.com/wandb/weave-sub009/weave/metrics"
	"github.com/wandb/weave-sub009/weave/opsource"
	"github.com/wandb/weave-sub009/weave/schema"
	"github.com/wandb/weave-sub009/weave/serialize"
	"github.com/wandb/weave-sub009/weave/traceserver"
)

// ErrNoClient is returned by queries made without a client.
var ErrNoClient = errors.New("no tracing client is installed")

// errGoexit is recorded when the wrapped function calls runtime.Goexit.
var errGoexit = errors.New("goroutine exited before the op returned")

// Op is the type-erased view of an op, used by code that drives ops it did
// not construct, such as evaluations.
type Op interface {
	// Name returns the op name calls are recorded under.
	Name() string
	// Ref returns the versioned ref of the op for the client in ctx, or ""
	// when untraced.
	Ref(ctx context.Context) string
	// Params lists the declared input names in order.
	Params() []string
	// InvokeMap decodes args into the op input and calls the op.
	InvokeMap(ctx context.Context, args map[string]any) (any, *call.Call, error)
}

// Definition is the object published for every op version.
type Definition struct {
	Name      string           `json:"name"`
	Source    opsource.Source  `json:"source"`
	Signature schema.Signature `json:"signature"`
}

// base holds what every kind of op shares.
type base struct {
	name string
	fn   any
	cfg  config
	sig  schema.Signature

	self    any
	hasSelf bool

	// sources holds the captured source per capture mode, indexed by
	// whether code capture was on.
	sources [2]captured
}

type captured struct {
	once sync.Once
	src  opsource.Source
}

func (b *base) init(name string, fn any, sig schema.Signature, opts []Option) {
	b.name, b.fn, b.sig = name, fn, sig
	if b.name == "" {
		b.name = nameOf(fn)
	}
	for _, opt := range opts {
		opt(&b.cfg)
	}
}

// nameOf derives an op name from a function's runtime name, so that
// "example.com/pkg.(*Model).Predict-fm" becomes "Model.Predict".
func nameOf(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "op"
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "op"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if _, rest, ok := strings.Cut(name, "."); ok {
		name = rest
	}
	name = strings.TrimSuffix(name, "-fm")
	return strings.NewReplacer("(*", "", "(", "", ")", "").Replace(name)
}

// Name implements Op.
func (b *base) Name() string { return b.name }

// Params implements Op.
func (b *base) Params() []string {
	if b.hasSelf {
		return append([]string{SelfKey}, b.sig.Params...)
	}
	return b.sig.Params
}

// Signature returns the input and output schema of the op.
func (b *base) Signature() schema.Signature { return b.sig }

// Ref implements Op.
func (b *base) Ref(ctx context.Context) string {
	c := client.FromContext(ctx)
	if c == nil {
		return ""
	}
	return b.publish(ctx, c)
}

func (b *base) publish(ctx context.Context, c *client.Client) string {
	src := b.source(ctx, c)
	return c.PublishObject(ctx, traceserver.Object{
		Kind:   "op",
		Name:   b.name,
		Digest: src.Digest,
		Value:  Definition{Name: b.name, Source: src, Signature: b.sig},
	})
}

// source captures the op source once per capture mode, so clients with
// different settings publish different versions of a shared op.
func (b *base) source(ctx context.Context, c *client.Client) opsource.Source {
	capture := c.Config().CaptureCode
	slot := &b.sources[0]
	if capture {
		slot = &b.sources[1]
	}
	slot.once.Do(func() {
		if !capture {
			slot.src = opsource.Source{Name: b.name, Digest: opsource.Digest(b.name)}
			return
		}
		src, err := opsource.Capture(b.fn, c.Serializer().IsSensitive)
		if err != nil {
			clog.FromContext(ctx).With("op", b.name, "error", err).Debug("Op source unavailable, versioning by name")
		}
		if src.Digest == "" {
			src.Digest = opsource.Digest(b.name)
		}
		slot.src = src
	})
	return slot.src
}

// Calls returns the persisted calls of this op in creation order.
func (b *base) Calls(ctx context.Context) ([]*call.Call, error) {
	c := client.FromContext(ctx)
	if c == nil {
		return nil, ErrNoClient
	}
	return c.GetCalls(ctx, traceserver.Filter{OpNames: []string{b.name}})
}

func (b *base) traced(ctx context.Context) *client.Client {
	if b.cfg.tracingDisabled {
		return nil
	}
	return client.FromContext(ctx)
}

// start opens the call for one invocation. It returns nil when the tracing
// machinery failed, in which case the invocation runs untraced.
func (b *base) start(ctx context.Context, c *client.Client, in any) (r *client.Running) {
	defer func() {
		if rec := recover(); rec != nil {
			b.warn(ctx, metrics.StageStart, fmt.Errorf("panic: %v", rec), "Failed to start call, running untraced")
			r = nil
		}
	}()

	ref := b.publish(ctx, c)
	inputs := serialize.NewMap()
	if b.hasSelf {
		inputs.Set(SelfKey, b.self)
	}
	for pair := bind(in).Oldest(); pair != nil; pair = pair.Next() {
		inputs.Set(pair.Key, pair.Value)
	}
	if b.cfg.postInputs != nil {
		inputs = b.cfg.postInputs(inputs)
	}
	return c.CreateCall(ctx, b.name, inputs, client.StartOptions{
		OpRef:           ref,
		DisplayName:     b.cfg.displayName,
		DisplayNameFunc: b.cfg.displayNameFunc,
		Attributes:      b.cfg.attributes,
	})
}

// finish runs the finish hooks and records the outcome.
func (b *base) finish(c *client.Client, r *client.Running, output any, err error) {
	ctx := r.Context()
	if b.cfg.onFinish != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					b.warn(ctx, metrics.StageHandler, fmt.Errorf("panic: %v", rec), "On finish handler panicked")
				}
			}()
			b.cfg.onFinish(r.Call, output, err)
		}()
	}
	if err == nil && b.cfg.postOutput != nil {
		output = b.postprocess(ctx, output)
	}
	c.FinishCall(r, output, err)
}

func (b *base) postprocess(ctx context.Context, output any) (out any) {
	defer func() {
		if rec := recover(); rec != nil {
			b.warn(ctx, metrics.StageSerialize, fmt.Errorf("panic: %v", rec), "Output postprocessor panicked, recording raw output")
			out = output
		}
	}()
	return b.cfg.postOutput(output)
}

func (b *base) warn(ctx context.Context, stage string, err error, msg string) {
	metrics.TracingFailures.WithLabelValues(stage).Inc()
	clog.FromContext(ctx).With("op", b.name, "error", err).Warn(msg)
}

// Func is an op over a function with one input and one output.
type Func[In, Out any] struct {
	base
	call func(context.Context, In) (Out, error)
}

var _ Op = (*Func[int, int])(nil)

// New wraps fn as an op. An empty name is derived from the function.
func New[In, Out any](name string, fn func(ctx context.Context, in In) (Out, error), opts ...Option) *Func[In, Out] {
	f := &Func[In, Out]{call: fn}
	f.init(name, fn, schema.SignatureOf[In, Out](), opts)
	return f
}

// Method wraps a method of recv as an op. The receiver is recorded as the
// "self" input of every call.
//
//	predict := op.Method(model, "", (*Model).Predict)
func Method[R, In, Out any](recv R, name string, fn func(R, context.Context, In) (Out, error), opts ...Option) *Func[In, Out] {
	f := &Func[In, Out]{
		call: func(ctx context.Context, in In) (Out, error) {
			return fn(recv, ctx, in)
		},
	}
	f.init(name, fn, schema.SignatureOf[In, Out](), opts)
	f.self, f.hasSelf = recv, true
	return f
}

// Do invokes the op and returns what the wrapped function returned.
func (f *Func[In, Out]) Do(ctx context.Context, in In) (Out, error) {
	out, _, err := f.Call(ctx, in)
	return out, err
}

// Call invokes the op and also returns the recorded call, which is nil when
// the invocation was not traced.
func (f *Func[In, Out]) Call(ctx context.Context, in In) (Out, *call.Call, error) {
	c := f.traced(ctx)
	if c == nil {
		out, err := f.call(ctx, in)
		return out, nil, err
	}
	r := f.start(ctx, c, in)
	if r == nil {
		out, err := f.call(ctx, in)
		return out, nil, err
	}

	returned := false
	defer func() {
		if returned {
			return
		}
		rec := recover()
		if rec == nil {
			f.finish(c, r, nil, errGoexit)
			return
		}
		f.finish(c, r, nil, fmt.Errorf("panic: %v", rec))
		panic(rec)
	}()

	out, err := f.call(r.Context(), in)
	returned = true
	if err != nil {
		f.finish(c, r, nil, err)
	} else {
		f.finish(c, r, out, nil)
	}
	return out, r.Call, err
}

// InvokeMap implements Op.
func (f *Func[In, Out]) InvokeMap(ctx context.Context, args map[string]any) (any, *call.Call, error) {
	in, err := Decode[In](args)
	if err != nil {
		return nil, nil, fmt.Errorf("binding arguments of %s: %w", f.name, err)
	}
	out, ch, err := f.Call(ctx, in)
	return out, ch, err
}
