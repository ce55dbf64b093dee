/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package op

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/schema"
)

var (
	// ErrStreamAbandoned is recorded on stream calls whose sequence was
	// garbage collected without being consumed.
	ErrStreamAbandoned = errors.New("stream was never consumed")

	// ErrStreamReused is yielded when a traced sequence is ranged over a
	// second time.
	ErrStreamReused = errors.New("traced stream can only be consumed once")
)

// Stream is an op over a function producing a sequence. Its call records
// every yielded value as a list output.
type Stream[In, Out any] struct {
	base
	call func(context.Context, In) iter.Seq2[Out, error]
}

var _ Op = (*Stream[int, int])(nil)

// NewStream wraps fn as a streaming op. An empty name is derived from the
// function.
func NewStream[In, Out any](name string, fn func(ctx context.Context, in In) iter.Seq2[Out, error], opts ...Option) *Stream[In, Out] {
	s := &Stream[In, Out]{call: fn}
	s.init(name, fn, schema.SignatureOf[In, []Out](), opts)
	return s
}

// Do starts the op and returns its sequence.
func (s *Stream[In, Out]) Do(ctx context.Context, in In) iter.Seq2[Out, error] {
	seq, _ := s.Call(ctx, in)
	return seq
}

// streamEnd finishes a stream call exactly once. It must not reference the
// handle the cleanup is attached to.
type streamEnd struct {
	once sync.Once
	fn   func(output any, err error)
}

func (e *streamEnd) finish(output any, err error) {
	e.once.Do(func() { e.fn(output, err) })
}

type streamHandle struct {
	used    atomic.Bool
	cleanup runtime.Cleanup
}

// Call starts the op and returns its sequence along with the running call,
// which is nil when untraced. The function itself runs lazily, when the
// sequence is first consumed. The returned sequence can be consumed once.
func (s *Stream[In, Out]) Call(ctx context.Context, in In) (iter.Seq2[Out, error], *call.Call) {
	c := s.traced(ctx)
	if c == nil {
		return s.call(ctx, in), nil
	}
	r := s.start(ctx, c, in)
	if r == nil {
		return s.call(ctx, in), nil
	}

	end := &streamEnd{fn: func(output any, err error) { s.finish(c, r, output, err) }}
	h := &streamHandle{}
	seq := func(yield func(Out, error) bool) {
		if !h.used.CompareAndSwap(false, true) {
			var zero Out
			yield(zero, ErrStreamReused)
			return
		}
		defer h.cleanup.Stop()

		items := []Out{}
		done := false
		defer func() {
			if done {
				return
			}
			rec := recover()
			if rec == nil {
				end.finish(items, errGoexit)
				return
			}
			end.finish(items, fmt.Errorf("panic: %v", rec))
			panic(rec)
		}()

		for out, err := range s.call(r.Context(), in) {
			if err != nil {
				done = true
				end.finish(items, err)
				yield(out, err)
				return
			}
			items = append(items, out)
			if !yield(out, nil) {
				done = true
				end.finish(items, nil)
				return
			}
		}
		done = true
		end.finish(items, nil)
	}
	h.cleanup = runtime.AddCleanup(h, func(e *streamEnd) { e.finish(nil, ErrStreamAbandoned) }, end)
	return seq, r.Call
}

// InvokeMap implements Op by draining the sequence into a slice.
func (s *Stream[In, Out]) InvokeMap(ctx context.Context, args map[string]any) (any, *call.Call, error) {
	in, err := Decode[In](args)
	if err != nil {
		return nil, nil, fmt.Errorf("binding arguments of %s: %w", s.name, err)
	}
	seq, ch := s.Call(ctx, in)
	var items []Out
	for out, err := range seq {
		if err != nil {
			return items, ch, err
		}
		items = append(items, out)
	}
	return items, ch, nil
}
