/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package op wraps functions so that every invocation is recorded as a call.
//
// An op behaves exactly like the function it wraps. When a client is
// reachable through the context (see client.FromContext) each invocation
// additionally:
//
//   - binds its input to named parameters, including "self" for methods
//   - opens a call beneath the current call in the context
//   - runs the function with a context carrying the new call
//   - records the output or error and the rolled-up summary
//
// Without a client the function runs untraced. Errors and panics from the
// wrapped function always reach the caller unchanged; failures of the
// tracing machinery are logged and otherwise ignored.
//
// Basic usage:
//
//	add := op.New("add", func(ctx context.Context, in AddInput) (int, error) {
//		return in.A + in.B, nil
//	})
//	sum, call, err := add.Call(ctx, AddInput{A: 2, B: 3})
//
// Go has no implicit per-goroutine state, so the call stack travels in the
// context.Context the op is given. Nested ops must be called with the
// context the outer op received, and goroutines inherit the stack they were
// started with.
//
// # Streams
//
// NewStream wraps functions that produce an iter.Seq2. The call stays
// running while the sequence is consumed and finishes when it is exhausted,
// when the consumer stops early or when the sequence yields an error. A
// sequence that is never consumed is finished with ErrStreamAbandoned once
// the garbage collector reclaims it. That cleanup is best effort and may
// never run before the process exits.
package op
