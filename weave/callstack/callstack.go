/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package callstack tracks the calls that are open on the current logical
// thread of control.
//
// The stack lives in a context.Context as an immutable snapshot. Push and Pop
// return derived contexts and never modify the stack seen by the context they
// were given, so a goroutine started with a context observes the stack as it
// was at spawn time and sibling goroutines never observe each other's pushes.
package callstack

import (
	"context"

	"github.com/chainguard-dev/clog"

	"github.com/wandb/weave-sub009/weave/call"
)

type stackKey struct{}

// Token identifies a push so the matching Pop can unwind it.
type Token struct {
	callID string
	depth  int
}

// CallID returns the id of the call the token was issued for.
func (t Token) CallID() string { return t.callID }

func stackFrom(ctx context.Context) []*call.Call {
	s, _ := ctx.Value(stackKey{}).([]*call.Call)
	return s
}

// Push records c as the current call and returns the derived context along
// with a token for the matching Pop.
func Push(ctx context.Context, c *call.Call) (context.Context, Token) {
	prev := stackFrom(ctx)
	next := make([]*call.Call, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, c)
	return context.WithValue(ctx, stackKey{}, next), Token{callID: c.ID, depth: len(prev)}
}

// Pop returns a context whose stack no longer holds the token's call or
// anything pushed after it. When the call is not on the stack the context is
// returned unchanged and the mismatch is logged.
func Pop(ctx context.Context, tok Token) context.Context {
	s := stackFrom(ctx)
	idx := -1
	if tok.depth < len(s) && s[tok.depth].ID == tok.callID {
		idx = tok.depth
	} else {
		for i := len(s) - 1; i >= 0; i-- {
			if s[i].ID == tok.callID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		clog.FromContext(ctx).With("call_id", tok.callID, "depth", len(s)).
			Warn("Call not found on the call stack, leaving it unchanged")
		return ctx
	}
	next := make([]*call.Call, idx)
	copy(next, s[:idx])
	return context.WithValue(ctx, stackKey{}, next)
}

// Current returns the innermost open call, or nil.
func Current(ctx context.Context) *call.Call {
	s := stackFrom(ctx)
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// Calls returns the open calls from root to innermost.
func Calls(ctx context.Context) []*call.Call {
	s := stackFrom(ctx)
	out := make([]*call.Call, len(s))
	copy(out, s)
	return out
}

// Detach returns a context with an empty stack, so calls made under it start
// new traces.
func Detach(ctx context.Context) context.Context {
	if len(stackFrom(ctx)) == 0 {
		return ctx
	}
	return context.WithValue(ctx, stackKey{}, []*call.Call(nil))
}
