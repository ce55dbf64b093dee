/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/client"
	"github.com/wandb/weave-sub009/weave/serialize"
)

// CallCallback receives a finished call.
type CallCallback func(*call.Call)

// Check inspects a finished call and reports to an Observer.
type Check func(Observer, *call.Call)

// Inject binds a check to an observer, counting every call it sees.
func Inject(obs Observer, check Check) CallCallback {
	return func(c *call.Call) {
		obs.Increment()
		check(obs, c)
	}
}

// ByCode returns a client listener that runs callbacks in parallel on every
// finished call named opName. An empty opName matches every call.
func ByCode(opName string, callbacks ...CallCallback) client.Listener {
	return func(_ context.Context, c *call.Call) {
		if opName != "" && c.OpName != opName {
			return
		}
		g := new(errgroup.Group)
		for _, cb := range callbacks {
			if cb == nil {
				continue
			}
			g.Go(func() error {
				cb(c)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// BuildListener injects every named check with the matching child of
// observer and returns a ByCode listener over them.
func BuildListener[O Observer](observer *NamespacedObserver[O], opName string, checks map[string]Check) client.Listener {
	names := slices.Sorted(maps.Keys(checks))
	callbacks := make([]CallCallback, 0, len(checks))
	for _, name := range names {
		callbacks = append(callbacks, Inject(observer.Child(name), checks[name]))
	}
	return ByCode(opName, callbacks...)
}

// ExactChildCalls checks that the call has exactly n direct children.
func ExactChildCalls(n int) Check {
	return func(o Observer, c *call.Call) {
		if got := len(c.Children()); got != n {
			o.Fail(fmt.Sprintf("child call count: got = %d, wanted = %d", got, n))
		}
	}
}

// MinimumNChildCalls checks that the call has at least n direct children.
func MinimumNChildCalls(n int) Check {
	return func(o Observer, c *call.Call) {
		if got := len(c.Children()); got < n {
			o.Fail(fmt.Sprintf("child call count: got = %d, wanted >= %d", got, n))
		}
	}
}

// MaximumNChildCalls checks that the call has at most n direct children.
func MaximumNChildCalls(n int) Check {
	return func(o Observer, c *call.Call) {
		if got := len(c.Children()); got > n {
			o.Fail(fmt.Sprintf("child call count: got = %d, wanted <= %d", got, n))
		}
	}
}

// NoChildCalls checks that the call made no traced calls.
func NoChildCalls() Check {
	return ExactChildCalls(0)
}

// OnlyChildOps checks that every direct child is one of the named ops.
func OnlyChildOps(opNames ...string) Check {
	allowed := make(map[string]struct{}, len(opNames))
	for _, name := range opNames {
		allowed[name] = struct{}{}
	}
	return func(o Observer, c *call.Call) {
		for _, child := range c.Children() {
			if _, ok := allowed[child.OpName]; !ok {
				o.Fail(fmt.Sprintf("unexpected child call %q, only allowed: %v", child.OpName, opNames))
				return
			}
		}
	}
}

// RequiredChildOps checks that each named op appears among the direct
// children at least once.
func RequiredChildOps(opNames ...string) Check {
	return func(o Observer, c *call.Call) {
		required := make(map[string]struct{}, len(opNames))
		for _, name := range opNames {
			required[name] = struct{}{}
		}
		for _, child := range c.Children() {
			delete(required, child.OpName)
		}
		if len(required) > 0 {
			o.Fail(fmt.Sprintf("missing required child calls: %v", slices.Sorted(maps.Keys(required))))
		}
	}
}

// ChildCallNamed validates every direct child named opName and fails when
// there is none.
func ChildCallNamed(opName string, validator func(Observer, *call.Call) error) Check {
	return func(o Observer, c *call.Call) {
		found := false
		for _, child := range c.Children() {
			if child.OpName != opName {
				continue
			}
			found = true
			if err := validator(o, child); err != nil {
				o.Fail(fmt.Sprintf("child call %s validation failed: %v", opName, err))
				return
			}
		}
		if !found {
			o.Fail(fmt.Sprintf("child call named %q: got = not found, wanted = found", opName))
		}
	}
}

// NoErrors checks that neither the call nor any of its finished
// descendants recorded an exception.
func NoErrors() Check {
	return func(o Observer, c *call.Call) {
		var failed *call.Call
		c.Walk(func(d *call.Call, _ int) {
			if failed == nil && d.Exception() != "" {
				failed = d
			}
		})
		if failed == nil {
			return
		}
		if failed == c {
			o.Fail(fmt.Sprintf("call error: got = %s, wanted = none", failed.Exception()))
			return
		}
		o.Fail(fmt.Sprintf("child call %s error: got = %s, wanted = none", failed.OpName, failed.Exception()))
	}
}

// OutputValidator validates the recorded output of a successful call. The
// output is handed over in its plain decoded form: mappings become
// map[string]any and integers int64.
func OutputValidator(validator func(output any) error) Check {
	return func(o Observer, c *call.Call) {
		if c.Status() != call.StatusSuccess {
			o.Fail(fmt.Sprintf("status: got = %s, wanted = %s", c.Status(), call.StatusSuccess))
			return
		}
		out := c.Output()
		if out == nil {
			o.Fail("output is nil")
			return
		}
		if err := validator(serialize.Plain(out)); err != nil {
			o.Fail(err.Error())
		}
	}
}
