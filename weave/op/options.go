/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package op

import (
	"maps"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/serialize"
)

type config struct {
	displayName     string
	displayNameFunc func(*call.Call) string
	postInputs      func(*serialize.Map) *serialize.Map
	postOutput      func(any) any
	onFinish        func(c *call.Call, output any, err error)
	attributes      map[string]any
	tracingDisabled bool
}

// Option configures an op.
type Option func(*config)

// WithDisplayName labels the op's calls with name instead of the op name.
func WithDisplayName(name string) Option {
	return func(c *config) { c.displayName = name }
}

// WithDisplayNameFunc labels each call from its bound, serialized inputs.
func WithDisplayNameFunc(fn func(*call.Call) string) Option {
	return func(c *config) { c.displayNameFunc = fn }
}

// WithPostprocessInputs rewrites the bound inputs before they are
// serialized. The function may modify and return its argument. It only
// affects what is recorded, never what the wrapped function receives.
func WithPostprocessInputs(fn func(*serialize.Map) *serialize.Map) Option {
	return func(c *config) { c.postInputs = fn }
}

// WithPostprocessOutput rewrites a successful output before it is
// serialized. It only affects what is recorded, never what the caller gets.
func WithPostprocessOutput(fn func(any) any) Option {
	return func(c *config) { c.postOutput = fn }
}

// WithOnFinish runs fn before the call's summary is computed. It receives
// the raw output and typically reports usage through c.AddSummary.
func WithOnFinish(fn func(c *call.Call, output any, err error)) Option {
	return func(c *config) { c.onFinish = fn }
}

// WithAttributes attaches attrs to every call of the op.
func WithAttributes(attrs map[string]any) Option {
	return func(c *config) {
		if c.attributes == nil {
			c.attributes = map[string]any{}
		}
		maps.Copy(c.attributes, attrs)
	}
}

// WithTracingDisabled makes the op a plain function even when a client is
// installed.
func WithTracingDisabled() Option {
	return func(c *config) { c.tracingDisabled = true }
}
