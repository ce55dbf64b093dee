/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeops traces Anthropic Messages API calls as ops and reports
// their token usage in the call summary.
package claudeops

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/op"
)

// OpName is the name message calls are recorded under.
const OpName = "anthropic.Messages.create"

// MessageCreator is satisfied by *anthropic.MessageService.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Usage converts the usage reported on msg into a summary contribution.
// Cached input tokens count as prompt tokens.
func Usage(msg *anthropic.Message) map[string]any {
	if msg == nil {
		return nil
	}
	u := msg.Usage
	prompt := u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
	return call.Usage(string(msg.Model), 1, prompt, u.OutputTokens, prompt+u.OutputTokens)
}

// OnFinish adds the usage of an *anthropic.Message output to the call. It
// is meant for op.WithOnFinish on ops that return messages.
func OnFinish(c *call.Call, output any, err error) {
	if err != nil {
		return
	}
	var msg *anthropic.Message
	switch m := output.(type) {
	case *anthropic.Message:
		msg = m
	case anthropic.Message:
		msg = &m
	}
	if usage := Usage(msg); usage != nil {
		c.AddSummary(usage)
	}
}

// Messages wraps svc.New as an op.
func Messages(svc MessageCreator, opts ...op.Option) *op.Func[anthropic.MessageNewParams, *anthropic.Message] {
	opts = append([]op.Option{op.WithOnFinish(OnFinish)}, opts...)
	return op.New(OpName, func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
		return svc.New(ctx, params)
	}, opts...)
}
