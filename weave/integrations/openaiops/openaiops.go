/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaiops traces OpenAI chat completions as ops and reports their
// token usage in the call summary.
package openaiops

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/op"
)

// OpName is the name chat completion calls are recorded under.
const OpName = "openai.chat.completions.create"

// CompletionCreator is satisfied by *openai.ChatCompletionService.
type CompletionCreator interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Usage converts the usage reported on completion into a summary
// contribution.
func Usage(completion *openai.ChatCompletion) map[string]any {
	if completion == nil {
		return nil
	}
	u := completion.Usage
	return call.Usage(completion.Model, 1, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

// OnFinish adds the usage of an *openai.ChatCompletion output to the call.
func OnFinish(c *call.Call, output any, err error) {
	if err != nil {
		return
	}
	var completion *openai.ChatCompletion
	switch v := output.(type) {
	case *openai.ChatCompletion:
		completion = v
	case openai.ChatCompletion:
		completion = &v
	}
	if usage := Usage(completion); usage != nil {
		c.AddSummary(usage)
	}
}

// ChatCompletions wraps svc.New as an op.
func ChatCompletions(svc CompletionCreator, opts ...op.Option) *op.Func[openai.ChatCompletionNewParams, *openai.ChatCompletion] {
	opts = append([]op.Option{op.WithOnFinish(OnFinish)}, opts...)
	return op.New(OpName, func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		return svc.New(ctx, params)
	}, opts...)
}
