/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openaiops_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/client"
	"github.com/wandb/weave-sub009/weave/integrations/openaiops"
	"github.com/wandb/weave-sub009/weave/op"
	"github.com/wandb/weave-sub009/weave/traceserver"
)

type fakeCompletions struct {
	completion *openai.ChatCompletion
}

func (f *fakeCompletions) New(context.Context, openai.ChatCompletionNewParams, ...option.RequestOption) (*openai.ChatCompletion, error) {
	return f.completion, nil
}

func TestUsage(t *testing.T) {
	completion := &openai.ChatCompletion{
		Model: "gpt-test",
		Usage: openai.CompletionUsage{PromptTokens: 9, CompletionTokens: 3, TotalTokens: 12},
	}
	if diff := cmp.Diff(call.Usage("gpt-test", 1, 9, 3, 12), openaiops.Usage(completion)); diff != "" {
		t.Errorf("Usage (-want +got):\n%s", diff)
	}
}

func TestUsageRollsUpToParent(t *testing.T) {
	c, err := client.New(context.Background(), "", client.WithConfig(client.Config{Project: "team/project"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	ctx := client.WithClient(context.Background(), c)

	create := openaiops.ChatCompletions(&fakeCompletions{completion: &openai.ChatCompletion{
		Model: "gpt-test",
		Usage: openai.CompletionUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
	}})
	ask := op.New("ask", func(ctx context.Context, question string) (int, error) {
		for range 2 {
			if _, err := create.Do(ctx, openai.ChatCompletionNewParams{Model: "gpt-test"}); err != nil {
				return 0, err
			}
		}
		return 2, nil
	})

	_, root, err := ask.Call(ctx, "why?")
	require.NoError(t, err)

	for path, want := range map[string]int64{
		"requests":          2,
		"prompt_tokens":     10,
		"completion_tokens": 4,
		"total_tokens":      14,
	} {
		got, err := call.Lookup(root.Summary(), call.KeyUsage, "gpt-test", path)
		require.NoError(t, err)
		require.Equal(t, want, got, path)
	}

	calls, err := c.GetCalls(ctx, traceserver.Filter{OpNames: []string{openaiops.OpName}})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	for _, ch := range calls {
		require.Equal(t, root.ID, ch.ParentID)
	}
}
