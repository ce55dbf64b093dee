/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wandb/weave-sub009/weave/evals/judge"
)

func TestPromptModel(t *testing.T) {
	var got string
	echo := judge.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		got = prompt
		return "4", nil
	})

	model, err := promptModel("model", "Q: {{.input}}", echo)
	require.NoError(t, err)

	out, _, err := model.InvokeMap(context.Background(), map[string]any{"input": "2+2", "expected": "4"})
	require.NoError(t, err)
	require.Equal(t, "4", out)
	require.Equal(t, "Q: 2+2", got)

	_, err = promptModel("model", "{{.input", echo)
	require.Error(t, err)
}

func TestExactMatch(t *testing.T) {
	got, err := exactMatch.Do(context.Background(), matchInput{ModelOutput: " 4\n", Expected: int64(4)})
	require.NoError(t, err)
	require.True(t, got)

	got, err = exactMatch.Do(context.Background(), matchInput{ModelOutput: "5", Expected: "4"})
	require.NoError(t, err)
	require.False(t, got)
}

func TestCompleterUnknownProvider(t *testing.T) {
	_, err := completer(context.Background(), "llama", "m")
	require.ErrorContains(t, err, `unknown provider "llama"`)
}
