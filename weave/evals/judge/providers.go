/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/wandb/weave-sub009/weave/integrations/claudeops"
	"github.com/wandb/weave-sub009/weave/integrations/googleops"
	"github.com/wandb/weave-sub009/weave/integrations/openaiops"
)

const (
	maxTokens   = 8192
	temperature = 0.1
)

// Claude completes prompts with the Anthropic Messages API.
func Claude(svc claudeops.MessageCreator, model string) Completer {
	messages := claudeops.Messages(svc)
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		msg, err := messages.Do(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(model),
			MaxTokens:   maxTokens,
			Temperature: anthropic.Float(temperature),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", err
		}
		var text strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		if text.Len() == 0 {
			return "", errors.New("no text content in response")
		}
		return text.String(), nil
	})
}

// OpenAI completes prompts with the OpenAI Chat Completions API.
func OpenAI(svc openaiops.CompletionCreator, model string) Completer {
	completions := openaiops.ChatCompletions(svc)
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		completion, err := completions.Do(ctx, openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(model),
			Temperature: openai.Float(temperature),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
			return "", errors.New("no text content in response")
		}
		return completion.Choices[0].Message.Content, nil
	})
}

// Gemini completes prompts with the Gemini GenerateContent API, asking for
// a JSON response.
func Gemini(models googleops.ContentGenerator, model string) Completer {
	generate := googleops.GenerateContent(models)
	temp := float32(temperature)
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		resp, err := generate.Do(ctx, googleops.Request{
			Model:    model,
			Contents: genai.Text(prompt),
			Config: &genai.GenerateContentConfig{
				Temperature:      &temp,
				MaxOutputTokens:  maxTokens,
				ResponseMIMEType: "application/json",
			},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", errors.New("no content generated")
		}
		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && !part.Thought {
				text.WriteString(part.Text)
			}
		}
		if text.Len() == 0 {
			return "", errors.New("no text content in response")
		}
		return text.String(), nil
	})
}
