/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googleops traces Gemini content generation as ops and reports
// token usage in the call summary.
package googleops

import (
	"context"

	"google.golang.org/genai"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/op"
)

// OpName is the name generation calls are recorded under.
const OpName = "google.genai.models.generate_content"

// ContentGenerator is satisfied by *genai.Models.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Request is the input of a generation op.
type Request struct {
	Model    string                       `json:"model"`
	Contents []*genai.Content             `json:"contents"`
	Config   *genai.GenerateContentConfig `json:"config,omitempty"`
}

// Usage converts the usage metadata on resp into a summary contribution.
// model is used when the response does not name its model version.
func Usage(model string, resp *genai.GenerateContentResponse) map[string]any {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	u := resp.UsageMetadata
	return call.Usage(model, 1,
		int64(u.PromptTokenCount),
		int64(u.CandidatesTokenCount),
		int64(u.TotalTokenCount))
}

// OnFinish adds the usage of a *genai.GenerateContentResponse output to the
// call. The requested model is read from the call's "model" input.
func OnFinish(c *call.Call, output any, err error) {
	if err != nil {
		return
	}
	resp, ok := output.(*genai.GenerateContentResponse)
	if !ok {
		return
	}
	model, _ := c.Inputs.Value("model").(string)
	if usage := Usage(model, resp); usage != nil {
		c.AddSummary(usage)
	}
}

// GenerateContent wraps models.GenerateContent as an op.
func GenerateContent(models ContentGenerator, opts ...op.Option) *op.Func[Request, *genai.GenerateContentResponse] {
	opts = append([]op.Option{op.WithOnFinish(OnFinish)}, opts...)
	return op.New(OpName, func(ctx context.Context, req Request) (*genai.GenerateContentResponse, error) {
		return models.GenerateContent(ctx, req.Model, req.Contents, req.Config)
	}, opts...)
}
