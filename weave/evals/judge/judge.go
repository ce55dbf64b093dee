/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// Mode selects how a response is judged.
type Mode string

const (
	// GoldenMode compares a response with a reference answer.
	GoldenMode Mode = "golden"
	// BenchmarkMode compares two responses. Negative scores favor the
	// reference, positive scores favor the actual answer.
	BenchmarkMode Mode = "benchmark"
	// StandaloneMode grades a response against the criterion alone.
	StandaloneMode Mode = "standalone"
)

// Request is what a Judge grades.
type Request struct {
	Mode            Mode   `json:"mode"`
	ReferenceAnswer string `json:"reference_answer,omitempty"`
	ActualAnswer    string `json:"actual_answer"`
	Criterion       string `json:"criterion"`
}

// Judgement is a parsed verdict.
type Judgement struct {
	Mode        Mode     `json:"mode"`
	Score       float64  `json:"score"`
	Reasoning   string   `json:"reasoning"`
	Suggestions []string `json:"suggestions"`
}

// String formats the judgement as a grade line followed by suggestions.
func (j *Judgement) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Grade: %.2f", j.Score)
	if j.Reasoning != "" {
		fmt.Fprintf(&sb, " - %s", j.Reasoning)
	}
	for _, s := range j.Suggestions {
		fmt.Fprintf(&sb, "\n  Suggestion: %s", s)
	}
	return sb.String()
}

// ToDict is the score recorded for the judgement.
func (j *Judgement) ToDict() map[string]any {
	suggestions := make([]any, 0, len(j.Suggestions))
	for _, s := range j.Suggestions {
		suggestions = append(suggestions, s)
	}
	return map[string]any{
		"mode":        string(j.Mode),
		"score":       j.Score,
		"reasoning":   j.Reasoning,
		"suggestions": suggestions,
	}
}

// Completer turns a prompt into the model's text response.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Judge grades responses with a Completer.
type Judge struct {
	completer Completer
}

// New returns a Judge backed by c.
func New(c Completer) *Judge {
	return &Judge{completer: c}
}

// Judge validates req, asks the model for a verdict and checks that the
// score is in range for the mode.
func (j *Judge) Judge(ctx context.Context, req *Request) (*Judgement, error) {
	tmpl, err := promptFor(req)
	if err != nil {
		return nil, err
	}
	var prompt bytes.Buffer
	if err := tmpl.Execute(&prompt, req); err != nil {
		return nil, fmt.Errorf("rendering %s prompt: %w", req.Mode, err)
	}

	text, err := j.completer.Complete(ctx, prompt.String())
	if err != nil {
		return nil, fmt.Errorf("completing %s judgement: %w", req.Mode, err)
	}
	got, err := Extract[Judgement](text)
	if err != nil {
		return nil, fmt.Errorf("parsing judgement: %w", err)
	}
	if got.Mode == "" {
		got.Mode = req.Mode
	}
	if got.Mode != req.Mode {
		return nil, fmt.Errorf("judgement mode: got = %s, wanted = %s", got.Mode, req.Mode)
	}
	if err := validScore(req.Mode, got.Score); err != nil {
		return nil, err
	}
	return &got, nil
}

func promptFor(req *Request) (*template.Template, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if req.ActualAnswer == "" {
		return nil, errors.New("actual_answer is required")
	}
	if req.Criterion == "" {
		return nil, errors.New("criterion is required")
	}
	switch req.Mode {
	case GoldenMode:
		if req.ReferenceAnswer == "" {
			return nil, errors.New("reference_answer is required for golden mode")
		}
		return goldenPrompt, nil
	case BenchmarkMode:
		if req.ReferenceAnswer == "" {
			return nil, errors.New("reference_answer (first candidate) is required for benchmark mode")
		}
		return benchmarkPrompt, nil
	case StandaloneMode:
		if req.ReferenceAnswer != "" {
			return nil, errors.New("reference_answer must not be provided for standalone mode")
		}
		return standalonePrompt, nil
	default:
		return nil, fmt.Errorf("unsupported mode: %q", req.Mode)
	}
}

func validScore(mode Mode, score float64) error {
	lo := 0.0
	if mode == BenchmarkMode {
		lo = -1
	}
	if score < lo || score > 1 {
		return fmt.Errorf("score %.2f is out of range [%g, 1] for %s mode", score, lo, mode)
	}
	return nil
}
