/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wandb/weave-sub009/weave/op"
)

type scorerInput struct {
	ModelOutput any `json:"model_output"`
	Expected    any `json:"expected"`
}

// Scorer returns a scorer op named name grading model outputs against
// criterion. Examples with an "expected" field are judged in golden mode,
// the others in standalone mode.
func Scorer(j *Judge, name, criterion string, opts ...op.Option) op.Op {
	return op.New(name, func(ctx context.Context, in scorerInput) (map[string]any, error) {
		req := &Request{
			Mode:         StandaloneMode,
			ActualAnswer: text(in.ModelOutput),
			Criterion:    criterion,
		}
		if ref := text(in.Expected); ref != "" {
			req.Mode, req.ReferenceAnswer = GoldenMode, ref
		}
		got, err := j.Judge(ctx, req)
		if err != nil {
			return nil, err
		}
		return got.ToDict(), nil
	}, opts...)
}

// text renders an example value for a prompt.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
