/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/wandb/weave-sub009/weave/call"
	"github.com/wandb/weave-sub009/weave/client"
	"github.com/wandb/weave-sub009/weave/op"
)

// Op names of the calls an evaluation records around the model and scorers.
const (
	EvaluateOpName        = "Evaluation.evaluate"
	PredictAndScoreOpName = "Evaluation.predict_and_score"
	SummarizeOpName       = "Evaluation.summarize"
)

// Keys of the evaluation result and of each predict_and_score output.
const (
	KeyModelOutput  = "model_output"
	KeyScores       = "scores"
	KeyModelLatency = "model_latency"
)

// ErrNotAnOp is returned when the model or a scorer handed to an evaluation
// is not an op. Wrap plain functions with op.New first.
var ErrNotAnOp = errors.New("evaluation model and scorers must be ops built with op.New, op.Method or op.NewStream")

// defaultConcurrency applies when neither the evaluation nor the client
// sets a limit.
const defaultConcurrency = 10

// Example is one dataset row. Its keys are matched by name against the
// inputs of the model and of every scorer.
type Example = map[string]any

// ObserverFunc returns the observer that receives the outcome of one scorer
// on one example.
type ObserverFunc func(model, example, scorer string) Observer

// Evaluation runs a model over a dataset and scores every prediction.
type Evaluation struct {
	// Name labels the evaluation in reports. It defaults to "evaluation".
	Name string
	// Dataset holds the examples in order.
	Dataset []Example
	// Scorers are ops fed with the example fields plus "model_output".
	// A scorer implementing Summarizer summarizes its own scores.
	Scorers []op.Op
	// Trials repeats every example. Values below one mean once.
	Trials int
	// Concurrency bounds the examples in flight. Zero uses the client's
	// parallelism.
	Concurrency int
	// Observe, when set, receives one Increment per scored example and a
	// Grade or Fail derived from the score.
	Observe ObserverFunc

	once            sync.Once
	evaluate        *op.Func[evaluateRequest, map[string]any]
	predictAndScore *op.Func[predictRequest, *Row]
	summarize       *op.Func[summarizeRequest, map[string]any]
}

// Row is the recorded outcome of one example.
type Row struct {
	ModelOutput  any            `json:"model_output"`
	Scores       map[string]any `json:"scores"`
	ModelLatency float64        `json:"model_latency"`
}

type evaluateRequest struct {
	Model string `json:"model"`
	model op.Op
}

type predictRequest struct {
	Model   string  `json:"model"`
	Example Example `json:"example"`
	model   op.Op
	name    string
}

type summarizeRequest struct {
	Rows []*Row `json:"rows"`
}

// ToDict describes the evaluation in recorded inputs without copying the
// dataset.
func (e *Evaluation) ToDict() map[string]any {
	scorers := make([]string, 0, len(e.Scorers))
	for _, s := range e.Scorers {
		if s != nil {
			scorers = append(scorers, s.Name())
		}
	}
	return map[string]any{
		"name":     e.name(),
		"examples": len(e.Dataset),
		"scorers":  scorers,
		"trials":   e.trials(),
	}
}

func (e *Evaluation) name() string {
	if e.Name == "" {
		return "evaluation"
	}
	return e.Name
}

func (e *Evaluation) trials() int {
	return max(e.Trials, 1)
}

func (e *Evaluation) ops() {
	e.once.Do(func() {
		e.evaluate = op.Method(e, EvaluateOpName, (*Evaluation).run, op.WithOnFinish(surfaceResult))
		e.predictAndScore = op.Method(e, PredictAndScoreOpName, (*Evaluation).predictAndScoreOne)
		e.summarize = op.Method(e, SummarizeOpName, (*Evaluation).summarizeRows)
	})
}

// Evaluate runs model over the dataset and returns a mapping from scorer
// name to its summary, plus "model_latency" and "model_output" summaries.
// model must be an op.
func (e *Evaluation) Evaluate(ctx context.Context, model any) (map[string]any, error) {
	out, _, err := e.EvaluateCall(ctx, model)
	return out, err
}

// EvaluateCall is Evaluate that also returns the root call, which is nil
// when tracing is off.
func (e *Evaluation) EvaluateCall(ctx context.Context, model any) (map[string]any, *call.Call, error) {
	m, ok := model.(op.Op)
	if !ok || m == nil {
		return nil, nil, fmt.Errorf("%w: model is %T", ErrNotAnOp, model)
	}
	for i, s := range e.Scorers {
		if s == nil {
			return nil, nil, fmt.Errorf("%w: scorer %d is nil", ErrNotAnOp, i)
		}
	}
	e.ops()
	return e.evaluate.Call(ctx, evaluateRequest{Model: modelName(ctx, m), model: m})
}

func modelName(ctx context.Context, m op.Op) string {
	if ref := m.Ref(ctx); ref != "" {
		return ref
	}
	return m.Name()
}

func (e *Evaluation) concurrency(ctx context.Context) int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	if c := client.FromContext(ctx); c != nil && c.Config().Parallelism > 0 {
		return c.Config().Parallelism
	}
	return defaultConcurrency
}

func (e *Evaluation) run(ctx context.Context, req evaluateRequest) (map[string]any, error) {
	trials := e.trials()
	rows := make([]*Row, len(e.Dataset)*trials)

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency(ctx))
	for i := range rows {
		example := e.Dataset[i/trials]
		name := exampleName(example, i/trials)
		if trials > 1 {
			name = fmt.Sprintf("%s#%d", name, i%trials)
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			row, err := e.predictAndScore.Do(ctx, predictRequest{
				Model:   req.Model,
				Example: example,
				model:   req.model,
				name:    name,
			})
			if err != nil {
				clog.FromContext(ctx).With("example", name, "error", err).Warn("Example failed, excluding it from the summary")
				return nil
			}
			rows[i] = row
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return e.summarize.Do(ctx, summarizeRequest{Rows: rows})
}

func exampleName(example Example, i int) string {
	for _, key := range []string{"id", "name"} {
		if v, ok := example[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return fmt.Sprintf("example-%d", i)
}

func (e *Evaluation) predictAndScoreOne(ctx context.Context, req predictRequest) (*Row, error) {
	start := time.Now()
	output, _, err := req.model.InvokeMap(ctx, maps.Clone(req.Example))
	latency := time.Since(start).Seconds()
	if err != nil {
		err = fmt.Errorf("predict: %w", err)
		for _, scorer := range e.Scorers {
			e.observe(req, scorer.Name(), nil, err)
		}
		return nil, err
	}

	row := &Row{
		ModelOutput:  output,
		Scores:       make(map[string]any, len(e.Scorers)),
		ModelLatency: latency,
	}
	for _, scorer := range e.Scorers {
		args := maps.Clone(req.Example)
		if args == nil {
			args = make(map[string]any, 1)
		}
		args[KeyModelOutput] = output
		score, _, err := scorer.InvokeMap(ctx, args)
		e.observe(req, scorer.Name(), score, err)
		if err != nil {
			clog.FromContext(ctx).With("scorer", scorer.Name(), "example", req.name, "error", err).Warn("Scorer failed, excluding its score")
			continue
		}
		row.Scores[scorer.Name()] = score
	}
	return row, nil
}

func (e *Evaluation) observe(req predictRequest, scorer string, score any, err error) {
	if e.Observe == nil {
		return
	}
	obs := e.Observe(req.model.Name(), req.name, scorer)
	if obs == nil {
		return
	}
	obs.Increment()
	if err != nil {
		obs.Fail(err.Error())
		return
	}
	Judge(obs, score)
}

func (e *Evaluation) summarizeRows(ctx context.Context, req summarizeRequest) (map[string]any, error) {
	out := make(map[string]any, len(e.Scorers)+2)
	for _, scorer := range e.Scorers {
		name := scorer.Name()
		var scores []any
		for _, row := range req.Rows {
			if row == nil {
				continue
			}
			if s, ok := row.Scores[name]; ok {
				scores = append(scores, s)
			}
		}

		if s, ok := scorer.(Summarizer); ok {
			summary, err := s.Summarize(ctx, scores)
			if err != nil {
				return nil, fmt.Errorf("summarizing %s: %w", name, err)
			}
			out[name] = summary
			continue
		}
		out[name] = AutoSummarize(scores)
	}

	var outputs, latencies []any
	for _, row := range req.Rows {
		if row == nil {
			continue
		}
		outputs = append(outputs, row.ModelOutput)
		latencies = append(latencies, row.ModelLatency)
	}
	out[KeyModelOutput] = AutoSummarize(outputs)
	out[KeyModelLatency] = AutoSummarize(latencies)
	return out, nil
}

// surfaceResult copies the evaluation result into the root call summary.
func surfaceResult(c *call.Call, output any, err error) {
	result, ok := output.(map[string]any)
	if err != nil || !ok {
		return
	}
	c.AddSummary(map[string]any{"evaluation": result})
}
