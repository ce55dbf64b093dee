/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command weave-eval runs a hosted model over a dataset, grades every answer
// with an LLM judge and prints a report. It exits non-zero when a scorer
// falls below the threshold.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"google.golang.org/genai"

	"github.com/wandb/weave-sub009/weave/client"
	"github.com/wandb/weave-sub009/weave/evals"
	"github.com/wandb/weave-sub009/weave/evals/judge"
	"github.com/wandb/weave-sub009/weave/evals/report"
	"github.com/wandb/weave-sub009/weave/metrics"
	"github.com/wandb/weave-sub009/weave/op"
)

type config struct {
	Dataset string `env:"WEAVE_EVAL_DATASET,required"`
	Name    string `env:"WEAVE_EVAL_NAME,default=evaluation"`

	// Provider is one of anthropic, openai or gemini. Credentials come from
	// each SDK's usual environment variables.
	Provider   string `env:"WEAVE_EVAL_PROVIDER,default=anthropic"`
	Model      string `env:"WEAVE_EVAL_MODEL,required"`
	JudgeModel string `env:"WEAVE_EVAL_JUDGE_MODEL"`

	// Prompt is a text/template rendered with each example.
	Prompt     string `env:"WEAVE_EVAL_PROMPT,default={{.input}}"`
	Criterion  string `env:"WEAVE_EVAL_CRITERION,default=The response correctly answers the input"`
	ExactMatch bool   `env:"WEAVE_EVAL_EXACT_MATCH,default=false"`

	Threshold float64 `env:"WEAVE_EVAL_THRESHOLD,default=0.8"`
	Trials    int     `env:"WEAVE_EVAL_TRIALS,default=1"`

	MetricsPort int `env:"METRICS_PORT,default=2112"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}
	if cfg.JudgeModel == "" {
		cfg.JudgeModel = cfg.Model
	}

	failed, err := run(ctx, cfg)
	if err != nil {
		clog.FatalContextf(ctx, "%v", err)
	}
	if failed {
		clog.ErrorContextf(ctx, "Evaluation fell below threshold %.2f", cfg.Threshold)
		cancel()
		os.Exit(1)
	}
}

// run evaluates the configured model and prints the reports. It reports
// whether any scorer fell below the threshold.
func run(ctx context.Context, cfg config) (bool, error) {
	if cfg.MetricsPort > 0 {
		stop := serveMetrics(ctx, cfg.MetricsPort)
		defer stop()
	}

	c, err := client.New(ctx, "", client.WithGenAIMetrics(metrics.NewGenAI("weave-eval")))
	if err != nil {
		return false, fmt.Errorf("creating client: %w", err)
	}
	defer func() {
		if err := c.Close(context.WithoutCancel(ctx)); err != nil {
			clog.ErrorContextf(ctx, "flushing calls: %v", err)
		}
	}()
	ctx = client.WithClient(ctx, c)

	dataset, err := evals.LoadDataset(cfg.Dataset)
	if err != nil {
		return false, fmt.Errorf("loading dataset: %w", err)
	}
	clog.InfoContextf(ctx, "Loaded %d examples from %s", len(dataset), cfg.Dataset)

	modelCompleter, err := completer(ctx, cfg.Provider, cfg.Model)
	if err != nil {
		return false, fmt.Errorf("creating model: %w", err)
	}
	judgeCompleter, err := completer(ctx, cfg.Provider, cfg.JudgeModel)
	if err != nil {
		return false, fmt.Errorf("creating judge: %w", err)
	}
	model, err := promptModel(cfg.Model, cfg.Prompt, modelCompleter)
	if err != nil {
		return false, fmt.Errorf("parsing prompt: %w", err)
	}

	scorers := []op.Op{judge.Scorer(judge.New(judgeCompleter), "judge", cfg.Criterion)}
	if cfg.ExactMatch {
		scorers = append(scorers, exactMatch)
	}

	root := evals.NewNamespacedObserver(func(string) *evals.ResultCollector {
		return evals.NewResultCollector(nil)
	})
	exported := evals.MetricsFactory(cfg.Name)
	eval := &evals.Evaluation{
		Name:    cfg.Name,
		Dataset: dataset,
		Scorers: scorers,
		Trials:  cfg.Trials,
		Observe: func(model, example, scorer string) evals.Observer {
			return evals.Multi(root.Path(model, example, scorer), exported(scorer))
		},
	}

	start := time.Now()
	summary, err := eval.Evaluate(ctx, model)
	if err != nil {
		return false, fmt.Errorf("evaluating: %w", err)
	}
	clog.InfoContextf(ctx, "Evaluated %s in %v", cfg.Model, time.Since(start).Round(time.Millisecond))

	fmt.Println(report.Summary(cfg.Name, summary))
	text, failed := report.ByScorer(root, cfg.Threshold)
	fmt.Println(text)
	return failed, nil
}

// completer builds a judge.Completer for provider using the SDK's default
// environment configuration.
func completer(ctx context.Context, provider, model string) (judge.Completer, error) {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		ac := anthropic.NewClient()
		return judge.Claude(&ac.Messages, model), nil
	case "openai":
		oc := openai.NewClient()
		return judge.OpenAI(&oc.Chat.Completions, model), nil
	case "gemini", "google":
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{})
		if err != nil {
			return nil, fmt.Errorf("creating genai client: %w", err)
		}
		return judge.Gemini(gc.Models, model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// promptModel returns an op rendering prompt with each example and
// completing it.
func promptModel(name, prompt string, c judge.Completer) (op.Op, error) {
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(prompt)
	if err != nil {
		return nil, err
	}
	return op.New(name, func(ctx context.Context, example map[string]any) (string, error) {
		var sb strings.Builder
		if err := tmpl.Execute(&sb, example); err != nil {
			return "", fmt.Errorf("rendering prompt: %w", err)
		}
		return c.Complete(ctx, sb.String())
	}), nil
}

type matchInput struct {
	ModelOutput any `json:"model_output"`
	Expected    any `json:"expected"`
}

var exactMatch = op.New("exact_match", func(_ context.Context, in matchInput) (bool, error) {
	return strings.TrimSpace(fmt.Sprint(in.ModelOutput)) == strings.TrimSpace(fmt.Sprint(in.Expected)), nil
})

// serveMetrics exposes the Prometheus registry until ctx is done or the
// returned function is called.
func serveMetrics(ctx context.Context, port int) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			clog.ErrorContextf(ctx, "metrics server: %v", err)
		}
	}()
	return func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
}
