/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package evals runs models over datasets and scores their predictions, on top
of the call tracing in the op and client packages.

# Evaluations

An Evaluation drives a model op over every example of its dataset and feeds
each prediction to its scorer ops:

	eval := &evals.Evaluation{
		Dataset: []evals.Example{
			{"question": "2+2", "expected": 4},
			{"question": "3*3", "expected": 9},
		},
		Scorers: []op.Op{exactMatch},
	}
	summary, err := eval.Evaluate(ctx, model)

Examples bind to op inputs by name. The model receives the example fields,
and every scorer receives them plus "model_output"; fields an op does not
declare are ignored and declared fields that are missing keep their zero
value.

Every run records one tree:

	Evaluation.evaluate
	├── Evaluation.predict_and_score   (one per example and trial)
	│   ├── <model>
	│   └── <scorer> ...
	└── Evaluation.summarize

Examples run concurrently, bounded by Concurrency or the client's
parallelism. A failing model or scorer marks its own call as failed and is
left out of the summary; the evaluation itself still succeeds.

# Summaries

Scorers implementing Summarizer (see WithSummarizer) summarize their own
scores. Every other scorer goes through AutoSummarize, which turns numbers
into {"mean"} and booleans into {"true_count", "true_fraction"}, recursing
through mappings.

# Observers

Observer receives verdicts: Fail, Grade and Log. NamespacedObserver arranges
observers in a path tree, ResultCollector keeps failures and grades for the
report package, and MetricsObserver exports them to Prometheus. Setting
Evaluation.Observe reports each score, and ByCode turns call checks such as
NoErrors or RequiredChildOps into client listeners:

	root := evals.NewNamespacedObserver(func(string) *evals.ResultCollector {
		return evals.NewResultCollector(nil)
	})
	c.AddListener(evals.BuildListener(root, "agent", map[string]evals.Check{
		"no-errors": evals.NoErrors(),
		"searched":  evals.RequiredChildOps("search"),
	}))
*/
package evals
