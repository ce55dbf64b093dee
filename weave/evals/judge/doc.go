/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package judge grades model outputs with a language model.

A Judge renders a grading prompt, sends it to a Completer and parses the
JSON verdict. Completers exist for the Anthropic, OpenAI and Gemini clients
and go through the traced ops of the integrations packages, so judge calls
and their token usage appear under the scorer call that made them:

	j := judge.New(judge.Claude(&client.Messages, "claude-sonnet-4-5"))
	eval := &evals.Evaluation{
		Dataset: dataset,
		Scorers: []op.Op{judge.Scorer(j, "helpful", "The answer is helpful and correct")},
	}

The scorer compares "model_output" against "expected" when the example has
one (golden mode) and grades the output on its own otherwise (standalone
mode). Its score is a mapping with "score", "reasoning" and "suggestions",
which evals.Judge turns into a grade.
*/
package judge
