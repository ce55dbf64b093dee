/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import "text/template"

const outputFormat = `<output_format>
Return your judgment as a JSON object with this structure:
{
  "mode": "{{.Mode}}",
  "score": <number>,
  "reasoning": "explanation of the score for this criterion",
  "suggestions": ["improvement1", "improvement2", ...]
}

Suggestions must be empty for a perfect score. Each suggestion should name
one specific missing or incorrect element.
</output_format>

Respond with only the JSON object, no additional text.`

var goldenPrompt = template.Must(template.New("golden").Parse(`<task>
You are evaluating a response against a reference answer.
Score the response based on the specific criterion provided.
</task>

<golden_answer>
{{.ReferenceAnswer}}
</golden_answer>

<actual_response>
{{.ActualAnswer}}
</actual_response>

<criterion>
{{.Criterion}}
</criterion>

<instructions>
Compare the actual response to the golden answer for the given criterion
only, and score it from 0.0 to 1.0:
- 1.0: equivalent to or better than the golden answer. Wording, ordering
  and stylistic differences that do not change the meaning are not flaws.
- 0.75-0.99: meets the criterion with minor gaps.
- 0.50-0.74: partially meets the criterion with notable gaps.
- 0.25-0.49: significant problems with some correct elements.
- 0.0-0.24: fails the criterion or contradicts the golden answer.
</instructions>

` + outputFormat))

var benchmarkPrompt = template.Must(template.New("benchmark").Parse(`<task>
You are comparing two responses to decide which better meets the criterion.
</task>

<foo>
{{.ReferenceAnswer}}
</foo>

<bar>
{{.ActualAnswer}}
</bar>

<criterion>
{{.Criterion}}
</criterion>

<instructions>
Judge the responses solely on the criterion and score from -1.0 to 1.0:
- -1.0: foo completely dominates; bar fails the criterion.
- -0.99 to -0.01: foo is better, by more the closer to -1.0.
- 0.0: both are equivalent.
- 0.01 to 0.99: bar is better, by more the closer to 1.0.
- 1.0: bar completely dominates; foo fails the criterion.
Suggestions should improve the weaker response.
</instructions>

` + outputFormat))

var standalonePrompt = template.Must(template.New("standalone").Parse(`<task>
You are evaluating a response against a criterion without a reference answer.
</task>

<actual_response>
{{.ActualAnswer}}
</actual_response>

<criterion>
{{.Criterion}}
</criterion>

<instructions>
Score how well the response meets the criterion from 0.0 to 1.0:
- 1.0: fully meets the criterion.
- 0.75-0.99: meets it with minor issues.
- 0.50-0.74: partially meets it.
- 0.25-0.49: mostly misses it.
- 0.0-0.24: does not meet it at all.
</instructions>

` + outputFormat))
