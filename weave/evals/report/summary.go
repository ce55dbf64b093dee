/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/wandb/weave-sub009/weave/evals"
)

// Summary renders the result of Evaluation.Evaluate as a table with one row
// per summary leaf, for example "exact.mean" or "positive.true_fraction".
// Model latency is reported in seconds.
func Summary(name string, result map[string]any) string {
	var rows [][]string
	flatten("", result, &rows)
	slices.SortFunc(rows, func(a, b []string) int { return strings.Compare(a[0], b[0]) })

	var buf bytes.Buffer
	table := newTable([]string{"Metric", "Value"}, &buf)
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()

	if name == "" {
		name = "Evaluation"
	}
	return fmt.Sprintf("## %s\n\n%s", name, buf.String())
}

func flatten(prefix string, v any, rows *[][]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, x, rows)
		}
	case nil:
		*rows = append(*rows, []string{prefix, "-"})
	case float64:
		*rows = append(*rows, []string{prefix, formatFloat(prefix, t)})
	case float32:
		*rows = append(*rows, []string{prefix, formatFloat(prefix, float64(t))})
	default:
		*rows = append(*rows, []string{prefix, fmt.Sprint(t)})
	}
}

func formatFloat(key string, f float64) string {
	switch {
	case strings.HasPrefix(key, evals.KeyModelLatency+"."):
		return fmt.Sprintf("%.3fs", f)
	case strings.HasSuffix(key, ".true_fraction"):
		return fmt.Sprintf("%.1f%%", f*100)
	default:
		return fmt.Sprintf("%.4g", f)
	}
}
