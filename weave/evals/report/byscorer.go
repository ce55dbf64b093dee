/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"fmt"
	"path"
	"slices"
	"strings"

	"chainguard.dev/sdk/pathtree"

	"github.com/wandb/weave-sub009/weave/evals"
)

// scorerResult gathers one scorer's results per model and per example.
type scorerResult struct {
	name     string
	all      stats
	models   map[string]*stats
	examples map[string]map[string]*evals.ResultCollector
}

// ByScorer reads a tree laid out as /{model}/{example}/{scorer}, the layout
// evals.Namespaced produces, and reports each scorer as a table row across
// models followed by a tree of its per-example results.
func ByScorer(obs *evals.NamespacedObserver[*evals.ResultCollector], threshold float64) (string, bool) {
	scorers := map[string]*scorerResult{}
	models := map[string]struct{}{}

	obs.Walk(func(name string, collector *evals.ResultCollector) {
		model, example, scorer, ok := splitPath(name)
		if !ok || collector.Total() == 0 {
			return
		}
		models[model] = struct{}{}

		r, ok := scorers[scorer]
		if !ok {
			r = &scorerResult{
				name:     scorer,
				models:   map[string]*stats{},
				examples: map[string]map[string]*evals.ResultCollector{},
			}
			scorers[scorer] = r
		}
		r.all.add(collector)
		if r.models[model] == nil {
			r.models[model] = &stats{}
			r.examples[model] = map[string]*evals.ResultCollector{}
		}
		r.models[model].add(collector)
		r.examples[model][example] = collector
	})
	if len(scorers) == 0 {
		return "", false
	}

	modelNames := sortedKeys(models)
	scorerNames := sortedKeys(scorers)

	var out strings.Builder
	hasFailure := false

	var buf bytes.Buffer
	table := newTable(append(append([]string{"Scorer"}, modelNames...), "Overall"), &buf)
	for _, name := range scorerNames {
		r := scorers[name]
		row := []string{name}
		for _, m := range modelNames {
			s, ok := r.models[m]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, cell(*s, threshold))
		}
		row = append(row, cell(r.all, threshold))
		_ = table.Append(row)
		if r.all.below(threshold) {
			hasFailure = true
		}
	}
	_ = table.Render()
	fmt.Fprintf(&out, "## Summary Table\n\n%s\n", buf.String())

	tree := pathtree.New()
	tree.PrintOption = pathtree.KeyValueLabel
	for _, name := range scorerNames {
		r := scorers[name]
		value, label := r.all.format(threshold)
		_ = tree.Add(name, value, label)

		for _, m := range modelNames {
			s, ok := r.models[m]
			if !ok {
				continue
			}
			base := path.Join(name, m)
			value, label := s.format(threshold)
			_ = tree.Add(base, value, label)

			for _, example := range sortedKeys(r.examples[m]) {
				collector := r.examples[m][example]
				var es stats
				es.add(collector)
				if !es.below(threshold) {
					continue
				}
				leaf := path.Join(base, example)
				value, label := es.format(threshold)
				_ = tree.Add(leaf, value, label)
				addDetails(tree, leaf, collector.Failures(), es.grades, threshold)
			}
		}
	}
	out.WriteString(tree.String())

	return out.String(), hasFailure
}

// cell formats a summary table entry as a percentage.
func cell(s stats, threshold float64) string {
	value := s.score() * 100
	text := fmt.Sprintf("%.1f%%", value)
	if s.failures > 0 {
		text = fmt.Sprintf("%d/%d (%s)", s.total-s.failures, s.total, text)
	}
	if s.below(threshold) {
		return failMark + text
	}
	return text
}

// splitPath extracts model, example and scorer from a node name.
func splitPath(name string) (model, example, scorer string, ok bool) {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
