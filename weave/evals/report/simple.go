/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"fmt"

	"chainguard.dev/sdk/pathtree"

	"github.com/wandb/weave-sub009/weave/evals"
)

// Simple prints every observed node of the tree with its pass rate or mean
// grade, followed by its failures and below-threshold grades.
func Simple(obs *evals.NamespacedObserver[*evals.ResultCollector], threshold float64) (string, bool) {
	tree := pathtree.New()
	tree.PrintOption = pathtree.KeyValueLabel
	hasFailure := false

	obs.Walk(func(name string, collector *evals.ResultCollector) {
		var s stats
		s.add(collector)
		if s.total == 0 {
			return
		}
		if s.below(threshold) {
			hasFailure = true
		}

		value, label := s.format(threshold)
		if err := tree.Add(name, value, label); err != nil {
			_ = tree.Update(name, value, label)
		}
		addDetails(tree, name, collector.Failures(), s.grades, threshold)
	})

	return tree.String(), hasFailure
}

// addDetails adds failures and below-threshold grades as numbered children
// of base.
func addDetails(tree *pathtree.Tree, base string, failures []string, grades []evals.Grade, threshold float64) {
	n := 0
	for _, failure := range failures {
		n++
		_ = tree.Add(fmt.Sprintf("%s/%d", base, n), "FAIL", failure)
	}
	for _, g := range grades {
		if g.Score >= threshold {
			continue
		}
		n++
		_ = tree.Add(fmt.Sprintf("%s/%d", base, n), fmt.Sprintf("%.2f", g.Score), g.Reasoning)
	}
}
