/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wandb/weave-sub009/weave/evals"
)

// Generator renders an observer tree and reports whether any result fell
// below threshold.
type Generator func(obs *evals.NamespacedObserver[*evals.ResultCollector], threshold float64) (string, bool)

var (
	_ Generator = Simple
	_ Generator = ByScorer
)

// failMark prefixes values below the threshold.
const failMark = "❌ "

// newTable returns a markdown table writing to w.
func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 100,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// stats is what a tree node shows for a set of observations.
type stats struct {
	total    int64
	failures int64
	grades   []evals.Grade
}

func (s *stats) add(c *evals.ResultCollector) {
	s.total += c.Total()
	s.failures += int64(len(c.Failures()))
	s.grades = append(s.grades, c.Grades()...)
}

func (s stats) passRate() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.total-s.failures) / float64(s.total)
}

func (s stats) meanGrade() (float64, bool) {
	if len(s.grades) == 0 {
		return 0, false
	}
	var sum float64
	for _, g := range s.grades {
		sum += g.Score
	}
	return sum / float64(len(s.grades)), true
}

// below reports whether the pass rate or the mean grade misses threshold.
func (s stats) below(threshold float64) bool {
	if s.passRate() < threshold {
		return true
	}
	mean, ok := s.meanGrade()
	return ok && mean < threshold
}

// score is the single number a summary table shows: the mean grade when
// there are grades, the pass rate otherwise.
func (s stats) score() float64 {
	if mean, ok := s.meanGrade(); ok {
		return mean
	}
	return s.passRate()
}

// format renders the value and label of a tree node.
func (s stats) format(threshold float64) (string, string) {
	passed := s.total - s.failures
	mean, graded := s.meanGrade()

	var value, label string
	switch {
	case s.failures > 0 && graded:
		value = fmt.Sprintf("%.1f%% pass, %.2f avg", s.passRate()*100, mean)
		label = fmt.Sprintf("(%d/%d)", passed, s.total)
	case graded:
		value = fmt.Sprintf("%.2f avg", mean)
		label = fmt.Sprintf("(%d %s)", len(s.grades), plural(len(s.grades), "result", "results"))
	default:
		value = fmt.Sprintf("%.1f%%", s.passRate()*100)
		label = fmt.Sprintf("(%d/%d)", passed, s.total)
	}
	if s.below(threshold) {
		value = failMark + value
	}
	return value, label
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
