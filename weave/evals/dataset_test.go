/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wandb/weave-sub009/weave/evals"
)

func TestReadDatasetYAML(t *testing.T) {
	rows, err := evals.ReadDataset(strings.NewReader(`
- id: a
  q: 1
  expected: 2
- id: b
  q: 2.5
  tags: [x, y]
`), evals.FormatYAML)
	require.NoError(t, err)

	want := []evals.Example{
		{"id": "a", "q": 1, "expected": 2},
		{"id": "b", "q": 2.5, "tags": []any{"x", "y"}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
}

func TestReadDatasetJSONL(t *testing.T) {
	rows, err := evals.ReadDataset(strings.NewReader(`{"id": "a", "q": 1}

{"id": "b", "q": 2, "meta": {"source": "web"}}
`), evals.FormatJSONL)
	require.NoError(t, err)

	want := []evals.Example{
		{"id": "a", "q": 1},
		{"id": "b", "q": 2, "meta": map[string]any{"source": "web"}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}

	_, err = evals.ReadDataset(strings.NewReader("{\"id\": \"a\"}\n[not, a, mapping]\n"), evals.FormatJSONL)
	require.ErrorContains(t, err, "line 2")
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qa.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"q": 3}`+"\n"), 0o600))

	rows, err := evals.LoadDataset(path)
	require.NoError(t, err)
	require.Equal(t, []evals.Example{{"q": 3}}, rows)

	_, err = evals.LoadDataset(filepath.Join(dir, "qa.csv"))
	require.ErrorContains(t, err, "unsupported dataset extension")
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]evals.Format{
		"data.yaml":   evals.FormatYAML,
		"data.YML":    evals.FormatYAML,
		"data.json":   evals.FormatYAML,
		"data.jsonl":  evals.FormatJSONL,
		"data.ndjson": evals.FormatJSONL,
	} {
		got, err := evals.FormatOf(path)
		require.NoError(t, err, path)
		require.Equal(t, want, got, path)
	}
}
