/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names a dataset encoding.
type Format string

const (
	// FormatYAML is a YAML (or JSON) sequence of mappings.
	FormatYAML Format = "yaml"
	// FormatJSONL holds one JSON object per line.
	FormatJSONL Format = "jsonl"
)

// FormatOf picks a format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unsupported dataset extension %q", filepath.Ext(path))
	}
}

// LoadDataset reads the examples stored at path.
func LoadDataset(path string) ([]Example, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	rows, err := ReadDataset(f, format)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

// ReadDataset decodes examples in the given format.
func ReadDataset(r io.Reader, format Format) ([]Example, error) {
	switch format {
	case FormatYAML:
		var rows []Example
		if err := yaml.NewDecoder(r).Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding dataset: %w", err)
		}
		return rows, nil

	case FormatJSONL:
		var rows []Example
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for line := 1; scanner.Scan(); line++ {
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 {
				continue
			}
			var row Example
			if err := yaml.Unmarshal(text, &row); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			rows = append(rows, row)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		return rows, nil

	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}
