/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"encoding/json"
	"strings"
)

// ExtractJSON returns the JSON payload of a model response. It prefers the
// first ```json fenced block, then strips stray fences and finally falls
// back to the outermost braces.
func ExtractJSON(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "```json" {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if strings.TrimSpace(l) == "```" {
				break
			}
			body = append(body, l)
		}
		return strings.TrimSpace(strings.Join(body, "\n"))
	}

	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "{") {
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start >= 0 && end > start {
			text = text[start : end+1]
		}
	}
	return text
}

// Extract decodes the JSON payload of a model response into T.
func Extract[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(ExtractJSON(text)), &out)
	return out, err
}
