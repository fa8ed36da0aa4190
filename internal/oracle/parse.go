package oracle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var jsonFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of a model reply. Models wrap JSON in
// markdown fences or surround it with prose despite instructions, so this
// tries, in order: a fenced block, the outermost brace span, the raw text.
// The candidate is run through jsonrepair to fix trailing commas, single
// quotes and similar damage before the caller unmarshals it.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}

	candidate := text
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			candidate = text[start : end+1]
		}
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", fmt.Errorf("repair json: %w", err)
	}
	return repaired, nil
}
