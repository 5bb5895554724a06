package scanning

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a model answer contains no JSON object.
var ErrNoJSON = errors.New("no JSON object found in response")

// cleanResponseText strips markdown fences from a model answer. Prose around
// an object is cut away only when the answer is not already valid JSON, so a
// top-level array or string reaches the decoder as-is and is rejected there.
func cleanResponseText(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if json.Valid([]byte(text)) || strings.HasPrefix(text, "[") {
		return text, nil
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return "", ErrNoJSON
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return "", ErrNoJSON
	}

	return text[start : end+1], nil
}
