package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrNoJSON = errors.New("llm: no JSON object found in model output")

var fencedJSON = regexp.MustCompile("```json\\s*(\\{[\\s\\S]*?\\})\\s*```")

// ExtractJSON returns the JSON object carried by model output. Output that is
// already valid JSON is returned trimmed; otherwise a ```json fenced block is
// preferred, then the span from the first '{' to the last '}'.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}

	candidate := ""
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate = strings.TrimSpace(m[1])
	} else {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return nil, ErrNoJSON
		}
		candidate = text[start : end+1]
	}

	if !json.Valid([]byte(candidate)) {
		return nil, ErrNoJSON
	}
	return json.RawMessage(candidate), nil
}
