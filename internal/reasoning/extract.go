package reasoning

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSON finds the JSON object in a model response. It accepts a bare
// object, a ```json fenced block, any fenced block, and finally the span from
// the first '{' to the last '}'.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoJSON
	}

	var candidates []string
	if strings.HasPrefix(text, "{") {
		if end := matchBrace(text); end > 0 {
			candidates = append(candidates, text[:end+1])
		}
	}
	if block, ok := fenced(text, "```json"); ok {
		candidates = append(candidates, block)
	}
	if block, ok := fenced(text, "```"); ok {
		candidates = append(candidates, block)
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, "{") && json.Valid([]byte(c)) {
			return json.RawMessage(c), nil
		}
	}
	return nil, ErrNoJSON
}

// matchBrace returns the index of the brace closing text[0], skipping braces
// inside JSON strings, or -1.
func matchBrace(text string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func fenced(text, open string) (string, bool) {
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	body := text[start+len(open):]
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return body[:end], true
}
