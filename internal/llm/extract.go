package llm

import (
	"encoding/json"
	"strings"
)

// ExtractText normalizes the heterogeneous remote response payloads
// down to a single string. Recognized shapes: a bare string,
// {"reaction": ...}, {"text": ...}, {"response": ...}, the OpenAI-style
// {"choices":[{"message":{"content": ...}}]}, arrays of any of these,
// and any of the above wrapped in markdown code fences.
func ExtractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return stripFences(strings.TrimSpace(string(raw)))
	}
	return strings.TrimSpace(extract(v))
}

func extract(v any) string {
	switch t := v.(type) {
	case string:
		s := stripFences(strings.TrimSpace(t))
		// Fenced payloads often wrap another recognized JSON shape.
		if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
			var inner any
			if err := json.Unmarshal([]byte(s), &inner); err == nil {
				if got := extract(inner); got != "" {
					return got
				}
			}
		}
		return s
	case map[string]any:
		for _, key := range []string{"reaction", "text", "response"} {
			if s, ok := t[key].(string); ok && s != "" {
				return extract(s)
			}
		}
		if choices, ok := t["choices"].([]any); ok && len(choices) > 0 {
			if choice, ok := choices[0].(map[string]any); ok {
				if msg, ok := choice["message"].(map[string]any); ok {
					if s, ok := msg["content"].(string); ok {
						return extract(s)
					}
				}
			}
		}
		if out, ok := t["output"]; ok {
			return extract(out)
		}
		return ""
	case []any:
		for _, item := range t {
			if s := extract(item); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// stripFences removes a surrounding markdown code fence, including an
// optional language tag on the opening line.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
