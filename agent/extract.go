package agent

import (
	"encoding/json"
	"strings"
)

const (
	openMarker  = "<tool_call>"
	closeMarker = "</tool_call>"
)

// ExtractToolCalls scans text for tool-invocation markers and returns
// the ordered calls plus the residual text with every matched span
// removed.
//
// Extraction is best-effort: a span whose payload is not a valid JSON
// object with a tool name is dropped, but its span is still stripped
// from the residual text. An opening marker that never closes is left
// in place. Payloads are located with a brace-depth scan so nested
// objects and brace characters inside strings parse correctly.
func ExtractToolCalls(text string) ([]ToolCall, string) {
	var calls []ToolCall
	var residual strings.Builder

	rest := text
	for {
		start := strings.Index(rest, openMarker)
		if start < 0 {
			residual.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+len(openMarker):], closeMarker)
		if end < 0 {
			// Unterminated marker: not a match, keep the text as-is.
			residual.WriteString(rest)
			break
		}
		end += start + len(openMarker)

		residual.WriteString(rest[:start])
		span := rest[start+len(openMarker) : end]
		if call, ok := parseCall(span); ok {
			calls = append(calls, call)
		}
		rest = rest[end+len(closeMarker):]
	}

	return calls, strings.TrimSpace(residual.String())
}

// parseCall extracts the JSON object from one marker span. The span
// may carry whitespace or stray prose around the object; the object
// itself is found by brace-depth scanning.
func parseCall(span string) (ToolCall, bool) {
	obj, ok := scanObject(span)
	if !ok {
		return ToolCall{}, false
	}
	var call ToolCall
	if err := json.Unmarshal([]byte(obj), &call); err != nil {
		return ToolCall{}, false
	}
	if call.Tool == "" {
		return ToolCall{}, false
	}
	return call, true
}

// scanObject returns the first balanced top-level JSON object in s.
// Depth tracking ignores braces inside string literals and escaped
// characters.
func scanObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
