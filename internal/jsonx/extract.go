// Package jsonx extracts structured objects from free-form model output.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports a failure to locate or decode a JSON object
// inside a piece of model text.
type ParseError struct {
	Text  string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no valid json object in text: %v", e.Cause)
	}
	return "no json object found in text"
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Extract decodes the first JSON object found in text into out. The text
// may be a bare object or an object embedded in surrounding prose.
func Extract(text string, out any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &ParseError{Text: text}
	}

	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	candidate, ok := firstBalancedObject(trimmed)
	if !ok {
		return &ParseError{Text: text}
	}
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return &ParseError{Text: text, Cause: err}
	}
	return nil
}

// firstBalancedObject returns the first brace-balanced substring,
// honoring string literals and escape sequences.
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
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
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
