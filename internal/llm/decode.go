package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FormatError means the model answered but the answer did not fit the
// expected structure.
type FormatError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("llm: malformed %s output: %v", e.Schema, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// StripFences removes markdown code fences some models wrap JSON in.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// DecodeJSON strips fences and unmarshals content into result. Any failure
// is reported as a *FormatError.
func DecodeJSON(schema, content string, result any) error {
	cleaned := StripFences(content)
	if cleaned == "" {
		return &FormatError{Schema: schema, Raw: content, Err: errors.New("empty content")}
	}
	if err := json.Unmarshal([]byte(cleaned), result); err != nil {
		return &FormatError{Schema: schema, Raw: content, Err: err}
	}
	return nil
}
