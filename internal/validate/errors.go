package validate

import (
	"fmt"
	"strings"

	"github.com/54b3r/ragbot-go/internal/rag"
)

// excerptRunes is how much of unparseable output is kept for diagnostics.
const excerptRunes = 200

// MalformedOutputError reports model output that is not valid JSON after
// fence stripping. It matches rag.ErrMalformedOutput.
type MalformedOutputError struct {
	// Excerpt holds the first 200 runes of the cleaned output.
	Excerpt string

	// Err is the JSON decoder error.
	Err error
}

// Error implements the error interface.
func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("validate: model output is not valid JSON: %v (content: %q)", e.Err, e.Excerpt)
}

// Unwrap exposes the error kind and the decoder error.
func (e *MalformedOutputError) Unwrap() []error {
	return []error{rag.ErrMalformedOutput, e.Err}
}

// FieldError describes one key whose value has the wrong type.
type FieldError struct {
	Key    string
	Reason string
}

// SchemaViolationError reports parsed output whose shape does not match the
// schema. All problems found are reported together. It matches
// rag.ErrSchemaViolation.
type SchemaViolationError struct {
	// Schema is the name of the schema that was checked.
	Schema string

	// NotObject is set when the document root is not a JSON object.
	NotObject bool

	// Missing lists every absent required key in schema order.
	Missing []string

	// Invalid lists keys that are present with the wrong type.
	Invalid []FieldError
}

// Error implements the error interface.
func (e *SchemaViolationError) Error() string {
	var parts []string
	if e.NotObject {
		parts = append(parts, "root is not a JSON object")
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required keys: "+strings.Join(e.Missing, ", "))
	}
	for _, fe := range e.Invalid {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Key, fe.Reason))
	}
	return fmt.Sprintf("validate: %s output does not match schema: %s", e.Schema, strings.Join(parts, "; "))
}

// Unwrap exposes the error kind.
func (e *SchemaViolationError) Unwrap() error {
	return rag.ErrSchemaViolation
}

// InvalidKeys returns the keys listed in Invalid.
func (e *SchemaViolationError) InvalidKeys() []string {
	keys := make([]string, 0, len(e.Invalid))
	for _, fe := range e.Invalid {
		keys = append(keys, fe.Key)
	}
	return keys
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
