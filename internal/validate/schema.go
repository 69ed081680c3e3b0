// Package validate turns free-form language model output into a checked
// JSON object. It strips Markdown code fences, parses the JSON, and checks
// the result against a small declarative schema: required keys, value
// types, and lenient constraints (enum membership, item counts) that are
// reported as warnings instead of failures.
//
// Everything here is pure and deterministic; nothing performs I/O.
package validate

import (
	"fmt"
	"slices"
)

// Kind is the expected JSON type of a field.
type Kind int

const (
	// String is a JSON string.
	String Kind = iota
	// StringList is a JSON array whose items are all strings.
	StringList
	// ObjectList is a JSON array of objects, each carrying SubKeys as strings.
	ObjectList
	// Enum is a JSON string expected, but not required, to be one of Field.Enum.
	Enum
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case StringList:
		return "list of strings"
	case ObjectList:
		return "list of objects"
	case Enum:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field describes one top-level key of the expected object.
type Field struct {
	// Key is the JSON object key.
	Key string

	// Kind is the expected JSON type.
	Kind Kind

	// Optional fields may be absent. Fields are required by default.
	Optional bool

	// SubKeys are the string-valued keys every item of an ObjectList must carry.
	SubKeys []string

	// Enum lists the expected values of an Enum field. Other values are
	// accepted and reported as warnings.
	Enum []string

	// MinItems and MaxItems bound list lengths. Zero means unbounded.
	// Out-of-range counts are warnings, not violations.
	MinItems int
	MaxItems int
}

// Schema is the expected shape of a model response.
type Schema struct {
	// Name identifies the schema in error messages (e.g. "analysis").
	Name string

	// Fields lists the expected top-level keys in reporting order.
	Fields []Field
}

// Keys returns the top-level keys in declaration order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

func (f Field) allows(value string) bool {
	return slices.Contains(f.Enum, value)
}
