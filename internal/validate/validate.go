package validate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Verdict classifies a successful validation.
type Verdict string

const (
	// VerdictValid means every check passed.
	VerdictValid Verdict = "valid"
	// VerdictValidWithWarnings means the output is usable but a lenient
	// constraint (enum membership, item count) was not met.
	VerdictValidWithWarnings Verdict = "valid_with_warnings"
)

// Warning records a lenient constraint that the output did not satisfy.
type Warning struct {
	// Field is the top-level key the warning is about.
	Field string `json:"field"`
	// Value is the offending value, when it is a scalar.
	Value string `json:"value,omitempty"`
	// Message is a human-readable description.
	Message string `json:"message"`
}

// Result is the outcome of a successful validation.
type Result struct {
	// Object is the parsed top-level JSON object.
	Object map[string]any

	// Cleaned is the output after fence stripping; it is what was parsed.
	Cleaned string

	// Warnings lists lenient constraint failures in schema order.
	Warnings []Warning
}

// Verdict reports whether the result carries warnings.
func (r *Result) Verdict() Verdict {
	if len(r.Warnings) > 0 {
		return VerdictValidWithWarnings
	}
	return VerdictValid
}

// StripFences removes surrounding whitespace and a Markdown code fence:
// a leading "```" with an optional language tag (e.g. "```json" or
// "``` json") and the last closing "```". Anything after the closing fence
// is dropped. Text without fences is returned trimmed.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(s, "```")
	if !ok {
		s, _ = strings.CutSuffix(s, "```")
		return strings.TrimSpace(s)
	}
	s = strings.TrimLeft(rest, " \t")
	s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Validate strips fences from raw, parses it as JSON and checks it against
// schema.
//
// It returns *MalformedOutputError when the cleaned text is not JSON and
// *SchemaViolationError when required keys are missing or values have the
// wrong type. Enum and item-count mismatches never fail; they are returned
// as warnings on the Result.
func Validate(raw string, schema Schema) (*Result, error) {
	cleaned := StripFences(raw)

	var root any
	if err := json.Unmarshal([]byte(cleaned), &root); err != nil {
		return nil, &MalformedOutputError{Excerpt: firstRunes(cleaned, excerptRunes), Err: err}
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return nil, &SchemaViolationError{Schema: schema.Name, NotObject: true}
	}

	res := &Result{Object: obj, Cleaned: cleaned}
	violation := &SchemaViolationError{Schema: schema.Name}

	for _, f := range schema.Fields {
		v, present := obj[f.Key]
		if !present {
			if !f.Optional {
				violation.Missing = append(violation.Missing, f.Key)
			}
			continue
		}
		if reason := checkType(f, v); reason != "" {
			violation.Invalid = append(violation.Invalid, FieldError{Key: f.Key, Reason: reason})
			continue
		}
		res.Warnings = append(res.Warnings, lenientChecks(f, v)...)
	}

	if len(violation.Missing) > 0 || len(violation.Invalid) > 0 {
		return nil, violation
	}
	return res, nil
}

// Decode validates raw against schema and decodes the cleaned JSON into T.
func Decode[T any](raw string, schema Schema) (T, *Result, error) {
	var out T
	res, err := Validate(raw, schema)
	if err != nil {
		return out, nil, err
	}
	if err := json.Unmarshal([]byte(res.Cleaned), &out); err != nil {
		// Validate already proved the shape, so this only fires when T
		// disagrees with schema.
		return out, nil, fmt.Errorf("validate: decode %s output: %w", schema.Name, err)
	}
	return out, res, nil
}

// checkType returns a non-empty reason when v does not have the JSON type
// f requires.
func checkType(f Field, v any) string {
	switch f.Kind {
	case String, Enum:
		if _, ok := v.(string); !ok {
			return "expected string, got " + jsonType(v)
		}
	case StringList:
		items, ok := v.([]any)
		if !ok {
			return "expected list of strings, got " + jsonType(v)
		}
		for i, it := range items {
			if _, ok := it.(string); !ok {
				return fmt.Sprintf("item %d: expected string, got %s", i, jsonType(it))
			}
		}
	case ObjectList:
		items, ok := v.([]any)
		if !ok {
			return "expected list of objects, got " + jsonType(v)
		}
		for i, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				return fmt.Sprintf("item %d: expected object, got %s", i, jsonType(it))
			}
			for _, k := range f.SubKeys {
				sv, ok := m[k]
				if !ok {
					return fmt.Sprintf("item %d: missing key %q", i, k)
				}
				if _, ok := sv.(string); !ok {
					return fmt.Sprintf("item %d: %q: expected string, got %s", i, k, jsonType(sv))
				}
			}
		}
	}
	return ""
}

func lenientChecks(f Field, v any) []Warning {
	var warnings []Warning
	switch f.Kind {
	case Enum:
		s := v.(string)
		if !f.allows(s) {
			warnings = append(warnings, Warning{
				Field:   f.Key,
				Value:   s,
				Message: fmt.Sprintf("unexpected value %q, expected one of %s", s, strings.Join(f.Enum, ", ")),
			})
		}
	case StringList, ObjectList:
		n := len(v.([]any))
		if f.MinItems > 0 && n < f.MinItems {
			warnings = append(warnings, Warning{
				Field:   f.Key,
				Message: fmt.Sprintf("got %d items, expected at least %d", n, f.MinItems),
			})
		}
		if f.MaxItems > 0 && n > f.MaxItems {
			warnings = append(warnings, Warning{
				Field:   f.Key,
				Message: fmt.Sprintf("got %d items, expected at most %d", n, f.MaxItems),
			})
		}
	}
	return warnings
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
