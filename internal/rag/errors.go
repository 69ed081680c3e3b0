package rag

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds shared by every pipeline stage. Callers classify failures with
// errors.Is against these values; the HTTP layer maps them to status codes.
var (
	// ErrEmptyInput is returned when a required text input is blank.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidInput is returned when an input violates a documented
	// precondition other than emptiness (length, word count, file type).
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingFailure is returned when the embedding service errors,
	// times out, or returns vectors of the wrong shape.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrIndexFailure is returned when a vector store write fails.
	ErrIndexFailure = errors.New("index failure")

	// ErrRetrievalFailure is returned when a vector store query fails.
	ErrRetrievalFailure = errors.New("retrieval failure")

	// ErrGenerationFailure is returned when the language model errors,
	// times out, or returns nothing.
	ErrGenerationFailure = errors.New("generation failure")

	// ErrMalformedOutput is returned when model output is not parseable JSON.
	ErrMalformedOutput = errors.New("malformed output")

	// ErrSchemaViolation is returned when model output parses but does not
	// match the expected shape.
	ErrSchemaViolation = errors.New("schema violation")
)

// kinds lists every sentinel in the order KindOf checks them.
var kinds = []error{
	ErrEmptyInput,
	ErrInvalidInput,
	ErrEmbeddingFailure,
	ErrIndexFailure,
	ErrRetrievalFailure,
	ErrGenerationFailure,
	ErrMalformedOutput,
	ErrSchemaViolation,
}

// Error attaches a kind and the failing operation to an underlying cause.
// Both the kind and the cause are reachable through errors.Is / errors.As.
type Error struct {
	// Kind is one of the sentinel values declared in this file.
	Kind error

	// Op names the operation that failed (e.g. "qdrant upsert").
	Op string

	// Err is the underlying cause. May be nil.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err as kind. A nil err yields nil, and an error that is
// already of the requested kind is returned unchanged so a failure is never
// double-wrapped as it crosses layers.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kind-classified error from a format string.
func Errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the sentinel kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports whether err was caused by a collaborator (embedding
// service, vector store, language model) rather than by the request itself.
// Timeouts count as retryable.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrEmbeddingFailure),
		errors.Is(err, ErrIndexFailure),
		errors.Is(err, ErrRetrievalFailure),
		errors.Is(err, ErrGenerationFailure),
		errors.Is(err, ErrMalformedOutput),
		errors.Is(err, ErrSchemaViolation):
		return true
	default:
		return false
	}
}
