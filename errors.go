package mnemo

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions across the memory system.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrStoreUnavailable indicates the backing Redis store is unreachable.
	// Operations that return this error have already exhausted their bounded
	// retry budget.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates a memory entry or chat document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingFailed indicates the embedding provider returned an error.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrLLMFailed indicates the chat-completion provider returned an error.
	// Callers should surface this as "could not produce a response" rather
	// than retrying indefinitely.
	ErrLLMFailed = errors.New("llm request failed")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where an entry or document was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindUnavailable represents errors where the backing store is unreachable.
	KindUnavailable = "unavailable"

	// KindUpstream represents errors from upstream capabilities (embedding, LLM).
	KindUpstream = "upstream"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category
// of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &Error{
//		Op:   "SemanticStore.Update",
//		Kind: KindNotFound,
//		Err:  ErrNotFound,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "WorkingMemory.Search").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindUnavailable).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include entry ids, chat ids, or index names.
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mnemo: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("mnemo: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("mnemo: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on
// the underlying error or the Error itself.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context added.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}

// NewUnavailableError creates a new Error with KindUnavailable.
func NewUnavailableError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindUnavailable, Err: err}
}

// NewUpstreamError creates a new Error with KindUpstream.
func NewUpstreamError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindUpstream, Err: err}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}
