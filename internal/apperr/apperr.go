// Package apperr formalizes the error taxonomy every component surfaces
// across a boundary: HTTP responses, tool results returned to the LLM, and
// CLI exit messages all key off Kind rather than doing string matching on
// wrapped errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable error category, not a Go type. Boundaries (HTTP,
// agent loop) switch on Kind to decide status codes and retry behavior.
type Kind string

const (
	KindParse         Kind = "ParseError"
	KindValidation    Kind = "ValidationError"
	KindNotFound      Kind = "DataNotFound"
	KindConflict      Kind = "ConflictError"
	KindStoreTransient Kind = "StoreTransientError"
	KindLLMTransient  Kind = "LLMTransientError"
	KindLLMUnavailable Kind = "LLMUnavailable"
	KindConfiguration Kind = "ConfigurationError"
	KindInternal      Kind = "InternalError"
)

// Error is the structured error every boundary understands.
type Error struct {
	Kind          Kind
	Message       string
	Details       map[string]any
	CorrelationID string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver
// for chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCorrelationID attaches a correlation id for the HTTP/agent boundary.
func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors
// that were never classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Retryable reports whether the taxonomy says this kind should be retried
// by its owning component (Store errors by the orchestrator, LLM errors by
// the agent controller) rather than surfaced immediately.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStoreTransient, KindLLMTransient:
		return true
	default:
		return false
	}
}
