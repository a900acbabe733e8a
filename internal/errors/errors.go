// Package errors defines the error taxonomy shared by every component of
// the bridge. All failures that cross a component boundary are one of the
// four kinds below; raw transport errors never leave the backend client.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind tags an error with its place in the taxonomy.
type Kind string

const (
	// KindValidation covers malformed or out-of-range tool arguments.
	// Detected before any backend call, never retried.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindAuth covers rejected credentials or a session that could not be
	// recovered after one re-authentication attempt. Fatal for the call,
	// not for the process.
	KindAuth Kind = "AUTH_ERROR"
	// KindBackend covers network, timeout, and unexpected-response failures
	// from Timesketch.
	KindBackend Kind = "BACKEND_ERROR"
	// KindUnknownTool covers calls referencing a tool not in the registry.
	KindUnknownTool Kind = "UNKNOWN_TOOL"
)

// AppError is the one error type that crosses component boundaries.
type AppError struct {
	Kind      Kind
	Message   string
	Cause     error
	Retryable bool
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError of the given kind. Retryable defaults to false;
// use NewRetryable for transient backend faults.
func New(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// NewRetryable creates a transient BackendError the caller may resubmit.
func NewRetryable(message string, cause error) *AppError {
	return &AppError{Kind: KindBackend, Message: message, Cause: cause, Retryable: true}
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the taxonomy kind of err. Errors that did not originate
// from this package count as backend faults: they can only have come from
// the one component that talks to the outside world.
func KindOf(err error) Kind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return KindBackend
}
