package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the engine.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation_error"
	KindProvider      ErrorKind = "provider_error"
	KindTimeout       ErrorKind = "timeout"
	KindConfiguration ErrorKind = "configuration"
)

// Error is the envelope every engine failure is normalized into.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	return e.Kind != KindConfiguration
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// Classify maps an arbitrary error onto the taxonomy. Errors that already
// carry a kind keep it; deadline errors become timeouts; everything else is
// treated as a provider failure.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindProvider
}

// Normalize wraps err in an *Error unless it already is one.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(Classify(err), err.Error(), err)
}
