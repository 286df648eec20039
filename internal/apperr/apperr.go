// Package apperr defines the structured error kinds used across the service
// so handlers and workers can map failures to HTTP statuses and retry
// classes without string-matching error text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of HTTP status mapping and retry
// policy.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindAuthRequired Kind = "auth_required"
	KindAuthFailed   Kind = "auth_failed"
	KindRateLimited  Kind = "rate_limited"
	KindUpstream     Kind = "upstream"
	KindTransient    Kind = "transient"
	KindPermanent    Kind = "permanent"
)

// Error wraps an underlying cause with a Kind and an operator-facing
// message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf unwraps err looking for an *Error and returns its Kind, or "" if
// none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}
