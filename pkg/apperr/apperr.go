// Package apperr defines the error taxonomy shared by the service layer:
// NotFound, BadRequest, Conflict and Unexpected. Handlers map kinds to HTTP
// statuses via pkg/response.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindBadRequest
	KindConflict
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns a NotFound error with the given message.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// BadRequest returns a BadRequest error with the given message.
func BadRequest(msg string) error { return &Error{Kind: KindBadRequest, Message: msg} }

// Conflict returns a Conflict error with the given message.
func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// Unexpected wraps an internal failure with a caller-facing message.
func Unexpected(msg string, err error) error {
	return &Error{Kind: KindUnexpected, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnexpected for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsBadRequest reports whether err is a BadRequest error.
func IsBadRequest(err error) bool { return KindOf(err) == KindBadRequest }

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
