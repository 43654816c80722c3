// Package apperr defines the error taxonomy surfaced to API callers:
// NotFound, Conflict, and InvalidState. Each error carries an
// HTTP-status-like code and a message; nothing is retried internally.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	// KindNotFound means the referenced user, room, or group does not exist.
	KindNotFound Kind = iota
	// KindConflict means a duplicate membership or conflicting pointer state.
	KindConflict
	// KindInvalidState means the operation is not legal in the entity's
	// current status (joining a full room, voting on a confirmed group,
	// promoting below the member minimum).
	KindInvalidState
)

// Error is a typed application failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Code returns the HTTP-status-like code for the error kind.
func (e *Error) Code() int {
	switch e.Kind {
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindInvalidState:
		return 422
	default:
		return 500
	}
}

// Is lets errors.Is match on kind via the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrInvalidState = &Error{Kind: KindInvalidState}
)

// NotFound builds a NotFound error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a Conflict error.
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidState builds an InvalidState error.
func InvalidState(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the HTTP-status-like code for err, or 500 for errors
// outside the taxonomy.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return 500
}
