// Package engine defines the shared error taxonomy for the matching and
// deal lifecycle engine. Handlers map kinds to HTTP status codes;
// everything below the handlers speaks in these kinds.
package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	// KindValidation marks malformed or missing input, rejected before
	// the store is touched.
	KindValidation Kind = iota + 1
	// KindUnauthorized marks a caller that is not a participant in the
	// referenced match or profile.
	KindUnauthorized
	// KindNotFound marks an unknown match, profile, agent or webhook id.
	KindNotFound
	// KindConflict marks an illegal state transition or a duplicate
	// where uniqueness is required.
	KindConflict
)

// Error is an engine error with a kind and a descriptive message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Validation builds a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 for non-engine errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
