// Package apperr classifies failures of queue and order operations so that
// callers can tell a rejected request from a failed collaborator.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the error category surfaced to callers
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPolicy
	KindNotFound
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPolicy:
		return "policy_violation"
	case KindNotFound:
		return "not_found"
	case KindExternal:
		return "external_failure"
	default:
		return "unknown"
	}
}

// Store-level sentinels returned by repositories
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("conditional write rejected")
)

// Error carries a kind, the operation that failed and a user-facing message
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed input; no state was changed
func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Policy reports a business-rule breach; no state was changed
func Policy(op, message string) error {
	return &Error{Kind: KindPolicy, Op: op, Message: message}
}

// NotFound reports a missing entry or order
func NotFound(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message, Err: ErrNotFound}
}

// External wraps a store or collaborator failure; the caller may retry
func External(op string, err error) error {
	return &Error{Kind: KindExternal, Op: op, Message: "temporarily unavailable, please retry", Err: err}
}

// KindOf returns the category of err
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindExternal
}

// Is reports whether err belongs to kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the text that is safe to show to a user
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "temporarily unavailable, please retry"
}
