// Package derrors provides coded domain errors. Services return these so
// transports can map conditions to responses without string matching.
//
// For infrastructure facts (row missing, wrong state in store), stores return
// pkg/platform/sentinel errors and services translate them here.
package derrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error condition.
type Code string

const (
	// CodeInvalidInput covers malformed or out-of-range caller input.
	CodeInvalidInput Code = "invalid_input"
	// CodeInvalidTemplate marks a template that failed activation validation.
	// Fatal: scoring against such a template is refused outright.
	CodeInvalidTemplate Code = "invalid_template"
	// CodeNotFound means the referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict means the operation conflicts with current state
	// (e.g. approving an audit with open CAPAs).
	CodeConflict Code = "conflict"
	// CodeInvalidState means the entity is in the wrong lifecycle state for
	// the requested transition.
	CodeInvalidState Code = "invalid_state"
	// CodeIncomplete marks a user-correctable incomplete submission.
	CodeIncomplete Code = "incomplete"
	// CodeUnauthorized means the caller presented no valid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden means the caller is authenticated but lacks the role.
	CodeForbidden Code = "forbidden"
	// CodeInternal covers unexpected infrastructure failure.
	CodeInternal Code = "internal"
	// CodeUnavailable means a dependency is temporarily unreachable.
	CodeUnavailable Code = "unavailable"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil if err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal if the
// error carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message in the chain, or the plain
// error text when no code is present.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
