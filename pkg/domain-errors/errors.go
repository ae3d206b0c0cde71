// Package domainerrors provides coded domain errors.
//
// Services wrap store and infrastructure failures into coded errors so
// transports can translate them uniformly and callers can branch on HasCode
// without string matching. Infrastructure facts (not found, expired) live in
// pkg/platform/sentinel; this package is for decisions the domain makes about
// those facts.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation covers bad input that violates a domain rule
	// (depth limits, type rules, malformed metadata).
	CodeValidation Code = "validation"
	// CodeBadRequest covers malformed transport-level requests.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput covers values rejected at a trust boundary parse.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound covers lookups for ids that do not exist.
	CodeNotFound Code = "not_found"
	// CodeForbidden covers ownership and capability denials.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorized covers missing or invalid caller credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeGovernance covers missing DAO or parental approval.
	CodeGovernance Code = "governance"
	// CodeConflict covers concurrent operations racing for the same
	// resource, including a switch already in flight.
	CodeConflict Code = "conflict"
	// CodeTimeout covers deadline expiry on bounded calls.
	CodeTimeout Code = "timeout"
	// CodeUnavailable covers persistent-tier and downstream I/O failures.
	CodeUnavailable Code = "unavailable"
	// CodeInternal covers unexpected failures with no better classification.
	CodeInternal Code = "internal"
	// CodeInvariantViolation flags a broken internal invariant; these are
	// bugs, not caller mistakes.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is delegates to errors.Is; re-exported so call sites importing this package
// do not also need the stdlib errors import.
func Is(err, target error) bool { return errors.Is(err, target) }
