// Package domainerrors provides coded errors that cross layer boundaries.
//
// Services return *Error values so handlers can map them to transport status
// codes without string matching. Stores should return sentinel errors from
// pkg/platform/sentinel instead; services translate those into codes here.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies an error for callers. Codes are stable wire values.
type Code string

const (
	CodeValidation             Code = "validation_error"
	CodeInvalidInput           Code = "invalid_input"
	CodeBadRequest             Code = "bad_request"
	CodeUnauthorized           Code = "unauthorized"
	CodeForbidden              Code = "forbidden"
	CodeNotFound               Code = "not_found"
	CodeInvalidStateTransition Code = "invalid_state_transition"
	CodeExpired                Code = "expired"
	CodeHomeAlreadyClaimed     Code = "home_already_claimed"
	CodeDuplicateInvitation    Code = "duplicate_invitation"
	CodeEmailMismatch          Code = "email_mismatch"
	CodeStorageConflict        Code = "storage_conflict"
	CodeConflict               Code = "conflict"
	CodeInvariantViolation     Code = "invariant_violation"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap returns a coded error that keeps err reachable through errors.Is/As.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRecoverable reports whether the caller can act on err (fix input, retry
// once, pick another entity). Internal and timeout errors are not.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case CodeInternal, CodeTimeout:
		return false
	default:
		return true
	}
}

// ToHTTPStatus maps a code to the status the request layer should return.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeEmailMismatch:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidStateTransition, CodeHomeAlreadyClaimed, CodeDuplicateInvitation,
		CodeStorageConflict, CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
