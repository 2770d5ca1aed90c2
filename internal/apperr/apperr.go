// Package apperr implements the domain error taxonomy: a typed code
// plus message, distinct from transport-level HTTP status.
package apperr

import (
	"fmt"
	"net/http"
)

// Code classifies a domain error for callers that need to branch on it
// (retry, surface to the caller, clamp-and-log) without string matching.
type Code string

const (
	NotFound           Code = "NOT_FOUND"
	StateInvalid       Code = "STATE_INVALID"
	ConflictRetryable  Code = "CONFLICT_RETRYABLE"
	ConflictExhausted  Code = "CONFLICT_EXHAUSTED"
	InvariantViolation Code = "INVARIANT_VIOLATION"
	Transient          Code = "TRANSIENT"
)

// AppError is the error type returned across package boundaries in this
// service. A losing roll or an unaffordable voucher is a LOSS outcome,
// not an error. A store failure while resolving a user, locking a
// voucher or recording an outcome in the batch processor's main loop
// aborts the whole batch with an AppError; only users written off by
// the all-LOSS and remainder paths have such failures swallowed.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err is an AppError of the given code.
func Is(err error, code Code) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Code == code
}

// HTTPStatus maps a domain code to the HTTP status the admin surface
// and batch-processor mirror endpoint should respond with.
func HTTPStatus(code Code) int {
	switch code {
	case NotFound:
		return http.StatusNotFound
	case StateInvalid:
		return http.StatusBadRequest
	case ConflictRetryable:
		return http.StatusConflict
	case ConflictExhausted:
		return http.StatusConflict
	case InvariantViolation:
		return http.StatusInternalServerError
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
