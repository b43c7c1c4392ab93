// Package domainerrors provides coded errors shared by services and transports.
//
// Services return *Error values carrying a Code; transports translate codes into
// wire responses. Stores should return sentinel errors (pkg/platform/sentinel)
// and let services wrap them with a code.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for translation at the transport boundary.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
)

// Admission failure kinds. Each one is terminal for the request.
const (
	CodeMissingCredential      Code = "missing_credential"
	CodeMalformedCredential    Code = "malformed_credential"
	CodeAmbiguousCredential    Code = "ambiguous_credential"
	CodeInvalidCredential      Code = "invalid_credential"
	CodeCredentialExpired      Code = "credential_expired"
	CodeCredentialRevoked      Code = "credential_revoked"
	CodeTenantNotFound         Code = "tenant_not_found"
	CodeTenantSuspended        Code = "tenant_suspended"
	CodeRateLimitExceeded      Code = "rate_limit_exceeded"
	CodeAuthServiceUnavailable Code = "auth_service_unavailable"
	CodeRateLimiterUnavailable Code = "rate_limiter_unavailable"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err. A nil err yields a plain coded error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when none is present.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in err's chain has the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is reports whether err is a coded error with code.
// Unlike HasCode it walks the whole chain, so wrapped causes match too.
func Is(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}
