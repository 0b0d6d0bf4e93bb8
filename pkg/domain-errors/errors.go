// Package domainerrors provides code-carrying errors for the compliance
// engine. Services translate store sentinels and validation failures into
// these so transports can map them to status codes without string matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain error. Codes are part of the API
// contract: handlers translate them to HTTP statuses and clients branch on
// them, so new codes require a review of every consumer.
type Code string

const (
	// Generic codes shared by all modules.
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeInternal     Code = "internal"
	CodeTimeout      Code = "timeout"

	// Compliance-specific codes. Each corresponds to one precondition the
	// policy engine checks before applying a state transition.
	CodeAlreadyExists            Code = "already_exists"
	CodeUnsupportedJurisdiction  Code = "unsupported_jurisdiction"
	CodeInvalidSignature         Code = "invalid_signature"
	CodeProviderInactive         Code = "provider_inactive"
	CodeExpired                  Code = "expired"
	CodeBlacklisted              Code = "blacklisted"
	CodeInsufficientReserve      Code = "insufficient_reserve"
	CodeTransactionLimitExceeded Code = "transaction_limit_exceeded"
	CodeBelowMinimumRedemption   Code = "below_minimum_redemption"
	CodeInvalidTransition        Code = "invalid_transition"
	CodeAccountFrozen            Code = "account_frozen"
	CodeInsufficientFunds        Code = "insufficient_funds"
)

// Error is a domain error with a stable code and a human-readable message.
// It may wrap an underlying cause for logging; the cause is never exposed to
// clients.
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

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. Use at layer
// boundaries where an infrastructure failure becomes a domain outcome.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability in tests.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// GetCode extracts the code from err, defaulting to CodeInternal for
// non-domain errors so unexpected failures never leak detail to clients.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest, CodeInvalidTransition, CodeBelowMinimumRedemption, CodeTransactionLimitExceeded:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidSignature:
		return http.StatusUnauthorized
	case CodeForbidden, CodeBlacklisted, CodeAccountFrozen, CodeProviderInactive, CodeUnsupportedJurisdiction:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyExists:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeInsufficientReserve, CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
