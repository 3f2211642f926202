// Package errors defines the error taxonomy shared by the signature, session
// and settlement layers, and the mapping of each error onto an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryAuth represents authentication and signature errors
	CategoryAuth ErrorCategory = "auth"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategorySettlement represents settlement flow errors
	CategorySettlement ErrorCategory = "settlement"
	// CategoryProvider represents blockchain provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// Error codes surfaced in API responses. Clients match on these, so they are
// part of the contract.
const (
	CodeMalformedMessage      = "MALFORMED_MESSAGE"
	CodeMalformedSignature    = "MALFORMED_SIGNATURE"
	CodeSignatureMismatch     = "SIGNATURE_MISMATCH"
	CodeExpired               = "EXPIRED"
	CodeNotYetValid           = "NOT_YET_VALID"
	CodeUnsupportedChain      = "UNSUPPORTED_CHAIN"
	CodeVerifierUnavailable   = "VERIFIER_UNAVAILABLE"
	CodeNonceReplayed         = "NONCE_REPLAYED"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeMissingAuthHeader     = "MISSING_AUTH_HEADER"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeDuplicateEvent        = "DUPLICATE_EVENT"
	CodeNoActivePermission    = "NO_ACTIVE_PERMISSION"
	CodeAuthorizationDeclined = "AUTHORIZATION_DECLINED"
	CodeInsufficientCredit    = "INSUFFICIENT_CREDIT"
	CodeChargeFailed          = "CHARGE_FAILED"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeRateLimited           = "RATE_LIMIT_EXCEEDED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error is an error carrying a stable code and an HTTP status. Internal
// detail lives in Cause and is logged, never returned to clients.
type Error struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewInvalidInput creates a validation error for malformed request fields
func NewInvalidInput(message string) *Error {
	return &Error{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidInput,
		Message:    message,
	}
}

// NewMalformedMessage creates an error for an unparseable sign-in message
func NewMalformedMessage(cause error) *Error {
	return &Error{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeMalformedMessage,
		Message:    "sign-in message is malformed",
		Cause:      cause,
	}
}

// NewVerificationFailed creates an auth error from a signature verification
// reason code. VerifierUnavailable maps to 503 because it is an upstream
// outage, not a bad credential.
func NewVerificationFailed(code, message string) *Error {
	status := http.StatusUnauthorized
	if code == CodeVerifierUnavailable {
		status = http.StatusServiceUnavailable
	}
	return &Error{
		Category:   CategoryAuth,
		StatusCode: status,
		Code:       code,
		Message:    message,
	}
}

// NewInvalidToken creates an error for a missing, malformed or expired session token
func NewInvalidToken(message string) *Error {
	return &Error{
		Category:   CategoryAuth,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidToken,
		Message:    message,
	}
}

// NewMissingAuthHeader creates an error for a request without bearer credentials
func NewMissingAuthHeader() *Error {
	return &Error{
		Category:   CategoryAuth,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeMissingAuthHeader,
		Message:    "missing or malformed Authorization header",
	}
}

// NewNonceReplayed creates an error for a reused sign-in nonce
func NewNonceReplayed() *Error {
	return &Error{
		Category:   CategoryAuth,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeNonceReplayed,
		Message:    "sign-in nonce has already been used",
	}
}

// NewNotFound creates a not found error
func NewNotFound(code, resource string) *Error {
	return &Error{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       code,
		Message:    fmt.Sprintf("%s not found", resource),
	}
}

// Settlement failures are terminal outcomes recorded on the receipt, so they
// map to 200: the webhook is acknowledged and the provider stops redelivering.

// NewNoActivePermission creates a settlement error for a user without an
// active spend permission
func NewNoActivePermission() *Error {
	return &Error{
		Category:   CategorySettlement,
		StatusCode: http.StatusOK,
		Code:       CodeNoActivePermission,
		Message:    "no active spend permission",
	}
}

// NewAuthorizationDeclined creates a settlement error for an authorization
// the card provider declined
func NewAuthorizationDeclined() *Error {
	return &Error{
		Category:   CategorySettlement,
		StatusCode: http.StatusOK,
		Code:       CodeAuthorizationDeclined,
		Message:    "authorization declined by provider",
	}
}

// NewInsufficientCredit creates a settlement error for an authorization
// exceeding the remaining spendable amount
func NewInsufficientCredit(requested, remaining float64) *Error {
	return &Error{
		Category:   CategorySettlement,
		StatusCode: http.StatusOK,
		Code:       CodeInsufficientCredit,
		Message:    fmt.Sprintf("insufficient credit: %.2f requested, %.2f remaining", requested, remaining),
	}
}

// NewChargeFailed creates a settlement error for a failed on-chain spend call
func NewChargeFailed(cause error) *Error {
	return &Error{
		Category:   CategorySettlement,
		StatusCode: http.StatusOK,
		Code:       CodeChargeFailed,
		Message:    "charge execution failed",
		Cause:      cause,
	}
}

// NewInternal creates an internal server error. Message is what the client
// sees; cause carries the store or provider detail for logs.
func NewInternal(message string, cause error) *Error {
	return &Error{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// AsError extracts an *Error from err, or wraps err as an internal error.
// Handlers use this so no raw store error text ever reaches a client.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternal("an internal error occurred", err)
}

// StatusCode returns the HTTP status code for an error
func StatusCode(err error) int {
	if e := AsError(err); e != nil {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
