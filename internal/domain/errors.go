package domain

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError. The settlement saga keys its retry
// decision off these, so transient and terminal codes must stay disjoint.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_STATE_TRANSITION"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeCurrencyMismatch  = "CURRENCY_MISMATCH"
	CodeOddsChanged       = "ODDS_CHANGED"
	CodeMarketSuspended   = "MARKET_SUSPENDED"
	CodeUnknownReference  = "UNKNOWN_REFERENCE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeTimeout           = "TIMEOUT"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInvariant         = "INVARIANT_VIOLATION"
	CodeInternal          = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

// ErrInvalidTransition rejects an operation not allowed in the current state,
// e.g. voiding an already settled bet.
func ErrInvalidTransition(from, to string) *AppError {
	return &AppError{Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot transition from %s to %s", from, to), Status: 409}
}

func ErrInsufficientFunds(requested, available Money) *AppError {
	return &AppError{
		Code:    CodeInsufficientFunds,
		Message: fmt.Sprintf("insufficient funds: requested %s, available %s", requested, available),
		Status:  400,
	}
}

func ErrCurrencyMismatch(want, got string) *AppError {
	return &AppError{Code: CodeCurrencyMismatch, Message: fmt.Sprintf("currency mismatch: %s vs %s", want, got), Status: 400}
}

// ErrOddsChanged signals that the market moved below the caller's
// acceptable odds between quote and placement.
func ErrOddsChanged(selection string, acceptable, current string) *AppError {
	return &AppError{
		Code:    CodeOddsChanged,
		Message: fmt.Sprintf("odds for %s changed: acceptable minimum %s, current %s", selection, acceptable, current),
		Status:  409,
	}
}

func ErrMarketSuspended(marketID, reason string) *AppError {
	return &AppError{Code: CodeMarketSuspended, Message: fmt.Sprintf("market %s is suspended: %s", marketID, reason), Status: 409}
}

// ErrUnknownReference is returned when an idempotency reference has been
// evicted from the processed set; callers must not blindly retry.
func ErrUnknownReference(refID string) *AppError {
	return &AppError{Code: CodeUnknownReference, Message: fmt.Sprintf("reference %s is no longer tracked", refID), Status: 409}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

// ErrTimeout marks a deadline expiry on an in-flight operation. Retryable.
func ErrTimeout(op string) *AppError {
	return &AppError{Code: CodeTimeout, Message: fmt.Sprintf("%s deadline exceeded", op), Status: 504}
}

// ErrUnavailable marks a transient transport or activation failure. Retryable.
func ErrUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: msg, Status: 503, Cause: cause}
}

// ErrInvariant marks a broken internal invariant, e.g. ledger debits not
// matching credits. Never retried; an operator must intervene.
func ErrInvariant(msg string) *AppError {
	return &AppError{Code: CodeInvariant, Message: msg, Status: 500}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// Retryable reports whether an error is transient. Timeouts and
// unavailability retry; business failures and invariant violations do not.
// Errors of unknown shape come from transport or infrastructure and are
// treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == CodeTimeout || ae.Code == CodeUnavailable
	}
	return true
}

// CodeOf extracts the AppError code, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}
