package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an AppError independently of its transport mapping.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindValidation        Kind = "VALIDATION"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindBusinessRule      Kind = "BUSINESS_RULE"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindLocked            Kind = "LOCKED"
	KindConflict          Kind = "CONFLICT"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindInternal          Kind = "INTERNAL"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string            `json:"error_code"`
	Message    string            `json:"message"`
	Kind       Kind              `json:"-"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Err        error             `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, kind Kind, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, kind Kind, message string, httpStatus int, err error) *AppError {
	e := New(code, kind, message, httpStatus)
	e.Err = err
	return e
}

// WithDetail returns e with an extra client-visible detail.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the Kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ---- Resources (RES) ----

func ErrNotFound(entity string) *AppError {
	return New("RES_001", KindNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Security (SEC) ----

func ErrForbidden() *AppError {
	return New("SEC_001", KindForbidden, "You do not have access to this resource", http.StatusForbidden)
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New("VAL_001", KindValidation, message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_002", KindValidation, "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrCurrencyMismatch(expected, got string) *AppError {
	return New("VAL_003", KindValidation, "Currency does not match account currency", http.StatusBadRequest).
		WithDetail("expected", expected).
		WithDetail("got", got)
}

// ---- Ledger Business Rules (LED) ----

func ErrInsufficientFunds(available, required string) *AppError {
	return New("LED_001", KindInsufficientFunds, "Insufficient funds", http.StatusPaymentRequired).
		WithDetail("available", available).
		WithDetail("required", required)
}

func ErrAccountNotActive() *AppError {
	return New("LED_002", KindBusinessRule, "Account is not active", http.StatusUnprocessableEntity)
}

// BusinessRule reports a violated ledger rule that is not a validation failure.
func BusinessRule(message string) *AppError {
	return New("LED_003", KindBusinessRule, message, http.StatusUnprocessableEntity)
}

func ErrDuplicateReference() *AppError {
	return New("LED_004", KindConflict, "Reference number already used", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", KindUnauthorized, "Invalid credentials", http.StatusUnauthorized)
}

func ErrAccountLocked(until time.Time) *AppError {
	return New("AUTH_002", KindLocked, "Account is locked due to repeated failed sign-ins", http.StatusLocked).
		WithDetail("locked_until", until.UTC().Format(time.RFC3339))
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", KindUnauthorized, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrEmailExists() *AppError {
	return New("AUTH_004", KindConflict, "Email already registered", http.StatusConflict)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", KindRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", KindInternal, "Internal server error", http.StatusInternalServerError, err)
}

// ErrConcurrentModification is returned when retries could not outrun a competing writer.
func ErrConcurrentModification(err error) *AppError {
	return Wrap("SYS_002", KindConflict, "Resource was modified concurrently, please retry", http.StatusConflict, err)
}
