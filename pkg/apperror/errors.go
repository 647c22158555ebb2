package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
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
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

// Validation returns a generic validation error with a caller-supplied message.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_001", "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidExpiryFormat() *AppError {
	return New("VAL_002", "Invalid expiry format. Use: 1H, 2D, 3M, 4Y", http.StatusBadRequest)
}

// ---- Wallet & Ledger (WAL) ----

func ErrInsufficientFunds() *AppError {
	return New("WAL_001", "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrNotFound(entity string) *AppError {
	return New("WAL_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrSelfTransfer() *AppError {
	return New("WAL_003", "Cannot transfer to your own wallet", http.StatusBadRequest)
}

// ---- API Keys (KEY) ----

func ErrKeyLimitExceeded(max int) *AppError {
	return New("KEY_001", fmt.Sprintf("Maximum of %d active API keys allowed", max), http.StatusBadRequest)
}

func ErrKeyNotExpired() *AppError {
	return New("KEY_002", "Key must be expired to rollover", http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrAuthenticationRequired() *AppError {
	return New("AUTH_001", "Authentication required", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidAPIKey() *AppError {
	return New("AUTH_003", "Invalid API key", http.StatusUnauthorized)
}

func ErrMissingPermission(permission string) *AppError {
	return New("AUTH_004", fmt.Sprintf("API key does not have %s permission", permission), http.StatusForbidden)
}

func ErrInvalidWebhookSignature() *AppError {
	return New("AUTH_005", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Payment Reconciliation (PAY) ----

// ErrAmountMismatch marks a webhook whose amount disagrees with the recorded
// transaction. Treated as a tamper signal, never silently corrected.
func ErrAmountMismatch() *AppError {
	return New("PAY_001", "Webhook amount does not match recorded transaction", http.StatusBadRequest)
}

func ErrDepositBelowMinimum(min string) *AppError {
	return New("PAY_002", fmt.Sprintf("Minimum deposit amount is %s", min), http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- External Services & System (GW/SYS) ----

// ErrGatewayFailure wraps a payment gateway error. The in-flight transaction
// is marked failed before this surfaces, so ledger state stays consistent.
func ErrGatewayFailure(err error) *AppError {
	return Wrap("GW_001", "Payment gateway request failed", http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
