package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error. Admin routes map it to an HTTP status;
// the LNURL endpoint surfaces Message as the protocol "reason".
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

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ---- LNURL protocol (LNURL) ----

func ErrMissingSecret() *AppError {
	return New("LNURL_001", "Missing secret", http.StatusBadRequest)
}

func ErrInvalidSecret() *AppError {
	return New("LNURL_002", "Invalid secret", http.StatusNotFound)
}

func ErrUsesExhausted() *AppError {
	return New("LNURL_003", "Maximum number of uses already reached", http.StatusConflict)
}

// LNURLValidation reports a malformed callback query.
func LNURLValidation(message string) *AppError {
	return New("LNURL_004", message, http.StatusBadRequest)
}

func ErrInvalidInvoice(err error) *AppError {
	return Wrap("LNURL_005", "Invalid payment request", http.StatusBadRequest, err)
}

func ErrInvoiceExpired() *AppError {
	return New("LNURL_006", "Invoice expired", http.StatusBadRequest)
}

func ErrAmountOutOfRange(minMsat, maxMsat int64) *AppError {
	return New("LNURL_007",
		fmt.Sprintf("Amount in invoice must be between %q and %q", fmt.Sprint(minMsat), fmt.Sprint(maxMsat)),
		http.StatusBadRequest)
}

func ErrUnsupportedFiat(currency string) *AppError {
	return New("LNURL_008", fmt.Sprintf("Unsupported fiat currency: %q", currency), http.StatusBadRequest)
}

// ---- Security & Authentication (SEC) ----

func ErrUnknownAPIKey() *AppError {
	return New("SEC_001", "Unknown API key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid API key signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("SEC_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Payment (PAY) ----

func ErrInsufficientFunds(balanceMsat, requiredMsat int64) *AppError {
	return New("PAY_001",
		fmt.Sprintf("Insufficient balance: %d msat available, %d msat required (incl. fee reserve)", balanceMsat, requiredMsat),
		http.StatusPaymentRequired)
}

func ErrInvoiceInFlight() *AppError {
	return New("PAY_002", "Invoice is already being paid", http.StatusConflict)
}

// ErrPaymentFailed carries the backend's failure reason verbatim.
func ErrPaymentFailed(reason string, err error) *AppError {
	return Wrap("PAY_003", reason, http.StatusBadGateway, err)
}

// ErrPaymentPending reports a payment whose outcome is unknown when the
// callback gives up waiting. Funds stay debited until it is reconciled.
func ErrPaymentPending() *AppError {
	return New("PAY_005", "Payment is still pending", http.StatusAccepted)
}

func ErrInvalidAmount() *AppError {
	return New("PAY_004", "Invalid amount", http.StatusBadRequest)
}

// ---- Devices & wallets (DEV) ----

func ErrDeviceNotFound() *AppError {
	return New("DEV_001", "Device configuration not found.", http.StatusNotFound)
}

func ErrWalletNotFound() *AppError {
	return New("DEV_002", "Wallet not found.", http.StatusNotFound)
}

// ---- Rates & Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ErrConversion reports a failed exchange-rate lookup.
func ErrConversion(currency, provider string, err error) *AppError {
	return Wrap("RATE_002",
		fmt.Sprintf("Failed to fetch BTC/%s currency pair from %q", currency, provider),
		http.StatusBadGateway, err)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error for admin routes.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
