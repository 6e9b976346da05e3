package errors

import (
	"fmt"
	"net/http"
)

// AppError is the error type every handler returns. The Fiber error handler
// in pkg/response translates it into the standard error envelope.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details any) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		HTTPStatus: e.HTTPStatus,
		Err:        e.Err,
	}
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		HTTPStatus: e.HTTPStatus,
		Err:        err,
	}
}

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid input",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Resource already exists",
		HTTPStatus: http.StatusConflict,
	}

	// ErrNoPosition is returned when a sell names a symbol the user does not
	// hold. A sell that raced a prior sell to zero quantity lands here too.
	ErrNoPosition = &AppError{
		Code:       "NO_POSITION",
		Message:    "You do not hold any shares of this symbol",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInsufficientShares = &AppError{
		Code:       "INSUFFICIENT_SHARES",
		Message:    "Insufficient shares to sell",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInsufficientFunds = &AppError{
		Code:       "INSUFFICIENT_FUNDS",
		Message:    "Insufficient balance for this transaction",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrTradeRejected = &AppError{
		Code:       "TRADE_REJECTED",
		Message:    "Trade could not be committed",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrPriceUnavailable = &AppError{
		Code:       "PRICE_UNAVAILABLE",
		Message:    "No market price available for symbol",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrSnapshotFailed = &AppError{
		Code:       "SNAPSHOT_FAILED",
		Message:    "Portfolio snapshot could not be created",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrRateLimited = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests, please try again later",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
