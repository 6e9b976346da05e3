package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      ErrNoPosition,
			expected: "NO_POSITION: You do not hold any shares of this symbol",
		},
		{
			name:     "with wrapped error",
			err:      ErrInternal.WithError(errors.New("db connection failed")),
			expected: "INTERNAL_ERROR: An unexpected error occurred (db connection failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	appErr := ErrTradeRejected.WithError(innerErr)

	if appErr.Unwrap() != innerErr {
		t.Errorf("AppError.Unwrap() did not return the wrapped error")
	}

	if ErrUnauthorized.Unwrap() != nil {
		t.Errorf("AppError.Unwrap() should return nil when no error is wrapped")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	details := map[string]string{"field": "symbol", "reason": "required"}
	appErr := ErrValidation.WithDetails(details)

	if appErr.Details == nil {
		t.Errorf("WithDetails should set Details")
	}

	if appErr.Code != ErrValidation.Code {
		t.Errorf("WithDetails should preserve Code")
	}

	if appErr.HTTPStatus != ErrValidation.HTTPStatus {
		t.Errorf("WithDetails should preserve HTTPStatus")
	}
}

func TestAppError_WithError(t *testing.T) {
	innerErr := errors.New("ledger append failed")
	appErr := ErrTradeRejected.WithError(innerErr)

	if appErr.Err != innerErr {
		t.Errorf("WithError should set Err")
	}

	if appErr.Code != ErrTradeRejected.Code {
		t.Errorf("WithError should preserve Code")
	}
}

func TestDomainErrorStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{ErrNoPosition, http.StatusBadRequest},
		{ErrInsufficientShares, http.StatusBadRequest},
		{ErrInsufficientFunds, http.StatusBadRequest},
		{ErrTradeRejected, http.StatusUnprocessableEntity},
		{ErrPriceUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		if tt.err.HTTPStatus != tt.status {
			t.Errorf("%s HTTPStatus = %d, want %d", tt.err.Code, tt.err.HTTPStatus, tt.status)
		}
	}
}

func TestErrorsAs(t *testing.T) {
	wrapped := ErrNoPosition.WithDetails("ABC")

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As should match *AppError")
	}
	if appErr.Code != "NO_POSITION" {
		t.Errorf("Code = %v, want NO_POSITION", appErr.Code)
	}
}
