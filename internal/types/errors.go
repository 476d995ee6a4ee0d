package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Load-time errors
	ErrConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// Ledger errors
	ErrInsufficientFunds     ErrorCode = "INSUFFICIENT_FUNDS"
	ErrInsufficientInventory ErrorCode = "INSUFFICIENT_INVENTORY"
	ErrNotFound              ErrorCode = "NOT_FOUND"

	// Trade errors
	ErrOwnership       ErrorCode = "OWNERSHIP_ERROR"
	ErrSelfTrade       ErrorCode = "SELF_TRADE"
	ErrAlreadyReserved ErrorCode = "ALREADY_RESERVED"
	ErrStaleTrade      ErrorCode = "STALE_TRADE"
	ErrInvalidState    ErrorCode = "INVALID_STATE"

	// System errors
	ErrConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	ErrInternal            ErrorCode = "INTERNAL_ERROR"
)

// EconomyError represents a typed economy-core error
type EconomyError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *EconomyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EconomyError) Unwrap() error {
	return e.Err
}

// NewError creates a new EconomyError
func NewError(code ErrorCode, message string) *EconomyError {
	return &EconomyError{
		Code:    code,
		Message: message,
	}
}

// NewErrorf creates a new EconomyError with a formatted message
func NewErrorf(code ErrorCode, format string, v ...interface{}) *EconomyError {
	return &EconomyError{
		Code:    code,
		Message: fmt.Sprintf(format, v...),
	}
}

// WrapError wraps an existing error in an EconomyError
func WrapError(code ErrorCode, message string, err error) *EconomyError {
	return &EconomyError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error is an EconomyError with a specific code
func IsCode(err error, code ErrorCode) bool {
	var econErr *EconomyError
	if err == nil {
		return false
	}
	if !errors.As(err, &econErr) {
		return false
	}
	return econErr.Code == code
}

// CodeOf returns the code of an EconomyError, or ErrInternal for anything else
func CodeOf(err error) ErrorCode {
	var econErr *EconomyError
	if errors.As(err, &econErr) {
		return econErr.Code
	}
	return ErrInternal
}
