package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Document and reconciliation errors. MissingSection, InvalidNumericField
// and CatalogUnavailable are recoverable and only ever reported as warnings.
var (
	ErrMalformedDocument   = errors.New("malformed document")
	ErrMissingSection      = errors.New("missing section")
	ErrInvalidNumericField = errors.New("invalid numeric field")
	ErrCatalogUnavailable  = errors.New("catalog unavailable")
	ErrEmptyBill           = errors.New("empty bill")
	ErrIncompleteBill      = errors.New("incomplete bill")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// InvalidInputErrorf builds an ErrInvalidInput-wrapped error.
func InvalidInputErrorf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}
