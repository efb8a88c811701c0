package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a referenced alert or record was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates a malformed command or invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInvalidTransition indicates a lifecycle transition that is
	// illegal from the alert's current status.
	ErrCodeInvalidTransition ErrorCode = "invalid_transition"
	// ErrCodeStorage indicates the persistence layer was unreachable or
	// rejected an operation for infrastructure reasons.
	ErrCodeStorage ErrorCode = "storage"
	// ErrCodeDelivery indicates a publish to a specific session failed.
	ErrCodeDelivery ErrorCode = "delivery"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message,
// and optional cause. It supports error wrapping and unwrapping for use
// with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidTransition creates a new InvalidTransition error.
func InvalidTransition(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTransition,
		Message: message,
	}
}

// InvalidTransitionf creates a new InvalidTransition error with formatted message.
func InvalidTransitionf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf(format, args...),
	}
}

// Storage creates a new Storage error.
func Storage(message string) *AppError {
	return &AppError{
		Code:    ErrCodeStorage,
		Message: message,
	}
}

// Delivery creates a new Delivery error.
func Delivery(message string) *AppError {
	return &AppError{
		Code:    ErrCodeDelivery,
		Message: message,
	}
}

// Deliveryf creates a new Delivery error with formatted message.
func Deliveryf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeDelivery,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInvalidTransition checks if an error is an InvalidTransition error.
func IsInvalidTransition(err error) bool {
	return isCode(err, ErrCodeInvalidTransition)
}

// IsStorage checks if an error is a Storage error.
func IsStorage(err error) bool {
	return isCode(err, ErrCodeStorage)
}

// IsDelivery checks if an error is a Delivery error.
func IsDelivery(err error) bool {
	return isCode(err, ErrCodeDelivery)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
