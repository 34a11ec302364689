package errors

import "fmt"

// ErrorCode classifies a nostaro error.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // bad arguments or flags
	ErrNotConfigured  ErrorCode = "NOT_CONFIGURED"  // missing key or config
	ErrNotFound       ErrorCode = "NOT_FOUND"       // referenced event/profile missing
	ErrStorage        ErrorCode = "STORAGE"         // cache store failure
	ErrNetwork        ErrorCode = "NETWORK"         // relay or HTTP failure
	ErrDelivery       ErrorCode = "DELIVERY"        // webhook delivery failure
	ErrInternal       ErrorCode = "INTERNAL"
)

// NostaroError represents a structured error with a code and details.
type NostaroError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *NostaroError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates an error for invalid command input.
func NewInvalidRequest(msg string) *NostaroError {
	return &NostaroError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewNotConfigured creates an error for missing configuration.
func NewNotConfigured(msg string) *NostaroError {
	return &NostaroError{
		Code:    ErrNotConfigured,
		Message: msg,
	}
}

// NewNotFound creates an error for a missing referenced object.
func NewNotFound(identifier string) *NostaroError {
	return &NostaroError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewStorage wraps a cache store failure.
func NewStorage(err error) *NostaroError {
	msg := "storage error"
	if err != nil {
		msg = err.Error()
	}
	return &NostaroError{
		Code:    ErrStorage,
		Message: msg,
	}
}

// NewNetwork wraps a relay or HTTP failure.
func NewNetwork(err error) *NostaroError {
	msg := "network error"
	if err != nil {
		msg = err.Error()
	}
	return &NostaroError{
		Code:    ErrNetwork,
		Message: msg,
	}
}

// NewDelivery creates an error for a failed webhook delivery.
// A delivery failure is scoped to a single notification; callers in
// long-running loops log it and continue.
func NewDelivery(msg string) *NostaroError {
	return &NostaroError{
		Code:    ErrDelivery,
		Message: msg,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *NostaroError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &NostaroError{
		Code:    ErrInternal,
		Message: msg,
	}
}

// Is checks if an error is a NostaroError with the given code.
func Is(err error, code ErrorCode) bool {
	if nErr, ok := err.(*NostaroError); ok {
		return nErr.Code == code
	}
	return false
}
