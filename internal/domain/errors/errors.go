package errors

import (
	"errors"
	"fmt"
)

var (
	// Amount errors
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrAmountTooLarge = errors.New("amount exceeds maximum supported value")

	// Reference errors
	ErrEmptyReference = errors.New("transaction reference is empty")

	// Gateway transport errors
	ErrGatewayTimeout     = errors.New("gateway request timed out")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// Gateway protocol errors
	ErrInvalidResponseFormat = errors.New("invalid response format from gateway")
	ErrMissingResponseFields = errors.New("gateway response missing required fields")
	ErrUnknownStatus         = errors.New("unknown transaction status")

	// Credential errors
	ErrInvalidCredentials = errors.New("invalid merchant credentials format")
	ErrSignatureFailure   = errors.New("failed to generate payment signature")

	// Business-rule failures. An amount mismatch is a potential fraud
	// signal: never retried, surfaced to the caller for alerting.
	ErrAmountMismatch         = errors.New("amount mismatch")
	ErrTransactionNotComplete = errors.New("transaction not complete")
	ErrPaymentRejected        = errors.New("invalid payment request")

	// Provider errors
	ErrUnknownProvider = errors.New("unknown payment provider")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Transient reports whether err is a transport failure that a caller may
// retry for initiation calls. Everything else (input validation,
// credentials, protocol drift, business-rule failures) is terminal, and
// verification is never retried blindly regardless.
func Transient(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayUnavailable)
}
