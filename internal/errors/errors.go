// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrCredentialsNotConfigured = errors.New("exchange credentials not configured")
	ErrCredentialsInactive      = errors.New("exchange credentials are inactive")
	ErrSessionUnavailable       = errors.New("exchange session unavailable")
	ErrOrderNotFound            = errors.New("order not found")
	ErrMandateNotFound          = errors.New("mandate not found")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrSchemeNotFound           = errors.New("scheme not found")
	ErrRegistrationNotFound     = errors.New("client registration not found")
	ErrDuplicatePayment         = errors.New("payment already initiated for this order")
	ErrNotSubmitted             = errors.New("order has not been submitted to the exchange")
	ErrInvalidOrderState        = errors.New("operation not allowed in current order state")
	ErrMandateNotApproved       = errors.New("mandate not found or not approved")
	ErrTimeout                  = errors.New("operation timed out")
	ErrDataNotFound             = errors.New("data not found")
)

// ExchangeError represents a non-success response code from the exchange.
type ExchangeError struct {
	Code    string
	Message string
	Err     error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exchange error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("exchange error [%s]: %s", e.Code, e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError creates a new ExchangeError.
func NewExchangeError(code, message string, err error) *ExchangeError {
	return &ExchangeError{Code: code, Message: message, Err: err}
}

// TransportError represents a network-level failure talking to the exchange.
type TransportError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s] %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError.
func NewTransportError(op, endpoint string, err error) *TransportError {
	return &TransportError{Op: op, Endpoint: endpoint, Err: err}
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s: %s: %v", e.OrderID, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s: %s", e.OrderID, e.Action, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, action, reason string, err error) *OrderError {
	return &OrderError{OrderID: orderID, Action: action, Reason: reason, Err: err}
}

// ValidationError represents a validation error rejected before any network call.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// CredentialError represents a missing or undecryptable credential set.
// Fatal for one advisor's operation, isolated from others in batch jobs.
type CredentialError struct {
	AdvisorID string
	Reason    string
	Err       error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential error [%s]: %s: %v", e.AdvisorID, e.Reason, e.Err)
	}
	return fmt.Sprintf("credential error [%s]: %s", e.AdvisorID, e.Reason)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// NewCredentialError creates a new CredentialError.
func NewCredentialError(advisorID, reason string, err error) *CredentialError {
	return &CredentialError{AdvisorID: advisorID, Reason: reason, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
