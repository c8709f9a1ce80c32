// Package errors provides standardized error types for the domain layer.
// Every failure the settlement engine and poller can hit maps onto one of the
// sentinel categories below, so callers can decide between declining an offer,
// retrying on the next tick, alerting the operator, or halting the process.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrValidation indicates a structurally invalid trade offer.
	ErrValidation = errors.New("offer validation failed")

	// ErrInsufficientBalance indicates the customer balance does not cover a withdrawal.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientLiquidity indicates the hot wallet cannot cover a payout.
	ErrInsufficientLiquidity = errors.New("insufficient wallet liquidity")

	// ErrInsufficientCapacity indicates the inventory cannot absorb incoming items.
	ErrInsufficientCapacity = errors.New("insufficient inventory capacity")

	// ErrInvalidDestination indicates the wallet rejected the payout address
	// after the items were already taken. Not automatically recoverable.
	ErrInvalidDestination = errors.New("invalid transfer destination")

	// ErrDataIntegrity indicates an expected row or cursor position is missing.
	// Fatal: continuing risks double-crediting or losing funds.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrTransport indicates an RPC or network failure. Retried on the next tick.
	ErrTransport = errors.New("transport failure")

	// ErrPriceUnavailable indicates the exchange rate has not been fetched yet.
	ErrPriceUnavailable = errors.New("exchange rate not available")

	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists.
	ErrAlreadyExists = errors.New("resource already exists")
)

// DomainError carries an error category plus the operator- and user-facing
// context around it.
type DomainError struct {
	Err         error
	Code        string
	Message     string
	UserMessage string
	Retryable   bool
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying category error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target category.
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// UserText returns the text safe to surface to the counterparty. Falls back
// to a generic notice for categories that must not leak operational detail.
func (e *DomainError) UserText() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return "Your offer could not be processed, please try again later."
}

// ValidationError creates a declined-offer error with the specific reason the
// counterparty should see.
func ValidationError(code, userMessage string) *DomainError {
	return &DomainError{
		Err:         ErrValidation,
		Code:        code,
		Message:     fmt.Sprintf("offer declined: %s", code),
		UserMessage: userMessage,
	}
}

// InsufficientBalanceError creates a decline for an underfunded withdrawal.
func InsufficientBalanceError(userMessage string) *DomainError {
	return &DomainError{
		Err:         ErrInsufficientBalance,
		Code:        "INSUFFICIENT_BALANCE",
		Message:     "customer balance does not cover withdrawal",
		UserMessage: userMessage,
	}
}

// LiquidityError creates an operationally-constrained decline: detailed
// message for the operator log, generic message for the user.
func LiquidityError(message, userMessage string) *DomainError {
	return &DomainError{
		Err:         ErrInsufficientLiquidity,
		Code:        "INSUFFICIENT_LIQUIDITY",
		Message:     message,
		UserMessage: userMessage,
		Retryable:   true,
	}
}

// CapacityError creates an operationally-constrained decline for a full inventory.
func CapacityError(message, userMessage string) *DomainError {
	return &DomainError{
		Err:         ErrInsufficientCapacity,
		Code:        "INSUFFICIENT_CAPACITY",
		Message:     message,
		UserMessage: userMessage,
		Retryable:   true,
	}
}

// TransportError wraps an RPC/network failure.
func TransportError(system string, cause error) *DomainError {
	return &DomainError{
		Err:       ErrTransport,
		Code:      "TRANSPORT_ERROR",
		Message:   fmt.Sprintf("%s unreachable: %v", system, cause),
		Retryable: true,
	}
}

// DataIntegrityError wraps a fatal bookkeeping inconsistency.
func DataIntegrityError(message string) *DomainError {
	return &DomainError{
		Err:     ErrDataIntegrity,
		Code:    "DATA_INTEGRITY",
		Message: message,
	}
}

// IsValidation checks if an error is a validation decline.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport checks if an error is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsDataIntegrity checks if an error is a fatal integrity violation.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
