package loyalty

import (
	"errors"
	"fmt"
)

// Sentinel errors. Each failure kind callers branch on has one sentinel;
// match with errors.Is or the Is* helpers.
var (
	// Request errors
	ErrInvalidParameter   = errors.New("loyalty: invalid parameter")
	ErrDuplicateSignature = errors.New("loyalty: duplicate transaction signature")
	ErrUnauthorized       = errors.New("loyalty: unauthorized")

	// Registry errors
	ErrAlreadyRegistered = errors.New("loyalty: owner already registered a business")
	ErrBusinessNotFound  = errors.New("loyalty: business not found")
	ErrBusinessInactive  = errors.New("loyalty: business is inactive")

	// Ledger errors
	ErrInsufficientBalance = errors.New("loyalty: insufficient token balance")
	ErrArithmeticOverflow  = errors.New("loyalty: arithmetic overflow")
	ErrBalanceNotFound     = errors.New("loyalty: balance not found")

	// Transaction log errors
	ErrTransactionNotFound = errors.New("loyalty: transaction not found")

	// Concurrency errors
	ErrConcurrentModification = errors.New("loyalty: concurrent modification")
	ErrLockTimeout            = errors.New("loyalty: lock acquisition timed out")

	// Store errors
	ErrStoreNotReady = errors.New("loyalty: store not ready")
	ErrStoreClosed   = errors.New("loyalty: store is closed")
)

// ValidationError describes one rejected request field. It matches
// ErrInvalidParameter under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("loyalty: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap ties every validation failure to the InvalidParameter kind.
func (e ValidationError) Unwrap() error { return ErrInvalidParameter }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "loyalty: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("loyalty: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrorOrNil returns e if it holds any error, otherwise nil.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsInvalidParameter reports whether err is a malformed or out-of-range
// request.
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrDuplicateSignature)
}

// IsUnauthorized reports whether the caller does not control the target.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether err means the addressed entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBusinessNotFound) ||
		errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsRetryable reports whether the request failed on a transient condition
// and may be resubmitted unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrStoreNotReady)
}
