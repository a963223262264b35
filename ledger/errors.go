/*
errors.go - Error taxonomy for the order ledger

PURPOSE:
  All ledger error categories in one place. Action-level errors are
  validation failures detected before any event is produced: they cause
  zero durable side effects. Storage errors are a distinct category so
  callers know to retry the whole command rather than assume partial
  success.

ERROR CATEGORIES:
  1. Not-found errors     - unknown order
  2. Validation errors    - status gates, bad amounts, invalid operations
  3. Storage errors       - transactional store failures (retryable)

SEE ALSO:
  - actions.go: produces validation errors
  - manager.go: wraps store failures in StorageError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOrderNotFound is returned when a command targets an unknown order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderAlreadyCompleted is returned when a mutation targets a
	// completed order.
	ErrOrderAlreadyCompleted = errors.New("order already completed")

	// ErrOrderAlreadyVoided is returned when a mutation targets a voided order.
	ErrOrderAlreadyVoided = errors.New("order already voided")

	// ErrInvalidAmount is returned for non-positive payment amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidOperation is the base of InvalidOperationError.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrStorage is the base of StorageError.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidOperationError carries the reason a command was rejected.
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Reason)
}

func (e *InvalidOperationError) Unwrap() error { return ErrInvalidOperation }

// invalidOp is shorthand used by the actions.
func invalidOp(format string, args ...any) error {
	return &InvalidOperationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failure of the underlying transactional store.
// The command had no durable effect; the caller may retry it whole.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// statusGate maps a terminal status to its rejection error.
func statusGate(status OrderStatus) error {
	switch status {
	case StatusCompleted:
		return ErrOrderAlreadyCompleted
	case StatusVoid:
		return ErrOrderAlreadyVoided
	case StatusMoved:
		return invalidOp("order was moved")
	case StatusMerged:
		return invalidOp("order was merged")
	}
	return nil
}

// IsClientError reports whether the error is a validation failure caused
// by the submitted command, as opposed to a server-side fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrOrderAlreadyCompleted) ||
		errors.Is(err, ErrOrderAlreadyVoided) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidOperation)
}

// IsNotFound reports whether the error indicates a missing order.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsStorageError reports whether the whole command should be retried.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}
