/*
errors.go - Centralized error types for the approval engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (the HTTP layer in particular) classify errors with errors.Is
  and render the structured variants verbatim.

ERROR CATEGORIES:
  1. Lookup errors - Referenced application does not exist
  2. Business rule rejections - Invalid state, no budget, insufficient funds
  3. Serialization conflicts - Races detected at commit time

USAGE:
  var ife *engine.InsufficientFundsError
  if errors.As(err, &ife) {
      // render "remaining balance is <ife.Remaining>"
  }

SEE ALSO:
  - approval.go: Produces these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrApplicationNotFound is returned when a referenced application does
	// not exist. Surfaced to the caller, never retried.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrInvalidState is returned when a decision or resubmission targets an
	// application whose status does not allow it (e.g. approving an already
	// decided application). A second decision attempt fails loudly rather
	// than silently no-op.
	ErrInvalidState = errors.New("invalid application state")

	// ErrNoBudget is returned when no budget is configured for the decision
	// period. Remaining balance is undefined without one.
	ErrNoBudget = errors.New("no budget configured for period")

	// ErrInsufficientFunds is returned when the requested disbursement
	// exceeds the remaining balance for the period. A business rule
	// rejection, not a transient fault.
	ErrInsufficientFunds = errors.New("insufficient remaining budget")

	// ErrConflict is returned when a concurrent submission or approval race
	// is detected by the serialization mechanism.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrInvalidAmount is returned when a requested disbursement or budget
	// allocation is not a positive (resp. non-negative) amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports the exact remaining balance so the operator
// can adjust the requested amount. Remaining is decimal-exact.
type InsufficientFundsError struct {
	Period    Period
	Requested Amount
	Remaining Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient budget for %s: requested %s, remaining %s",
		e.Period, e.Requested, e.Remaining)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// InvalidStateError reports which status blocked the attempted action.
type InvalidStateError struct {
	ApplicationID ApplicationID
	Status        Status
	Attempted     string // "approve", "reject", "resubmit"
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s application %d: status is %s",
		e.Attempted, e.ApplicationID, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// ConflictError reports a check-and-insert or check-and-commit race.
type ConflictError struct {
	CitizenID     CitizenID
	ApplicationID ApplicationID
	Detail        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Detail)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is a business rule rejection or
// invalid input rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNoBudget) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing application.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrApplicationNotFound)
}
