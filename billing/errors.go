/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers wrap these with context; errors.Is / errors.As keep working.

ERROR CATEGORIES:
  1. Configuration errors - Charge definitions an operator must fix
  2. Classification errors - Payment records too ambiguous to map to a period
  3. Store errors - Lookups and ledger writes

NOT AN ERROR:
  A tenancy without a start date. Reconcile returns NotApplicable(charge)
  with a nil error; new applicants have no tenancy yet.

SEE ALSO:
  - reconcile.go: Returns InvalidChargeError
  - classify.go: Produces UnclassifiablePaymentError
  - store.go: Uses the not-found sentinels
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidChargeDefinition is returned when a charge has a non-positive
	// amount or an unrecognized cadence. Never repaired by the engine.
	ErrInvalidChargeDefinition = errors.New("invalid charge definition")

	// ErrUnclassifiablePayment marks a successful payment that cannot be
	// mapped to a period. It is surfaced for operators, never counted as paid.
	ErrUnclassifiablePayment = errors.New("unclassifiable payment record")

	// ErrChargeNotFound is returned when a referenced charge doesn't exist.
	ErrChargeNotFound = errors.New("charge not found")

	// ErrTenancyNotFound is returned when a referenced tenancy doesn't exist.
	ErrTenancyNotFound = errors.New("tenancy not found")

	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key was already recorded. Expected for gateway retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidPayment is returned when a payment record is malformed at
	// write time (unknown outcome, missing charge).
	ErrInvalidPayment = errors.New("invalid payment record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidChargeError names the offending charge field.
type InvalidChargeError struct {
	ChargeID ChargeID
	Field    string
	Reason   string
}

func (e *InvalidChargeError) Error() string {
	return fmt.Sprintf("invalid charge %q: %s %s", e.ChargeID, e.Field, e.Reason)
}

func (e *InvalidChargeError) Unwrap() error {
	return ErrInvalidChargeDefinition
}

// UnclassifiablePaymentError records which rule rejected a payment.
type UnclassifiablePaymentError struct {
	PaymentID PaymentID
	Rule      Rule
}

func (e *UnclassifiablePaymentError) Error() string {
	return fmt.Sprintf("payment %q unclassifiable: %s", e.PaymentID, e.Rule)
}

func (e *UnclassifiablePaymentError) Unwrap() error {
	return ErrUnclassifiablePayment
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigError returns true if an operator must correct upstream data.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidChargeDefinition)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidPayment)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChargeNotFound) ||
		errors.Is(err, ErrTenancyNotFound)
}
