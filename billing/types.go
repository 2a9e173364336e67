/*
Package billing provides the recurring-charge reconciliation engine.

PURPOSE:
  Given a tenancy start date, a recurring charge (amount + cadence) and a
  ledger of payment attempts, the engine decides which billing periods are
  satisfied, which are outstanding, and whether the tenant is up to date.
  The dashboard uses the verdict to choose between "Pay Now" and "Paid" and
  to compute arrears.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity (decimal, single currency)
  - ChargeDefinition: A recurring charge configured for a building
  - PaymentRecord: One observed attempt to pay one period
  - Cadence / Outcome: Closed enumerations used across the engine

DESIGN PRINCIPLES:
  1. Stateless: Every reconciliation is a pure function of its inputs
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Conservative: Ambiguous payment metadata never counts as paid
  4. Auditable: Legacy-schema handling is an ordered rule table (classify.go)

USAGE:
  charge := billing.ChargeDefinition{
      ID:      "rent-a",
      Name:    "Room rent",
      Amount:  billing.MustParseAmount("450.00"),
      Cadence: billing.CadenceMonthly,
  }
  status, err := billing.Reconcile(charge, &anchor, payments, billing.Today())

SEE ALSO:
  - period.go: Period generation
  - classify.go: Payment classification rules
  - reconcile.go: The aggregator
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money in the building's single currency
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount   { return Amount{Value: decimal.NewFromFloat(value)} }
func NewAmountFromInt(value int) Amount { return Amount{Value: decimal.NewFromInt(int64(value))} }

// ParseAmount parses a decimal string such as "450.00".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount      { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Times(n int) Amount       { return Amount{Value: a.Value.Mul(decimal.NewFromInt(int64(n)))} }
func (a Amount) IsZero() bool             { return a.Value.IsZero() }
func (a Amount) IsPositive() bool         { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool      { return a.Value.Equal(b.Value) }
func (a Amount) String() string           { return a.Value.StringFixed(2) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ChargeID string
type BuildingID string
type TenantID string
type TenancyID string
type PaymentID string

// =============================================================================
// CADENCE - Billing frequency
// =============================================================================

type Cadence string

const (
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

func (c Cadence) Valid() bool {
	return c == CadenceMonthly || c == CadenceYearly
}

// Other returns the opposite cadence. Used by cadence policies when payment
// history disagrees with the configured cadence.
func (c Cadence) Other() Cadence {
	if c == CadenceMonthly {
		return CadenceYearly
	}
	return CadenceMonthly
}

// =============================================================================
// CHARGE DEFINITION - A recurring obligation owned by a building
// =============================================================================

// ChargeDefinition is immutable for the duration of one reconciliation call.
type ChargeDefinition struct {
	ID         ChargeID
	BuildingID BuildingID
	Name       string
	Amount     Amount
	Cadence    Cadence
}

// Validate reports configuration mistakes. The engine never repairs them.
func (c ChargeDefinition) Validate() error {
	if !c.Amount.IsPositive() {
		return &InvalidChargeError{ChargeID: c.ID, Field: "amount", Reason: "must be positive, got " + c.Amount.String()}
	}
	if !c.Cadence.Valid() {
		return &InvalidChargeError{ChargeID: c.ID, Field: "cadence", Reason: "unrecognized cadence " + string(c.Cadence)}
	}
	return nil
}

// =============================================================================
// PAYMENT RECORD - One observed attempt to satisfy one period
// =============================================================================

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomePending || o == OutcomeFailed
}

// PaymentRecord carries period metadata written under more than one historical
// schema. Nil pointers mean "absent", not zero.
//
//   PeriodMonth == nil     the record is not for a monthly period
//   PeriodMonthEnd != nil  the record covers a closed range (annual, legacy)
//   PeriodLabel            free text, e.g. "March 2024", "2023 - 2024", "Annual fee"
type PaymentRecord struct {
	ID             PaymentID
	TenantID       TenantID
	ChargeID       ChargeID
	Amount         Amount
	Outcome        Outcome
	CreatedAt      time.Time
	PeriodYear     *int
	PeriodMonth    *int
	PeriodMonthEnd *int
	PeriodLabel    string
	IdempotencyKey string
}

// IntPtr is a convenience for building records with optional period fields.
func IntPtr(v int) *int { return &v }
