/*
store.go - Collaborator interfaces read by the engine

PURPOSE:
  The engine itself never touches storage. The dashboard fetches its inputs
  from three collaborators and hands snapshots to Reconcile:

  ChargeRegistry: ChargeDefinitions scoped to a building
  TenancyStore:   Tenancies, whose start date is the billing anchor
  PaymentLedger:  PaymentRecords per tenant (optionally per charge)

  Store bundles the read interfaces with the write operations the HTTP
  layer needs. Persistence adapters implement it.

APPEND-ONLY LEDGER:
  Payments are never updated or deleted. A gateway status change
  (pending -> success) is recorded as a new attempt. Every write carries an
  optional idempotency key; a repeated key is rejected with
  ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - billing/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - ledger.go: Write-side wrapper enforcing idempotency and defaults
*/
package billing

import "context"

// =============================================================================
// TENANCY - Source of the billing anchor
// =============================================================================

// Tenancy links a tenant to a room. StartDate is nil for applicants who have
// not moved in; reconciliation is then not applicable.
type Tenancy struct {
	ID         TenancyID
	TenantID   TenantID
	BuildingID BuildingID
	RoomID     string
	StartDate  *TimePoint
}

// Anchor returns the date billing obligations begin, or nil.
func (t Tenancy) Anchor() *TimePoint {
	if t.StartDate == nil || t.StartDate.IsZero() {
		return nil
	}
	anchor := *t.StartDate
	return &anchor
}

// =============================================================================
// READ INTERFACES - What the dashboard consumes
// =============================================================================

type ChargeRegistry interface {
	// Charge returns ErrChargeNotFound if the charge doesn't exist.
	Charge(ctx context.Context, id ChargeID) (ChargeDefinition, error)

	// ChargesByBuilding returns the building's charges ordered by ID.
	ChargesByBuilding(ctx context.Context, buildingID BuildingID) ([]ChargeDefinition, error)
}

type TenancyStore interface {
	// Tenancy returns ErrTenancyNotFound if the tenancy doesn't exist.
	Tenancy(ctx context.Context, id TenancyID) (Tenancy, error)
	TenanciesByTenant(ctx context.Context, tenantID TenantID) ([]Tenancy, error)
	TenanciesByBuilding(ctx context.Context, buildingID BuildingID) ([]Tenancy, error)
}

type PaymentLedger interface {
	// Payments returns all records for the tenant ordered by CreatedAt.
	Payments(ctx context.Context, tenantID TenantID) ([]PaymentRecord, error)
	PaymentsForCharge(ctx context.Context, tenantID TenantID, chargeID ChargeID) ([]PaymentRecord, error)
}

// =============================================================================
// STORE - Read interfaces plus writes
// =============================================================================

type Store interface {
	ChargeRegistry
	TenancyStore
	PaymentLedger

	// SaveCharge creates or replaces a charge definition.
	SaveCharge(ctx context.Context, charge ChargeDefinition) error

	// SaveTenancy creates or replaces a tenancy.
	SaveTenancy(ctx context.Context, tenancy Tenancy) error

	// AppendPayment persists a payment. Returns ErrDuplicateIdempotencyKey if
	// the key exists. This is the ONLY ledger write.
	AppendPayment(ctx context.Context, payment PaymentRecord) error

	// PaymentExists checks if an idempotency key was already recorded.
	PaymentExists(ctx context.Context, idempotencyKey string) (bool, error)
}
