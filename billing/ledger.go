package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER - Write-side wrapper around Store
// =============================================================================

// Ledger records payment attempts reported by the gateway or entered by staff.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete.
//   - Idempotent: A repeated idempotency key is rejected, not duplicated.
//
// The reconciliation engine never writes through the Ledger; it only reads
// snapshots via PaymentLedger.
type Ledger struct {
	Store Store
	Now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// Record validates and appends a payment, filling ID and CreatedAt if empty.
// It returns the record as stored.
func (l *Ledger) Record(ctx context.Context, p PaymentRecord) (PaymentRecord, error) {
	if p.ChargeID == "" || p.TenantID == "" {
		return PaymentRecord{}, fmt.Errorf("%w: tenant and charge are required", ErrInvalidPayment)
	}
	if !p.Outcome.Valid() {
		return PaymentRecord{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidPayment, p.Outcome)
	}
	if _, err := l.Store.Charge(ctx, p.ChargeID); err != nil {
		return PaymentRecord{}, err
	}

	if p.IdempotencyKey != "" {
		exists, err := l.Store.PaymentExists(ctx, p.IdempotencyKey)
		if err != nil {
			return PaymentRecord{}, err
		}
		if exists {
			return PaymentRecord{}, ErrDuplicateIdempotencyKey
		}
	}

	if p.ID == "" {
		p.ID = PaymentID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = l.now()
	}
	if err := l.Store.AppendPayment(ctx, p); err != nil {
		return PaymentRecord{}, err
	}
	return p, nil
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}
