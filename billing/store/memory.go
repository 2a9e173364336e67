// Package store provides in-memory billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/hostel-billing/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	charges     map[billing.ChargeID]billing.ChargeDefinition
	tenancies   map[billing.TenancyID]billing.Tenancy
	payments    map[billing.TenantID][]billing.PaymentRecord
	idempotency map[string]bool
}

var _ billing.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		charges:     make(map[billing.ChargeID]billing.ChargeDefinition),
		tenancies:   make(map[billing.TenancyID]billing.Tenancy),
		payments:    make(map[billing.TenantID][]billing.PaymentRecord),
		idempotency: make(map[string]bool),
	}
}

// =============================================================================
// CHARGES
// =============================================================================

func (m *Memory) SaveCharge(_ context.Context, c billing.ChargeDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[c.ID] = c
	return nil
}

func (m *Memory) Charge(_ context.Context, id billing.ChargeID) (billing.ChargeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.charges[id]
	if !ok {
		return billing.ChargeDefinition{}, billing.ErrChargeNotFound
	}
	return c, nil
}

func (m *Memory) ChargesByBuilding(_ context.Context, buildingID billing.BuildingID) ([]billing.ChargeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.ChargeDefinition
	for _, c := range m.charges {
		if c.BuildingID == buildingID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// TENANCIES
// =============================================================================

func (m *Memory) SaveTenancy(_ context.Context, t billing.Tenancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenancies[t.ID] = t
	return nil
}

func (m *Memory) Tenancy(_ context.Context, id billing.TenancyID) (billing.Tenancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenancies[id]
	if !ok {
		return billing.Tenancy{}, billing.ErrTenancyNotFound
	}
	return t, nil
}

func (m *Memory) TenanciesByTenant(_ context.Context, tenantID billing.TenantID) ([]billing.Tenancy, error) {
	return m.filterTenancies(func(t billing.Tenancy) bool { return t.TenantID == tenantID }), nil
}

func (m *Memory) TenanciesByBuilding(_ context.Context, buildingID billing.BuildingID) ([]billing.Tenancy, error) {
	return m.filterTenancies(func(t billing.Tenancy) bool { return t.BuildingID == buildingID }), nil
}

func (m *Memory) filterTenancies(keep func(billing.Tenancy) bool) []billing.Tenancy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.Tenancy
	for _, t := range m.tenancies {
		if keep(t) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// =============================================================================
// PAYMENTS (append-only)
// =============================================================================

func (m *Memory) AppendPayment(_ context.Context, p billing.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IdempotencyKey != "" && m.idempotency[p.IdempotencyKey] {
		return billing.ErrDuplicateIdempotencyKey
	}

	records := m.payments[p.TenantID]
	// Keep CreatedAt order; equal timestamps keep insertion order.
	i := sort.Search(len(records), func(i int) bool {
		return records[i].CreatedAt.After(p.CreatedAt)
	})
	records = append(records, billing.PaymentRecord{})
	copy(records[i+1:], records[i:])
	records[i] = p
	m.payments[p.TenantID] = records

	if p.IdempotencyKey != "" {
		m.idempotency[p.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Payments(_ context.Context, tenantID billing.TenantID) ([]billing.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.PaymentRecord, len(m.payments[tenantID]))
	copy(result, m.payments[tenantID])
	return result, nil
}

func (m *Memory) PaymentsForCharge(_ context.Context, tenantID billing.TenantID, chargeID billing.ChargeID) ([]billing.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.PaymentRecord
	for _, p := range m.payments[tenantID] {
		if p.ChargeID == chargeID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *Memory) PaymentExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}
