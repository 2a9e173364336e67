/*
Package sqlite provides a SQLite-backed implementation of billing.Store.

PURPOSE:
  Persists charge definitions, tenancies and the payment ledger. The
  reconciliation engine reads snapshots through the billing interfaces and
  never sees SQL.

APPEND-ONLY ENFORCEMENT:
  The payments table is append-only:
  - No UPDATE statements on payments
  - No DELETE statements on payments (except Reset for dev)
  - A gateway status change is a new row with a new attempt

KEY TABLES:
  charges:    Recurring charge definitions per building
  tenancies:  Tenant to room links; start_date is the billing anchor
  payments:   Immutable ledger of payment attempts

INDEXES:
  - idx_payments_tenant_created: Ledger snapshot per tenant (hot path)
  - idx_payments_tenant_charge:  Per-charge listing
  - idempotency_key UNIQUE:      Gateway retries are rejected

TIMESTAMPS:
  payments.created_at is fixed-width UTC text (nanosecond precision), so
  ORDER BY created_at sorts chronologically.

PERIOD COLUMNS:
  period_year, period_month and period_month_end are nullable. Legacy
  records without a month or with a month range are stored as received;
  classification happens at read time.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With ":memory:" the pool is pinned to
  one connection so every query sees the same database.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/hostel-billing/billing"
)

// Store implements billing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ billing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS charges (
		id TEXT PRIMARY KEY,
		building_id TEXT NOT NULL,
		name TEXT NOT NULL,
		amount TEXT NOT NULL,
		cadence TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_charges_building
		ON charges(building_id);

	CREATE TABLE IF NOT EXISTS tenancies (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		building_id TEXT NOT NULL,
		room_id TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tenancies_tenant
		ON tenancies(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_tenancies_building
		ON tenancies(building_id);

	-- Payments (append-only ledger)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		charge_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		outcome TEXT NOT NULL,
		created_at TEXT NOT NULL,
		period_year INTEGER,
		period_month INTEGER,
		period_month_end INTEGER,
		period_label TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_payments_tenant_created
		ON payments(tenant_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_payments_tenant_charge
		ON payments(tenant_id, charge_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CHARGES (billing.ChargeRegistry)
// =============================================================================

// SaveCharge creates or replaces a charge definition. Invalid definitions are
// stored as given; the engine reports them at reconciliation time.
func (s *Store) SaveCharge(ctx context.Context, c billing.ChargeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO charges (id, building_id, name, amount, cadence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			name = excluded.name,
			amount = excluded.amount,
			cadence = excluded.cadence,
			updated_at = excluded.updated_at
	`, c.ID, c.BuildingID, c.Name, c.Amount.Value.String(), c.Cadence, now, now)
	if err != nil {
		return fmt.Errorf("failed to save charge: %w", err)
	}
	return nil
}

// Charge returns billing.ErrChargeNotFound if the charge doesn't exist.
func (s *Store) Charge(ctx context.Context, id billing.ChargeID) (billing.ChargeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, building_id, name, amount, cadence
		FROM charges WHERE id = ?
	`, id)

	c, err := scanCharge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.ChargeDefinition{}, fmt.Errorf("%w: %s", billing.ErrChargeNotFound, id)
	}
	return c, err
}

// ChargesByBuilding returns the building's charges ordered by ID.
func (s *Store) ChargesByBuilding(ctx context.Context, buildingID billing.BuildingID) ([]billing.ChargeDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, building_id, name, amount, cadence
		FROM charges WHERE building_id = ?
		ORDER BY id ASC
	`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	charges := []billing.ChargeDefinition{}
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// Buildings returns every building that has at least one charge, sorted.
func (s *Store) Buildings(ctx context.Context) ([]billing.BuildingID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT building_id FROM charges ORDER BY building_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query buildings: %w", err)
	}
	defer rows.Close()

	var buildings []billing.BuildingID
	for rows.Next() {
		var id billing.BuildingID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan building: %w", err)
		}
		buildings = append(buildings, id)
	}
	return buildings, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCharge(row scanner) (billing.ChargeDefinition, error) {
	var (
		c      billing.ChargeDefinition
		amount string
	)
	if err := row.Scan(&c.ID, &c.BuildingID, &c.Name, &amount, &c.Cadence); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan charge: %w", err)
	}
	a, err := billing.ParseAmount(amount)
	if err != nil {
		return c, fmt.Errorf("charge %s has corrupt amount %q: %w", c.ID, amount, err)
	}
	c.Amount = a
	return c, nil
}

// =============================================================================
// TENANCIES (billing.TenancyStore)
// =============================================================================

// SaveTenancy creates or replaces a tenancy.
func (s *Store) SaveTenancy(ctx context.Context, t billing.Tenancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var startDate sql.NullString
	if anchor := t.Anchor(); anchor != nil {
		startDate = sql.NullString{String: anchor.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenancies (id, tenant_id, building_id, room_id, start_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			building_id = excluded.building_id,
			room_id = excluded.room_id,
			start_date = excluded.start_date
	`, t.ID, t.TenantID, t.BuildingID, t.RoomID, startDate, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save tenancy: %w", err)
	}
	return nil
}

// Tenancy returns billing.ErrTenancyNotFound if the tenancy doesn't exist.
func (s *Store) Tenancy(ctx context.Context, id billing.TenancyID) (billing.Tenancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, building_id, room_id, start_date
		FROM tenancies WHERE id = ?
	`, id)

	t, err := scanTenancy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Tenancy{}, fmt.Errorf("%w: %s", billing.ErrTenancyNotFound, id)
	}
	return t, err
}

func (s *Store) TenanciesByTenant(ctx context.Context, tenantID billing.TenantID) ([]billing.Tenancy, error) {
	return s.queryTenancies(ctx, `
		SELECT id, tenant_id, building_id, room_id, start_date
		FROM tenancies WHERE tenant_id = ?
		ORDER BY id ASC
	`, tenantID)
}

func (s *Store) TenanciesByBuilding(ctx context.Context, buildingID billing.BuildingID) ([]billing.Tenancy, error) {
	return s.queryTenancies(ctx, `
		SELECT id, tenant_id, building_id, room_id, start_date
		FROM tenancies WHERE building_id = ?
		ORDER BY id ASC
	`, buildingID)
}

func (s *Store) queryTenancies(ctx context.Context, query string, args ...any) ([]billing.Tenancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenancies: %w", err)
	}
	defer rows.Close()

	tenancies := []billing.Tenancy{}
	for rows.Next() {
		t, err := scanTenancy(rows)
		if err != nil {
			return nil, err
		}
		tenancies = append(tenancies, t)
	}
	return tenancies, rows.Err()
}

func scanTenancy(row scanner) (billing.Tenancy, error) {
	var (
		t         billing.Tenancy
		startDate sql.NullString
	)
	if err := row.Scan(&t.ID, &t.TenantID, &t.BuildingID, &t.RoomID, &startDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("failed to scan tenancy: %w", err)
	}
	if startDate.Valid && startDate.String != "" {
		tp, err := billing.ParseDate(startDate.String)
		if err != nil {
			return t, fmt.Errorf("tenancy %s has corrupt start date %q: %w", t.ID, startDate.String, err)
		}
		t.StartDate = &tp
	}
	return t, nil
}

// =============================================================================
// PAYMENTS (billing.PaymentLedger, append-only)
// =============================================================================

// createdAtLayout keeps every fraction digit. RFC3339Nano trims trailing
// zeros and "10:00:00.5Z" would sort before "10:00:00Z".
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AppendPayment adds a payment attempt to the ledger.
func (s *Store) AppendPayment(ctx context.Context, p billing.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
		(id, tenant_id, charge_id, amount, outcome, created_at,
		 period_year, period_month, period_month_end, period_label, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.TenantID,
		p.ChargeID,
		p.Amount.Value.String(),
		p.Outcome,
		p.CreatedAt.UTC().Format(createdAtLayout),
		nullInt(p.PeriodYear),
		nullInt(p.PeriodMonth),
		nullInt(p.PeriodMonthEnd),
		p.PeriodLabel,
		nullString(p.IdempotencyKey),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key") {
			return billing.ErrDuplicateIdempotencyKey
		}
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: duplicate payment id %s", billing.ErrInvalidPayment, p.ID)
		}
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

// Payments returns all records for the tenant ordered by CreatedAt, then
// insertion order.
func (s *Store) Payments(ctx context.Context, tenantID billing.TenantID) ([]billing.PaymentRecord, error) {
	return s.queryPayments(ctx, `
		SELECT id, tenant_id, charge_id, amount, outcome, created_at,
		       period_year, period_month, period_month_end, period_label, idempotency_key
		FROM payments WHERE tenant_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, tenantID)
}

func (s *Store) PaymentsForCharge(ctx context.Context, tenantID billing.TenantID, chargeID billing.ChargeID) ([]billing.PaymentRecord, error) {
	return s.queryPayments(ctx, `
		SELECT id, tenant_id, charge_id, amount, outcome, created_at,
		       period_year, period_month, period_month_end, period_label, idempotency_key
		FROM payments WHERE tenant_id = ? AND charge_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, tenantID, chargeID)
}

// PaymentExists checks if an idempotency key exists.
func (s *Store) PaymentExists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]billing.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []billing.PaymentRecord{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(rows *sql.Rows) (billing.PaymentRecord, error) {
	var (
		p              billing.PaymentRecord
		amount         string
		createdAt      string
		periodYear     sql.NullInt64
		periodMonth    sql.NullInt64
		periodMonthEnd sql.NullInt64
		idempotencyKey sql.NullString
	)

	err := rows.Scan(
		&p.ID, &p.TenantID, &p.ChargeID, &amount, &p.Outcome, &createdAt,
		&periodYear, &periodMonth, &periodMonthEnd, &p.PeriodLabel, &idempotencyKey,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	a, err := billing.ParseAmount(amount)
	if err != nil {
		return p, fmt.Errorf("payment %s has corrupt amount %q: %w", p.ID, amount, err)
	}
	p.Amount = a
	p.CreatedAt, _ = time.Parse(createdAtLayout, createdAt)
	p.PeriodYear = intPtr(periodYear)
	p.PeriodMonth = intPtr(periodMonth)
	p.PeriodMonthEnd = intPtr(periodMonthEnd)
	p.IdempotencyKey = idempotencyKey.String
	return p, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Dev and demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "tenancies", "charges"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return billing.IntPtr(int(v.Int64))
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
