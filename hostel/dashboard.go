/*
Package hostel wires the billing engine into the tenant dashboard.

PURPOSE:
  The dashboard holds several charges per tenant. For each request it reads
  the tenant's tenancies, the building's charges and the tenant's payment
  ledger, then reconciles every charge in parallel and renders one line per
  (tenancy, charge) pair.

KEY TYPES:
  Dashboard:    Reads collaborators, drives billing.Engine
  Statement:    All charge lines for one tenant as of a date
  ChargeLine:   One charge's status plus the UI action it gates
  ArrearsEntry: One tenant's outstanding periods within a building

ERROR PROPAGATION:
  - Missing tenancy start date: line is not applicable, no error
  - Unclassifiable payments: logged and counted, never treated as paid
  - Misconfigured charge: kept on the line unmodified (errors.Is works),
    and the tenant is told to contact the office instead of shown "Paid"

SEE ALSO:
  - billing/reconcile.go: The engine
  - api/handlers.go: HTTP surface
  - api/scheduler.go: Periodic arrears sweep
*/
package hostel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/warp/hostel-billing/billing"
	"github.com/warp/hostel-billing/metrics"
)

// ActionContactOffice replaces Pay Now / Paid when the charge itself is broken.
const ActionContactOffice billing.Action = "contact_office"

// =============================================================================
// STATEMENT
// =============================================================================

type ChargeLine struct {
	Tenancy billing.Tenancy
	Charge  billing.ChargeDefinition
	Status  billing.ChargePaymentStatus
	Err     error
}

func (l ChargeLine) Action() billing.Action {
	if l.Err != nil {
		return ActionContactOffice
	}
	return l.Status.Action()
}

type Statement struct {
	TenantID billing.TenantID
	AsOf     billing.TimePoint
	Lines    []ChargeLine
}

// TotalDue sums AmountDue across well-formed lines.
func (s Statement) TotalDue() billing.Amount {
	total := billing.NewAmountFromInt(0)
	for _, l := range s.Lines {
		if l.Err == nil {
			total = total.Add(l.Status.AmountDue)
		}
	}
	return total
}

// UpToDate is true only if every line is applicable, valid and paid.
func (s Statement) UpToDate() bool {
	if len(s.Lines) == 0 {
		return false
	}
	for _, l := range s.Lines {
		if l.Action() != billing.ActionPaid {
			return false
		}
	}
	return true
}

// ConfigErrors joins the configuration errors of all lines, or nil.
func (s Statement) ConfigErrors() error {
	var errs []error
	for _, l := range s.Lines {
		if l.Err != nil {
			errs = append(errs, l.Err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// DASHBOARD
// =============================================================================

type Dashboard struct {
	Charges   billing.ChargeRegistry
	Tenancies billing.TenancyStore
	Payments  billing.PaymentLedger
	Engine    *billing.Engine
	Logger    *log.Logger
}

func NewDashboard(store billing.Store, engine *billing.Engine, logger *log.Logger) *Dashboard {
	if engine == nil {
		engine = billing.DefaultEngine
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dashboard{
		Charges:   store,
		Tenancies: store,
		Payments:  store,
		Engine:    engine,
		Logger:    logger,
	}
}

// TenantStatement reconciles every charge of every tenancy the tenant holds.
// Returns ErrTenancyNotFound if the tenant has no tenancy at all.
func (d *Dashboard) TenantStatement(ctx context.Context, tenantID billing.TenantID, now billing.TimePoint) (Statement, error) {
	start := time.Now()
	stmt, err := d.tenantStatement(ctx, tenantID, now)
	result := metrics.ResultOK
	if err != nil {
		result = "error"
	} else if stmt.ConfigErrors() != nil {
		result = metrics.ResultConfigError
	}
	metrics.ObserveStatement(result, time.Since(start))
	return stmt, err
}

func (d *Dashboard) tenantStatement(ctx context.Context, tenantID billing.TenantID, now billing.TimePoint) (Statement, error) {
	tenancies, err := d.Tenancies.TenanciesByTenant(ctx, tenantID)
	if err != nil {
		return Statement{}, fmt.Errorf("load tenancies for %s: %w", tenantID, err)
	}
	if len(tenancies) == 0 {
		return Statement{}, fmt.Errorf("tenant %s: %w", tenantID, billing.ErrTenancyNotFound)
	}

	// One ledger snapshot for all charges keeps lines consistent with each other.
	payments, err := d.Payments.Payments(ctx, tenantID)
	if err != nil {
		return Statement{}, fmt.Errorf("load payments for %s: %w", tenantID, err)
	}

	var jobs []billing.Job
	var owners []billing.Tenancy
	chargesByBuilding := make(map[billing.BuildingID][]billing.ChargeDefinition)
	for _, tenancy := range tenancies {
		charges, ok := chargesByBuilding[tenancy.BuildingID]
		if !ok {
			charges, err = d.Charges.ChargesByBuilding(ctx, tenancy.BuildingID)
			if err != nil {
				return Statement{}, fmt.Errorf("load charges for building %s: %w", tenancy.BuildingID, err)
			}
			chargesByBuilding[tenancy.BuildingID] = charges
		}
		for _, charge := range charges {
			jobs = append(jobs, billing.Job{Charge: charge, Anchor: tenancy.Anchor(), Payments: payments})
			owners = append(owners, tenancy)
		}
	}

	results, err := d.Engine.ReconcileAll(ctx, jobs, now)
	if err != nil {
		return Statement{}, err
	}

	stmt := Statement{TenantID: tenantID, AsOf: now, Lines: make([]ChargeLine, len(results))}
	for i, r := range results {
		stmt.Lines[i] = ChargeLine{Tenancy: owners[i], Charge: r.Charge, Status: r.Status, Err: r.Err}
		d.observe(tenantID, stmt.Lines[i])
	}
	return stmt, nil
}

func (d *Dashboard) observe(tenantID billing.TenantID, line ChargeLine) {
	switch {
	case line.Err != nil:
		metrics.IncReconcile(metrics.ResultConfigError)
		d.Logger.Printf("[Dashboard] charge %s misconfigured: %v", line.Charge.ID, line.Err)
		return
	case !line.Status.Applicable:
		metrics.IncReconcile(metrics.ResultNotApplicable)
	default:
		metrics.IncReconcile(metrics.ResultOK)
	}
	for _, c := range line.Status.Unclassified {
		metrics.IncUnclassified(string(c.Rule))
		d.Logger.Printf("[Dashboard] tenant %s charge %s: %v", tenantID, line.Charge.ID, c.Err())
	}
}

// =============================================================================
// BUILDING ARREARS
// =============================================================================

type ArrearsEntry struct {
	TenantID      billing.TenantID
	TenancyID     billing.TenancyID
	UnpaidPeriods int
	AmountDue     billing.Amount

	// InArrears is true when some charge has more than the current period unpaid.
	InArrears bool
	Charges   []billing.ChargeID
}

// BuildingArrears lists tenancies in the building with at least one unpaid
// period, ordered by tenant then tenancy. Misconfigured charges are skipped
// here; they surface on the tenant statement and in the logs.
func (d *Dashboard) BuildingArrears(ctx context.Context, buildingID billing.BuildingID, now billing.TimePoint) ([]ArrearsEntry, error) {
	tenancies, err := d.Tenancies.TenanciesByBuilding(ctx, buildingID)
	if err != nil {
		return nil, fmt.Errorf("load tenancies for building %s: %w", buildingID, err)
	}
	charges, err := d.Charges.ChargesByBuilding(ctx, buildingID)
	if err != nil {
		return nil, fmt.Errorf("load charges for building %s: %w", buildingID, err)
	}

	entries := []ArrearsEntry{}
	ledgers := make(map[billing.TenantID][]billing.PaymentRecord)
	for _, tenancy := range tenancies {
		payments, ok := ledgers[tenancy.TenantID]
		if !ok {
			payments, err = d.Payments.Payments(ctx, tenancy.TenantID)
			if err != nil {
				return nil, fmt.Errorf("load payments for %s: %w", tenancy.TenantID, err)
			}
			ledgers[tenancy.TenantID] = payments
		}

		jobs := make([]billing.Job, len(charges))
		for i, charge := range charges {
			jobs[i] = billing.Job{Charge: charge, Anchor: tenancy.Anchor(), Payments: payments}
		}
		results, err := d.Engine.ReconcileAll(ctx, jobs, now)
		if err != nil {
			return nil, err
		}

		entry := ArrearsEntry{TenantID: tenancy.TenantID, TenancyID: tenancy.ID, AmountDue: billing.NewAmountFromInt(0)}
		for _, r := range results {
			if r.Err != nil || r.Status.Arrears() == 0 {
				continue
			}
			entry.UnpaidPeriods += r.Status.Arrears()
			entry.AmountDue = entry.AmountDue.Add(r.Status.AmountDue)
			entry.InArrears = entry.InArrears || r.Status.InArrears()
			entry.Charges = append(entry.Charges, r.Charge.ID)
		}
		if entry.UnpaidPeriods > 0 {
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TenantID != entries[j].TenantID {
			return entries[i].TenantID < entries[j].TenantID
		}
		return entries[i].TenancyID < entries[j].TenancyID
	})
	return entries, nil
}

// CountInArrears returns how many entries carry accumulated arrears.
func CountInArrears(entries []ArrearsEntry) int {
	n := 0
	for _, e := range entries {
		if e.InArrears {
			n++
		}
	}
	return n
}
