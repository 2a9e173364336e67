/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	billing data. Each scenario creates charges, tenancies and ledger
	entries that demonstrate one reconciliation behavior, plus the as_of
	date to view it with.

AVAILABLE SCENARIOS:

	rent-arrears:    Monthly rent two months behind, maintenance paid
	legacy-annual:   Old gateway records (month ranges, "2023 - 2024" labels)
	no-payments:     Moved in three months ago, nothing paid
	cadence-switch:  Charge moved from yearly to monthly, history still yearly
	applicant:       Tenancy without a move-in date (not applicable)
	misconfigured:   Zero-amount charge next to healthy ones

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create charges via factory presets
 3. Create tenancies
 4. Record payment attempts through the ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "rent-arrears"}

	GET /api/tenants/alice/statement?as_of=2024-04-15

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - hostel/charges.go: Charge presets
  - handlers.go: Dashboard endpoints to inspect the result
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/hostel-billing/billing"
	"github.com/warp/hostel-billing/hostel"
)

const demoBuilding = "bldg-demo"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "rent-arrears",
		Name:        "Rent Arrears",
		Description: "Moved in mid-January, paid January and February rent, March attempt still pending",
		TenantID:    "alice",
		AsOf:        "2024-04-15",
	},
	{
		ID:          "legacy-annual",
		Name:        "Legacy Annual Records",
		Description: "Payments from the old gateway: yearly label without month, month range",
		TenantID:    "bob",
		AsOf:        "2024-03-01",
	},
	{
		ID:          "no-payments",
		Name:        "No Payments",
		Description: "Moved in three months ago and never paid; every month is due",
		TenantID:    "gina",
		AsOf:        "2024-04-15",
	},
	{
		ID:          "cadence-switch",
		Name:        "Cadence Switch",
		Description: "Rent reconfigured from yearly to monthly; history decides the cadence",
		TenantID:    "carol",
		AsOf:        "2024-05-01",
	},
	{
		ID:          "applicant",
		Name:        "Applicant",
		Description: "Tenancy without a move-in date; charges are not applicable yet",
		TenantID:    "dave",
		AsOf:        "2024-04-15",
	},
	{
		ID:          "misconfigured",
		Name:        "Misconfigured Charge",
		Description: "A zero-amount utilities charge; the tenant is told to contact the office",
		TenantID:    "erin",
		AsOf:        "2024-04-15",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"rent-arrears":   (*Handler).loadRentArrearsScenario,
	"legacy-annual":  (*Handler).loadLegacyAnnualScenario,
	"no-payments":    (*Handler).loadNoPaymentsScenario,
	"cadence-switch": (*Handler).loadCadenceSwitchScenario,
	"applicant":      (*Handler).loadApplicantScenario,
	"misconfigured":  (*Handler).loadMisconfiguredScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := loader(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Logger.Printf("[API] Loaded scenario %s", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadRentArrearsScenario(ctx context.Context) error {
	if err := h.saveCharges(ctx,
		hostel.MonthlyRent("rent", demoBuilding, "450.00"),
		hostel.AnnualMaintenance("maint", demoBuilding, "1200.00"),
	); err != nil {
		return err
	}
	if err := h.saveTenancy(ctx, "ten-alice", "alice", "2024-01-15"); err != nil {
		return err
	}
	return h.recordPayments(ctx,
		demoPayment("alice", "rent", "450.00", billing.OutcomeSuccess, "2024-01-16", 2024, billing.IntPtr(1), ""),
		demoPayment("alice", "maint", "1200.00", billing.OutcomeSuccess, "2024-01-16", 2024, nil, "2024"),
		demoPayment("alice", "rent", "450.00", billing.OutcomeFailed, "2024-02-28", 2024, billing.IntPtr(2), ""),
		demoPayment("alice", "rent", "450.00", billing.OutcomeSuccess, "2024-03-01", 2024, billing.IntPtr(2), ""),
		demoPayment("alice", "rent", "450.00", billing.OutcomePending, "2024-04-02", 2024, billing.IntPtr(3), ""),
	)
}

func (h *Handler) loadLegacyAnnualScenario(ctx context.Context) error {
	if err := h.saveCharges(ctx,
		hostel.AnnualMaintenance("maint", demoBuilding, "1200.00"),
		hostel.YearlyRent("rent-yearly", demoBuilding, "5000.00"),
	); err != nil {
		return err
	}
	if err := h.saveTenancy(ctx, "ten-bob", "bob", "2023-06-01"); err != nil {
		return err
	}

	ranged := demoPayment("bob", "rent-yearly", "5000.00", billing.OutcomeSuccess, "2023-06-02", 2023, billing.IntPtr(6), "June - December 2023")
	ranged.PeriodMonthEnd = billing.IntPtr(12)

	noYear := demoPayment("bob", "rent-yearly", "5000.00", billing.OutcomeSuccess, "2024-01-10", 0, billing.IntPtr(1), "")
	noYear.PeriodYear = nil

	return h.recordPayments(ctx,
		demoPayment("bob", "maint", "1200.00", billing.OutcomeSuccess, "2023-06-02", 2023, nil, "2023 - 2024"),
		ranged,
		noYear,
	)
}

func (h *Handler) loadNoPaymentsScenario(ctx context.Context) error {
	if err := h.saveCharges(ctx, hostel.MonthlyRent("rent", demoBuilding, "450.00")); err != nil {
		return err
	}
	return h.saveTenancy(ctx, "ten-gina", "gina", "2024-01-15")
}

func (h *Handler) loadCadenceSwitchScenario(ctx context.Context) error {
	if err := h.saveCharges(ctx, hostel.MonthlyRent("rent", demoBuilding, "450.00")); err != nil {
		return err
	}
	if err := h.saveTenancy(ctx, "ten-carol", "carol", "2022-03-01"); err != nil {
		return err
	}
	return h.recordPayments(ctx,
		demoPayment("carol", "rent", "5000.00", billing.OutcomeSuccess, "2022-03-01", 2022, nil, "Annual Rent 2022"),
		demoPayment("carol", "rent", "5000.00", billing.OutcomeSuccess, "2023-01-05", 2023, nil, "Annual Rent 2023"),
		demoPayment("carol", "rent", "450.00", billing.OutcomeSuccess, "2024-01-05", 2024, billing.IntPtr(1), ""),
	)
}

func (h *Handler) loadApplicantScenario(ctx context.Context) error {
	if err := h.saveCharges(ctx,
		hostel.MonthlyRent("rent", demoBuilding, "450.00"),
		hostel.AnnualMaintenance("maint", demoBuilding, "1200.00"),
	); err != nil {
		return err
	}
	return h.saveTenancy(ctx, "ten-dave", "dave", "")
}

func (h *Handler) loadMisconfiguredScenario(ctx context.Context) error {
	// Saved directly: the API would reject this definition.
	if err := h.Store.SaveCharge(ctx, hostel.MonthlyUtilities("utils", demoBuilding, "0")); err != nil {
		return err
	}
	if err := h.saveCharges(ctx, hostel.MonthlyRent("rent", demoBuilding, "450.00")); err != nil {
		return err
	}
	if err := h.saveTenancy(ctx, "ten-erin", "erin", "2024-04-01"); err != nil {
		return err
	}
	return h.recordPayments(ctx,
		demoPayment("erin", "rent", "450.00", billing.OutcomeSuccess, "2024-04-01", 2024, billing.IntPtr(4), ""),
	)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saveCharges(ctx context.Context, charges ...billing.ChargeDefinition) error {
	for _, c := range charges {
		if _, err := h.Factory.ChargeFromJSON(h.Factory.ChargeToJSON(c)); err != nil {
			return fmt.Errorf("preset %s: %w", c.ID, err)
		}
		if err := h.Store.SaveCharge(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) saveTenancy(ctx context.Context, id, tenant, start string) error {
	t := billing.Tenancy{
		ID:         billing.TenancyID(id),
		TenantID:   billing.TenantID(tenant),
		BuildingID: demoBuilding,
		RoomID:     "demo",
	}
	if start != "" {
		tp, err := billing.ParseDate(start)
		if err != nil {
			return err
		}
		t.StartDate = &tp
	}
	return h.Store.SaveTenancy(ctx, t)
}

func (h *Handler) recordPayments(ctx context.Context, payments ...billing.PaymentRecord) error {
	for _, p := range payments {
		if _, err := h.Ledger.Record(ctx, p); err != nil {
			return fmt.Errorf("record %s/%s: %w", p.TenantID, p.ChargeID, err)
		}
	}
	return nil
}

// demoPayment builds a payment created at noon UTC on the given date.
func demoPayment(tenant string, charge billing.ChargeID, amount string, outcome billing.Outcome, created string, year int, month *int, label string) billing.PaymentRecord {
	day, _ := time.Parse("2006-01-02", created)
	return billing.PaymentRecord{
		TenantID:    billing.TenantID(tenant),
		ChargeID:    charge,
		Amount:      billing.MustParseAmount(amount),
		Outcome:     outcome,
		CreatedAt:   day.Add(12 * time.Hour),
		PeriodYear:  billing.IntPtr(year),
		PeriodMonth: month,
		PeriodLabel: label,
	}
}
