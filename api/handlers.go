/*
handlers.go - HTTP API handlers for the billing service

PURPOSE:
  Exposes charge configuration, the payment ledger and tenant dashboards
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the billing engine through hostel.Dashboard.

ENDPOINTS:
  Charges:
    GET    /api/buildings/{id}/charges   List a building's charges
    POST   /api/buildings/{id}/charges   Create or replace a charge
    GET    /api/charges/{id}             Get charge details

  Tenancies:
    POST   /api/tenancies                         Create or replace a tenancy
    GET    /api/tenancies/{id}                    Get tenancy details
    GET    /api/tenancies/{id}/charges/{chargeID} One charge's payment status

  Payments:
    POST   /api/payments                Record a payment attempt (Idempotency-Key header or body)
    GET    /api/tenants/{id}/payments   Ledger for a tenant (?charge_id=)

  Dashboards:
    GET    /api/tenants/{id}/statement  All charges for a tenant (?as_of=)
    GET    /api/buildings/{id}/arrears  Tenancies with unpaid periods (?as_of=)

  Admin:
    POST   /api/admin/arrears-sweep     Run the arrears sweep now
    POST   /api/admin/reset             Clear the database (dev only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Charge or tenancy not found
  - 409: Duplicate idempotency key
  - 422: Charge definition is misconfigured
  - 500: Internal errors

  A tenant statement with one misconfigured charge is still 200; the bad
  line carries action "contact_office" and the error text.

SECURITY NOTE:
  No authentication or authorization. Deploy behind the portal gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/hostel-billing/billing"
	"github.com/warp/hostel-billing/factory"
	"github.com/warp/hostel-billing/hostel"
	"github.com/warp/hostel-billing/metrics"
	"github.com/warp/hostel-billing/store/sqlite"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Factory   *factory.ChargeFactory
	Ledger    *billing.Ledger
	Engine    *billing.Engine
	Dashboard *hostel.Dashboard

	// Scheduler is optional; without it the manual sweep returns 503.
	Scheduler *ArrearsScheduler

	// Now is the clock used when a request has no as_of.
	Now    func() time.Time
	Logger *log.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store and engine.
func NewHandler(store *sqlite.Store, engine *billing.Engine, logger *log.Logger) *Handler {
	if engine == nil {
		engine = billing.DefaultEngine
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		Store:     store,
		Factory:   factory.NewChargeFactory(),
		Ledger:    billing.NewLedger(store),
		Engine:    engine,
		Dashboard: hostel.NewDashboard(store, engine, logger),
		Now:       time.Now,
		Logger:    logger,
	}
}

// =============================================================================
// CHARGE HANDLERS
// =============================================================================

// ListCharges returns a building's charges.
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	buildingID := billing.BuildingID(chi.URLParam(r, "id"))

	charges, err := h.Store.ChargesByBuilding(r.Context(), buildingID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list charges", err)
		return
	}

	dtos := make([]factory.ChargeJSON, len(charges))
	for i, c := range charges {
		dtos[i] = h.Factory.ChargeToJSON(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCharge validates and saves a charge for the building in the URL.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	buildingID := chi.URLParam(r, "id")

	var req factory.ChargeJSON
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.BuildingID == "" {
		req.BuildingID = buildingID
	}
	if req.BuildingID != buildingID {
		writeError(w, http.StatusBadRequest, "building_id does not match URL", nil)
		return
	}

	charge, err := h.Factory.ChargeFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid charge definition", err)
		return
	}
	if err := h.Store.SaveCharge(r.Context(), charge); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save charge", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.Factory.ChargeToJSON(charge))
}

// GetCharge returns a single charge.
func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	charge, err := h.Store.Charge(r.Context(), billing.ChargeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get charge", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ChargeToJSON(charge))
}

// =============================================================================
// TENANCY HANDLERS
// =============================================================================

// CreateTenancy saves a tenancy. start_date may be omitted for applicants.
func (h *Handler) CreateTenancy(w http.ResponseWriter, r *http.Request) {
	var req factory.TenancyJSON
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tenancy, err := h.Factory.TenancyFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tenancy", err)
		return
	}
	if err := h.Store.SaveTenancy(r.Context(), tenancy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save tenancy", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.Factory.TenancyToJSON(tenancy))
}

// GetTenancy returns a single tenancy.
func (h *Handler) GetTenancy(w http.ResponseWriter, r *http.Request) {
	tenancy, err := h.Store.Tenancy(r.Context(), billing.TenancyID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get tenancy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.TenancyToJSON(tenancy))
}

// GetChargeStatus reconciles one charge for one tenancy.
func (h *Handler) GetChargeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	asOf, err := h.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	tenancy, err := h.Store.Tenancy(ctx, billing.TenancyID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get tenancy", err)
		return
	}
	charge, err := h.Store.Charge(ctx, billing.ChargeID(chi.URLParam(r, "chargeID")))
	if err != nil {
		writeDomainError(w, "Failed to get charge", err)
		return
	}
	if charge.BuildingID != tenancy.BuildingID {
		writeError(w, http.StatusNotFound, "Charge does not apply to this tenancy", billing.ErrChargeNotFound)
		return
	}

	payments, err := h.Store.PaymentsForCharge(ctx, tenancy.TenantID, charge.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load payments", err)
		return
	}

	status, err := h.Engine.Reconcile(charge, tenancy.Anchor(), payments, asOf)
	if err != nil {
		metrics.IncReconcile(metrics.ResultConfigError)
		h.Logger.Printf("[API] charge %s misconfigured: %v", charge.ID, err)
		writeDomainError(w, "Charge is misconfigured", err)
		return
	}
	if status.Applicable {
		metrics.IncReconcile(metrics.ResultOK)
	} else {
		metrics.IncReconcile(metrics.ResultNotApplicable)
	}

	dto := toStatusDTO(charge, status)
	dto.TenancyID = string(tenancy.ID)
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment appends a payment attempt to the ledger.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req factory.PaymentJSON
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	payment, err := h.Factory.PaymentFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment", err)
		return
	}

	recorded, err := h.Ledger.Record(r.Context(), payment)
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}
	metrics.IncPaymentRecorded(string(recorded.Outcome))

	writeJSON(w, http.StatusCreated, h.Factory.PaymentToJSON(recorded))
}

// ListPayments returns a tenant's ledger, optionally for one charge.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	var (
		payments []billing.PaymentRecord
		err      error
	)
	if chargeID := r.URL.Query().Get("charge_id"); chargeID != "" {
		payments, err = h.Store.PaymentsForCharge(r.Context(), tenantID, billing.ChargeID(chargeID))
	} else {
		payments, err = h.Store.Payments(r.Context(), tenantID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]factory.PaymentJSON, len(payments))
	for i, p := range payments {
		dtos[i] = h.Factory.PaymentToJSON(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DASHBOARD HANDLERS
// =============================================================================

// GetStatement returns the tenant dashboard.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	stmt, err := h.Dashboard.TenantStatement(r.Context(), billing.TenantID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		writeDomainError(w, "Failed to build statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(stmt))
}

// GetBuildingArrears lists tenancies with unpaid periods.
func (h *Handler) GetBuildingArrears(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	buildingID := billing.BuildingID(chi.URLParam(r, "id"))
	entries, err := h.Dashboard.BuildingArrears(r.Context(), buildingID, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute arrears", err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearsDTO(buildingID, asOf, entries))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerArrearsSweep runs the sweep synchronously.
func (h *Handler) TriggerArrearsSweep(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Arrears scheduler not configured", nil)
		return
	}
	result, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Arrears sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepDTO(result))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Health reports whether the database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// asOf reads ?as_of=YYYY-MM-DD, defaulting to today.
func (h *Handler) asOf(r *http.Request) (billing.TimePoint, error) {
	if v := r.URL.Query().Get("as_of"); v != "" {
		return billing.ParseDate(v)
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return billing.FromTime(now()), nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// statusFor maps billing errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	case errors.Is(err, billing.ErrInvalidPayment):
		return http.StatusBadRequest
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsConfigError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
