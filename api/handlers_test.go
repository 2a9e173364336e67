/*
handlers_test.go - HTTP tests for the billing API

Tests for:
- Charge, tenancy and payment endpoints
- Tenant statement and building arrears
- Error mapping (400, 404, 409, 422)
- Manual arrears sweep
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hostel-billing/api"
	"github.com/warp/hostel-billing/billing"
	"github.com/warp/hostel-billing/hostel"
	"github.com/warp/hostel-billing/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2024, time.April, 15, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	store   *sqlite.Store
	handler *api.Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard, "", 0)
	h := api.NewHandler(store, nil, logger)
	h.Now = func() time.Time { return fixedNow }
	h.Ledger.Now = h.Now

	scheduler := api.NewArrearsScheduler(store, h.Dashboard)
	scheduler.Now = h.Now
	scheduler.Logger = logger
	h.Scheduler = scheduler

	return &testServer{t: t, store: store, handler: h, router: api.NewRouter(h, nil)}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v), rec.Body.String())
	return v
}

// seed creates bldg-1 with monthly rent and annual maintenance.
func (s *testServer) seed() {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/buildings/bldg-1/charges", hostel.MonthlyRentJSON("rent", "bldg-1", "450.00"))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/buildings/bldg-1/charges", hostel.AnnualMaintenanceJSON("maint", "bldg-1", "1200.00"))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) tenancy(id, tenant, start string) {
	s.t.Helper()
	body := `{"id":"` + id + `","tenant_id":"` + tenant + `","building_id":"bldg-1","room_id":"101"`
	if start != "" {
		body += `,"start_date":"` + start + `"`
	}
	body += `}`
	rec := s.do(http.MethodPost, "/api/tenancies", body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) pay(body string) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/payments", body)
}

// =============================================================================
// CHARGES
// =============================================================================

func TestCharges_CreateListGet(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	rec := s.do(http.MethodGet, "/api/buildings/bldg-1/charges", "")
	require.Equal(t, http.StatusOK, rec.Code)
	charges := decode[[]map[string]string](t, rec)
	require.Len(t, charges, 2)
	assert.Equal(t, "maint", charges[0]["id"])
	assert.Equal(t, "yearly", charges[0]["cadence"])

	rec = s.do(http.MethodGet, "/api/charges/rent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "450.00", decode[map[string]string](t, rec)["amount"])

	rec = s.do(http.MethodGet, "/api/charges/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCharges_CreateRejectsInvalid(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"zero amount", "/api/buildings/bldg-1/charges", hostel.ChargeJSON("c", "bldg-1", "Rent", "0", billing.CadenceMonthly)},
		{"weekly cadence", "/api/buildings/bldg-1/charges", hostel.ChargeJSON("c", "bldg-1", "Rent", "10", "weekly")},
		{"building mismatch", "/api/buildings/bldg-2/charges", hostel.ChargeJSON("c", "bldg-1", "Rent", "10", billing.CadenceMonthly)},
		{"malformed body", "/api/buildings/bldg-1/charges", `{"id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[api.ErrorResponse](t, rec).Error)
		})
	}
}

func TestCharges_BuildingDefaultsFromURL(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/buildings/bldg-9/charges", `{"id":"utils","name":"Utilities","amount":"35","cadence":"monthly"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "bldg-9", decode[map[string]string](t, rec)["building_id"])
}

// =============================================================================
// TENANCIES
// =============================================================================

func TestTenancies_CreateAndGet(t *testing.T) {
	s := newTestServer(t)
	s.tenancy("ten-1", "alice", "2024-01-15")

	rec := s.do(http.MethodGet, "/api/tenancies/ten-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]string](t, rec)
	assert.Equal(t, "alice", got["tenant_id"])
	assert.Equal(t, "2024-01-15", got["start_date"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/tenancies/ten-9", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/tenancies", `{"tenant_id":"bob"}`).Code)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayments_RecordAndList(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	rec := s.pay(`{"tenant_id":"alice","charge_id":"rent","amount":"450.00","outcome":"success","period_year":2024,"period_month":1,"idempotency_key":"gw-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recorded := decode[map[string]any](t, rec)
	assert.NotEmpty(t, recorded["id"])
	assert.Equal(t, fixedNow.Format(time.RFC3339), recorded["created_at"])

	rec = s.pay(`{"tenant_id":"alice","charge_id":"maint","amount":"1200","outcome":"pending","period_year":2024}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/tenants/alice/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)

	rec = s.do(http.MethodGet, "/api/tenants/alice/payments?charge_id=rent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestPayments_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusCreated, s.pay(`{"tenant_id":"a","charge_id":"rent","amount":"1","outcome":"success","idempotency_key":"gw-1"}`).Code)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate idempotency key", `{"tenant_id":"a","charge_id":"rent","amount":"1","outcome":"success","idempotency_key":"gw-1"}`, http.StatusConflict},
		{"unknown charge", `{"tenant_id":"a","charge_id":"nope","amount":"1","outcome":"success"}`, http.StatusNotFound},
		{"unknown outcome", `{"tenant_id":"a","charge_id":"rent","amount":"1","outcome":"refunded"}`, http.StatusBadRequest},
		{"malformed body", `[`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.pay(tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPayments_IdempotencyKeyHeader(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	body := `{"tenant_id":"a","charge_id":"rent","amount":"1","outcome":"success"}`
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "hdr-1")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusConflict, send())
}

// =============================================================================
// STATEMENT
// =============================================================================

func TestStatement_RentOwedMaintenancePaid(t *testing.T) {
	// GIVEN: Tenant moved in 2024-01-15 and paid Jan, Feb rent and 2024 maintenance
	// WHEN: Requesting the statement as of 2024-04-15
	// THEN: Rent shows Pay Now with March and April due; maintenance shows Paid
	s := newTestServer(t)
	s.seed()
	s.tenancy("ten-1", "alice", "2024-01-15")
	for _, b := range []string{
		`{"tenant_id":"alice","charge_id":"rent","amount":"450","outcome":"success","period_year":2024,"period_month":1}`,
		`{"tenant_id":"alice","charge_id":"rent","amount":"450","outcome":"success","period_year":2024,"period_month":2}`,
		`{"tenant_id":"alice","charge_id":"rent","amount":"450","outcome":"pending","period_year":2024,"period_month":3}`,
		`{"tenant_id":"alice","charge_id":"maint","amount":"1200","outcome":"success","period_year":2024}`,
	} {
		require.Equal(t, http.StatusCreated, s.pay(b).Code)
	}

	rec := s.do(http.MethodGet, "/api/tenants/alice/statement?as_of=2024-04-15", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stmt := decode[api.StatementDTO](t, rec)

	assert.Equal(t, "2024-04-15", stmt.AsOf)
	assert.False(t, stmt.UpToDate)
	assert.Equal(t, "900.00", stmt.TotalDue)
	require.Len(t, stmt.Charges, 2)

	byID := map[string]api.ChargeStatusDTO{}
	for _, c := range stmt.Charges {
		byID[c.ChargeID] = c
	}

	rent := byID["rent"]
	assert.Equal(t, "pay_now", rent.Action)
	assert.Equal(t, "monthly", rent.ChosenFrequency)
	assert.Len(t, rent.PaidPeriods, 2)
	require.Len(t, rent.UnpaidPeriods, 2)
	assert.Equal(t, "March 2024", rent.UnpaidPeriods[0].Label)
	assert.Equal(t, "April 2024", rent.UnpaidPeriods[1].Label)
	require.Len(t, rent.PendingPeriods, 1)
	assert.Equal(t, "monthly:2024-03", rent.PendingPeriods[0].Key)
	assert.True(t, rent.InArrears)
	assert.Equal(t, "ten-1", rent.TenancyID)

	maint := byID["maint"]
	assert.Equal(t, "paid", maint.Action)
	assert.True(t, maint.IsUpToDate)
	assert.Empty(t, maint.UnpaidPeriods)
}

func TestStatement_DefaultsToToday(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.tenancy("ten-1", "alice", "2024-04-01")

	rec := s.do(http.MethodGet, "/api/tenants/alice/statement", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-04-15", decode[api.StatementDTO](t, rec).AsOf)
}

func TestStatement_NoStartDate_NotApplicable(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.tenancy("ten-1", "applicant", "")

	rec := s.do(http.MethodGet, "/api/tenants/applicant/statement?as_of=2024-04-15", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stmt := decode[api.StatementDTO](t, rec)
	for _, c := range stmt.Charges {
		assert.Equal(t, "not_applicable", c.Action)
		assert.False(t, c.Applicable)
		assert.False(t, c.IsUpToDate)
	}
	assert.False(t, stmt.UpToDate)
}

func TestStatement_Errors(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/tenants/nobody/statement", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/tenants/nobody/statement?as_of=April", "").Code)
}

func TestStatement_MisconfiguredChargeStillRenders(t *testing.T) {
	// GIVEN: A legacy charge row with a zero amount, saved directly to the store
	// THEN: The statement is 200, the bad line says contact_office with the error
	s := newTestServer(t)
	s.seed()
	require.NoError(t, s.store.SaveCharge(context.Background(), hostel.MonthlyUtilities("utils", "bldg-1", "0")))
	s.tenancy("ten-1", "alice", "2024-04-01")

	rec := s.do(http.MethodGet, "/api/tenants/alice/statement?as_of=2024-04-15", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stmt := decode[api.StatementDTO](t, rec)
	require.Len(t, stmt.Charges, 3)

	for _, c := range stmt.Charges {
		if c.ChargeID == "utils" {
			assert.Equal(t, hostel.ActionContactOffice, billing.Action(c.Action))
			assert.Contains(t, c.Error, "amount")
		} else {
			assert.Empty(t, c.Error)
		}
	}
	assert.False(t, stmt.UpToDate)
}

// =============================================================================
// SINGLE CHARGE STATUS
// =============================================================================

func TestChargeStatus(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.tenancy("ten-1", "alice", "2023-11-01")
	require.Equal(t, http.StatusCreated, s.pay(`{"tenant_id":"alice","charge_id":"maint","amount":"1200","outcome":"success","period_year":2023,"period_label":"Annual maintenance 2023"}`).Code)

	rec := s.do(http.MethodGet, "/api/tenancies/ten-1/charges/maint?as_of=2024-02-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decode[api.ChargeStatusDTO](t, rec)
	assert.Equal(t, "pay_now", status.Action)
	require.Len(t, status.UnpaidPeriods, 1)
	assert.Equal(t, "2024", status.UnpaidPeriods[0].Label)
	assert.Equal(t, "1200.00", status.AmountDue)
}

func TestChargeStatus_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.tenancy("ten-1", "alice", "2024-01-01")
	require.NoError(t, s.store.SaveCharge(context.Background(), billing.ChargeDefinition{
		ID: "broken", BuildingID: "bldg-1", Name: "Broken", Amount: billing.MustParseAmount("10"), Cadence: "weekly",
	}))
	require.NoError(t, s.store.SaveCharge(context.Background(), hostel.MonthlyRent("other", "bldg-2", "100")))

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodGet, "/api/tenancies/ten-1/charges/broken", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/tenancies/ten-1/charges/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/tenancies/ten-9/charges/rent", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/tenancies/ten-1/charges/other", "").Code)
}

// =============================================================================
// ARREARS
// =============================================================================

func TestBuildingArrears(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.tenancy("ten-1", "alice", "2024-01-01")
	s.tenancy("ten-2", "bob", "2024-04-01")
	for _, b := range []string{
		`{"tenant_id":"bob","charge_id":"rent","amount":"450","outcome":"success","period_year":2024,"period_month":4}`,
		`{"tenant_id":"bob","charge_id":"maint","amount":"1200","outcome":"success","period_year":2024}`,
	} {
		require.Equal(t, http.StatusCreated, s.pay(b).Code)
	}

	rec := s.do(http.MethodGet, "/api/buildings/bldg-1/arrears?as_of=2024-04-15", "")
	require.Equal(t, http.StatusOK, rec.Code)
	arrears := decode[api.ArrearsDTO](t, rec)

	require.Len(t, arrears.Entries, 1)
	assert.Equal(t, "alice", arrears.Entries[0].TenantID)
	assert.Equal(t, 5, arrears.Entries[0].UnpaidPeriods, "four months of rent plus 2024 maintenance")
	assert.Equal(t, "3000.00", arrears.Entries[0].AmountDue)
	assert.Equal(t, 1, arrears.TenantsInArrears)
}

func TestArrearsSweep(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.tenancy("ten-1", "alice", "2024-01-01")

	rec := s.do(http.MethodPost, "/api/admin/arrears-sweep", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sweep := decode[api.SweepDTO](t, rec)
	assert.Equal(t, 1, sweep.Buildings)
	assert.Equal(t, map[string]int{"bldg-1": 1}, sweep.TenantsInArrears)

	last := s.handler.Scheduler.LastRun()
	assert.Equal(t, fixedNow, last.RanAt)
}

func TestArrearsSweep_NoScheduler(t *testing.T) {
	s := newTestServer(t)
	s.handler.Scheduler = nil
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/admin/arrears-sweep", "").Code)
}

// =============================================================================
// ADMIN AND INFRA
// =============================================================================

func TestReset(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/admin/reset", "").Code)

	rec := s.do(http.MethodGet, "/api/buildings/bldg-1/charges", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]string](t, rec))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "").Code)

	rec := s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
