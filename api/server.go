/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests from the tenant portal

ROUTE GROUPS:
  /api/buildings/*   Charges and arrears per building
  /api/charges/*     Charge lookup
  /api/tenancies/*   Tenancies and per-charge status
  /api/tenants/*     Ledger and dashboard per tenant
  /api/payments      Ledger writes
  /api/scenarios/*   Demo data loaders
  /api/admin/*       Sweep and reset
  /metrics           Prometheus scrape endpoint
  /healthz           Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultOrigins are allowed when no CORS origins are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Building routes
		r.Route("/buildings/{id}", func(r chi.Router) {
			r.Get("/charges", h.ListCharges)
			r.Post("/charges", h.CreateCharge)
			r.Get("/arrears", h.GetBuildingArrears)
		})

		r.Get("/charges/{id}", h.GetCharge)

		// Tenancy routes
		r.Route("/tenancies", func(r chi.Router) {
			r.Post("/", h.CreateTenancy)
			r.Get("/{id}", h.GetTenancy)
			r.Get("/{id}/charges/{chargeID}", h.GetChargeStatus)
		})

		// Tenant routes
		r.Route("/tenants/{id}", func(r chi.Router) {
			r.Get("/payments", h.ListPayments)
			r.Get("/statement", h.GetStatement)
		})

		r.Post("/payments", h.RecordPayment)

		// Admin routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/arrears-sweep", h.TriggerArrearsSweep)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
