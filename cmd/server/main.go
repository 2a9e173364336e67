/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the hostel billing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults, YAML, .env, environment), then apply flags
  2. Initialize SQLite store
  3. Register Prometheus collectors
  4. Build the engine with the configured cadence policy
  5. Create API handler, arrears scheduler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (overrides BILLING_PORT)
  -db        SQLite database path (overrides BILLING_DB_PATH)
             Use ":memory:" for in-memory database
  -policy    Cadence policy: majority, configured, latest
  -env       Path to a .env file (default: .env, optional)

ENVIRONMENT:
  BILLING_CONFIG              Path to a YAML config file
  BILLING_PORT                HTTP server port
  BILLING_DB_PATH             SQLite database path
  BILLING_CADENCE_POLICY      Cadence policy name
  BILLING_CORS_ORIGINS        Comma-separated allowed origins
  BILLING_SCHEDULER_ENABLED   true/false
  BILLING_SCHEDULER_INTERVAL  Go duration, e.g. 30m

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the arrears scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/hostel-billing/api"
	"github.com/warp/hostel-billing/billing"
	"github.com/warp/hostel-billing/config"
	"github.com/warp/hostel-billing/metrics"
	"github.com/warp/hostel-billing/store/sqlite"
)

func main() {
	// Flags
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	policyName := flag.String("policy", "", "Cadence policy (majority, configured, latest)")
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *policyName != "" {
		cfg.CadencePolicy = *policyName
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metrics.Init()

	policy, err := billing.PolicyByName(cfg.CadencePolicy)
	if err != nil {
		log.Fatalf("Invalid cadence policy: %v", err)
	}
	engine := billing.NewEngine(policy)

	logger := log.New(os.Stderr, "", log.LstdFlags)
	handler := api.NewHandler(store, engine, logger)

	scheduler := api.NewArrearsScheduler(store, handler.Dashboard)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Logger = logger
	handler.Scheduler = scheduler
	scheduler.Start()

	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Printf("Server starting on http://localhost:%s (cadence policy: %s)", cfg.Port, policy.Name())
		logger.Printf("API available at http://localhost:%s/api, metrics at /metrics", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Println("Server stopped")
}
