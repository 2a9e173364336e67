/*
scheduler.go - Periodic arrears sweep

PURPOSE:
  Periodically reconciles every building's tenancies and publishes how
  many tenants carry accumulated arrears. Operators alert on the gauge;
  the office follows up with the tenants listed by
  GET /api/buildings/{id}/arrears.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Lists buildings that have charges, then calls Dashboard.BuildingArrears
  - A failing building is logged and skipped, the sweep continues
  - Read-only: the sweep never writes to the payment ledger

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewArrearsScheduler(store, dashboard)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: POST /api/admin/arrears-sweep (manual sweep)
  - hostel/dashboard.go: BuildingArrears
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/hostel-billing/billing"
	"github.com/warp/hostel-billing/hostel"
	"github.com/warp/hostel-billing/metrics"
)

// BuildingLister enumerates buildings to sweep.
type BuildingLister interface {
	Buildings(ctx context.Context) ([]billing.BuildingID, error)
}

// SweepResult is the outcome of one sweep.
type SweepResult struct {
	RanAt     time.Time
	InArrears map[billing.BuildingID]int
	Failed    []billing.BuildingID
}

// ArrearsScheduler runs the arrears sweep on a ticker.
type ArrearsScheduler struct {
	Buildings     BuildingLister
	Dashboard     *hostel.Dashboard
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time
	Logger        *log.Logger

	ticker  *time.Ticker
	stop    chan bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun SweepResult
}

// NewArrearsScheduler creates a new scheduler.
func NewArrearsScheduler(buildings BuildingLister, dashboard *hostel.Dashboard) *ArrearsScheduler {
	return &ArrearsScheduler{
		Buildings:     buildings,
		Dashboard:     dashboard,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		Logger:        log.Default(),
	}
}

// Start begins the scheduler.
func (as *ArrearsScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.Logger.Println("[Scheduler] Disabled, not starting")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan bool)
	as.wg.Add(1)

	go as.run(as.ticker.C, as.stop)

	as.Logger.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (as *ArrearsScheduler) Stop() {
	as.mu.Lock()
	ticker, stop := as.ticker, as.stop
	as.ticker = nil
	as.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		as.wg.Wait()
		as.Logger.Println("[Scheduler] Stopped")
	}
}

func (as *ArrearsScheduler) run(ticks <-chan time.Time, stop <-chan bool) {
	defer as.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	as.sweep(ctx)

	for {
		select {
		case <-ticks:
			as.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (as *ArrearsScheduler) sweep(ctx context.Context) {
	if _, err := as.RunNow(ctx); err != nil {
		as.Logger.Printf("[Scheduler] Sweep failed: %v", err)
	}
}

// RunNow performs a sweep synchronously.
func (as *ArrearsScheduler) RunNow(ctx context.Context) (SweepResult, error) {
	now := as.now()
	asOf := billing.FromTime(now)

	as.Logger.Printf("[Scheduler] Sweeping arrears as of %s", asOf)

	buildings, err := as.Buildings.Buildings(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list buildings: %w", err)
	}

	result := SweepResult{RanAt: now, InArrears: make(map[billing.BuildingID]int, len(buildings))}
	for _, building := range buildings {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entries, err := as.Dashboard.BuildingArrears(ctx, building, asOf)
		if err != nil {
			as.Logger.Printf("[Scheduler] Error sweeping building %s: %v", building, err)
			result.Failed = append(result.Failed, building)
			continue
		}
		n := hostel.CountInArrears(entries)
		result.InArrears[building] = n
		metrics.SetTenantsInArrears(string(building), n)
	}
	metrics.MarkArrearsSweep(now)

	as.Logger.Printf("[Scheduler] Complete: %d buildings, %d failed", len(result.InArrears), len(result.Failed))

	as.mu.Lock()
	as.lastRun = result
	as.mu.Unlock()
	return result, nil
}

// LastRun returns the most recent sweep result.
func (as *ArrearsScheduler) LastRun() SweepResult {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.lastRun
}

func (as *ArrearsScheduler) now() time.Time {
	if as.Now == nil {
		return time.Now()
	}
	return as.Now()
}
