/*
scheduler.go - Automated auto-checkout scheduler

PURPOSE:
  Periodically runs the auto-checkout sweep for the current day so that
  forgotten checkouts are closed without an operator triggering the sweep
  endpoint by hand.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only sweeps once the configured default checkout time has passed;
    before that, open entries are legitimately still open
  - The sweep itself is idempotent, so overlapping checks are harmless
  - Every effective run is recorded as an OperationRun for audit

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - engine/sweep.go: Sweeper
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/attendance-engine/engine"
)

// SweepScheduler closes the day's forgotten checkouts in the background.
type SweepScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(handler *Handler) *SweepScheduler {
	return &SweepScheduler{
		Handler:       handler,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.checkAndSweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.checkAndSweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) checkAndSweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	// Before the default checkout time, open entries are simply people
	// still at work. Nothing to close yet.
	threshold := ss.Handler.Sweeper.Config.DefaultCheckout
	if engine.TimeOfDayOf(now) < threshold {
		return
	}

	scope := engine.SweepToday()

	open, err := ss.Handler.Sweeper.Preview(ctx, scope)
	if err != nil {
		log.Printf("[Scheduler] Error previewing sweep: %v", err)
		return
	}
	if len(open) == 0 {
		return
	}

	report, err := ss.Handler.Sweeper.Sweep(ctx, scope)
	if err != nil {
		log.Printf("[Scheduler] Error sweeping: %v", err)
		return
	}
	log.Printf("[Scheduler] Sweep for %s: %d closed, %d failed", scope, report.Succeeded, report.Failed)
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.checkAndSweep()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ss *SweepScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ss.CheckInterval)
}
