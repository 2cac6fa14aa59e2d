// Package scheduler provides the background heartbeat that re-triggers
// reconciliation passes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/inventorylite/internal/logging"
)

// Scheduler periodically requests a sync pass. The engine itself drops
// requests while offline or mid-pass, so the tick is cheap; its job is
// to give actions waiting out a backoff window a chance to run again.
type Scheduler struct {
	trigger  func()
	interval time.Duration

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// DefaultInterval is how often the scheduler requests a pass.
const DefaultInterval = time.Minute

// NewScheduler creates a Scheduler invoking trigger every interval.
func NewScheduler(trigger func(), interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		trigger:  trigger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the background tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop(ctx)

	logging.Info("Sync scheduler started",
		map[string]interface{}{"interval": s.interval.String()})
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.trigger()
		}
	}
}
