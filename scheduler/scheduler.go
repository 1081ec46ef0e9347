// acforums/scheduler/scheduler.go
//
// Periodic warning-decay sweeps. The schedule is persisted in the
// database so a restart resumes the existing cadence rather than
// resetting it, and each completed sweep re-arms the next one.
package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AscendingCreations/acforums/database"
	"github.com/AscendingCreations/acforums/utils"
)

const sweepJob = "warning_sweep"

type Scheduler struct {
	db       *database.DatabaseService
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewScheduler(db *database.DatabaseService, logger *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{db: db, logger: logger, interval: interval}
}

// Start arms the sweep timer from the persisted schedule. A job that
// has never run, or whose due time already passed while the process was
// down, fires after startupDelay instead of immediately, giving the
// service time to settle.
func (s *Scheduler) Start(startupDelay time.Duration) error {
	next, ok, err := s.db.JobNextRun(sweepJob)
	if err != nil {
		return err
	}

	now := utils.GetTime()
	delay := startupDelay
	if ok && next.After(now) {
		delay = next.Sub(now)
	}
	if err := s.db.SetJobNextRun(sweepJob, now.Add(delay)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.timer = time.AfterFunc(delay, s.runSweep)
	s.logger.Info("Warning sweep scheduled", "delay", delay, "interval", s.interval)
	return nil
}

// Stop cancels any pending sweep. The persisted schedule is left in
// place for the next start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// TriggerSweep runs a sweep immediately without disturbing the timer.
func (s *Scheduler) TriggerSweep() error {
	return s.db.DecaySweep()
}

// runSweep executes one sweep and re-arms the timer. A misconfigured
// policy is logged but the cadence keeps going, so fixing the config
// does not require a restart.
func (s *Scheduler) runSweep() {
	if err := s.db.DecaySweep(); err != nil {
		if errors.Is(err, database.ErrConfig) {
			s.logger.Error("Warning sweep skipped", "error", err)
		} else {
			s.logger.Error("Warning sweep failed", "error", err)
		}
	}

	next := utils.GetTime().Add(s.interval)
	if err := s.db.SetJobNextRun(sweepJob, next); err != nil {
		s.logger.Error("Failed to persist sweep schedule", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timer = time.AfterFunc(s.interval, s.runSweep)
}
