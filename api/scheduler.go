/*
scheduler.go - Background jobs for accrual, carry-over and stale shifts

PURPOSE:
  Periodically runs the jobs nobody triggers by hand: crediting accrual
  periods that came due, carrying last year's balances over during January,
  and closing shifts left open past the maximum duration.

DESIGN:
  - One goroutine per job, each with its own ticker
  - Every job runs once immediately on Start
  - Jobs act as authz.System and log through slog
  - Accrual and carry-over are idempotent per period and per balance, so an
    overlapping manual run through the API is harmless

CONFIGURATION:
  - AccrualInterval: How often to run accrual and carry-over (default: 1 hour)
  - SweepInterval:   How often to close stale shifts (default: 15 minutes)
  - Enabled:         Whether the scheduler is active

USAGE:
  s := NewScheduler(leaveManager, timeService, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: RunAccrual, RunCarryOver, SweepStaleEntries (manual runs)
  - leave/accrual.go: ProcessAutomaticAccrual, ProcessCarryOver
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// LeaveJobs is the part of leave.Manager the scheduler drives.
type LeaveJobs interface {
	ProcessAutomaticAccrual(ctx context.Context, actor authz.Actor, in leave.AccrualInput) (leave.AccrualResult, error)
	ProcessCarryOver(ctx context.Context, actor authz.Actor, fromYear int, dryRun bool) (leave.CarryOverResult, error)
}

// TimeJobs is the part of timetracking.Service the scheduler drives.
type TimeJobs interface {
	AutoClockOutStaleEntries(ctx context.Context, now time.Time) (timetracking.SweepResult, error)
}

// Scheduler runs the periodic jobs.
type Scheduler struct {
	Leave           LeaveJobs
	Time            TimeJobs
	AccrualInterval time.Duration
	SweepInterval   time.Duration
	Enabled         bool
	Clock           func() time.Time
	Logger          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler with the default intervals.
func NewScheduler(l LeaveJobs, t TimeJobs, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Leave:           l,
		Time:            t,
		AccrualInterval: time.Hour,
		SweepInterval:   15 * time.Minute,
		Enabled:         true,
		Clock:           time.Now,
		Logger:          logger.With(slog.String("component", "scheduler")),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.loop(ctx, s.AccrualInterval, s.runLeaveJobs)
	go s.loop(ctx, s.SweepInterval, s.runSweep)

	s.Logger.Info("scheduler started",
		slog.Duration("accrual_interval", s.AccrualInterval),
		slog.Duration("sweep_interval", s.SweepInterval))
}

// Stop cancels running jobs and waits for the loops to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.Logger.Info("scheduler stopped")
}

// RunOnce runs every job synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runLeaveJobs(ctx)
	s.runSweep(ctx)
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, job func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	// Run immediately on start
	job(ctx)
	for {
		select {
		case <-ticker.C:
			job(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runLeaveJobs(ctx context.Context) {
	now := s.Clock()
	asOf := generic.DateOf(now)

	res, err := s.Leave.ProcessAutomaticAccrual(ctx, authz.System, leave.AccrualInput{AsOf: asOf})
	if err != nil {
		s.Logger.ErrorContext(ctx, "accrual run failed", slog.Any("error", err))
	} else {
		s.Logger.InfoContext(ctx, "accrual run finished",
			slog.String("as_of", asOf.Time.Format(generic.DateLayout)),
			slog.Int("scanned", res.Scanned),
			slog.Int("accrued", len(res.Accrued)),
			slog.Int("failures", len(res.Failures)))
	}

	if now.Month() != time.January {
		return
	}
	co, err := s.Leave.ProcessCarryOver(ctx, authz.System, now.Year()-1, false)
	if err != nil {
		s.Logger.ErrorContext(ctx, "carry-over run failed", slog.Any("error", err))
		return
	}
	if len(co.Carried) > 0 || len(co.Failures) > 0 {
		s.Logger.InfoContext(ctx, "carry-over run finished",
			slog.Int("from_year", co.FromYear),
			slog.Int("carried", len(co.Carried)),
			slog.Int("failures", len(co.Failures)))
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	res, err := s.Time.AutoClockOutStaleEntries(ctx, s.Clock())
	if err != nil {
		s.Logger.ErrorContext(ctx, "stale shift sweep failed", slog.Any("error", err))
		return
	}
	if len(res.Closed) > 0 || len(res.Failures) > 0 {
		s.Logger.InfoContext(ctx, "stale shifts closed",
			slog.Int("scanned", res.Scanned),
			slog.Int("closed", len(res.Closed)),
			slog.Int("failures", len(res.Failures)))
	}
}
