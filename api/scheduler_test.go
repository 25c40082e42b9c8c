package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	mu         sync.Mutex
	accruals   []leave.AccrualInput
	carryOvers []int
	sweeps     []time.Time
	actors     []authz.Actor
	sweepErr   error
}

func (f *fakeJobs) ProcessAutomaticAccrual(_ context.Context, actor authz.Actor, in leave.AccrualInput) (leave.AccrualResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accruals = append(f.accruals, in)
	f.actors = append(f.actors, actor)
	return leave.AccrualResult{AsOf: in.AsOf}, nil
}

func (f *fakeJobs) ProcessCarryOver(_ context.Context, _ authz.Actor, fromYear int, _ bool) (leave.CarryOverResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carryOvers = append(f.carryOvers, fromYear)
	return leave.CarryOverResult{FromYear: fromYear}, nil
}

func (f *fakeJobs) AutoClockOutStaleEntries(_ context.Context, now time.Time) (timetracking.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps = append(f.sweeps, now)
	return timetracking.SweepResult{}, f.sweepErr
}

func (f *fakeJobs) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accruals), len(f.sweeps)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunOnceOutsideJanuary(t *testing.T) {
	// GIVEN: A scheduler whose clock reads 5 March 2025
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, jobs, quietLogger())
	s.Clock = func() time.Time { return time.Date(2025, time.March, 5, 2, 0, 0, 0, time.UTC) }

	// WHEN: The jobs run once
	s.RunOnce(context.Background())

	// THEN: Accrual runs as the system for today, carry-over does not run
	require.Len(t, jobs.accruals, 1)
	assert.Equal(t, "2025-03-05", jobs.accruals[0].AsOf.Time.Format("2006-01-02"))
	assert.Equal(t, authz.System.ID, jobs.actors[0].ID)
	assert.Empty(t, jobs.carryOvers)
	assert.Len(t, jobs.sweeps, 1)
}

func TestScheduler_CarriesOverInJanuary(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, jobs, quietLogger())
	s.Clock = func() time.Time { return time.Date(2026, time.January, 2, 2, 0, 0, 0, time.UTC) }

	s.RunOnce(context.Background())

	assert.Equal(t, []int{2025}, jobs.carryOvers)
}

func TestScheduler_SweepFailureDoesNotStopAccrual(t *testing.T) {
	jobs := &fakeJobs{sweepErr: errors.New("database is locked")}
	s := NewScheduler(jobs, jobs, quietLogger())

	s.RunOnce(context.Background())

	accruals, sweeps := jobs.counts()
	assert.Equal(t, 1, accruals)
	assert.Equal(t, 1, sweeps)
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	// GIVEN: Intervals far longer than the test
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, jobs, quietLogger())
	s.AccrualInterval = time.Hour
	s.SweepInterval = time.Hour

	// WHEN: Started
	s.Start()
	s.Start()

	// THEN: Both jobs run once right away
	assert.Eventually(t, func() bool {
		a, w := jobs.counts()
		return a == 1 && w == 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	a, w := jobs.counts()
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, w)
}

func TestScheduler_Disabled(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewScheduler(jobs, jobs, quietLogger())
	s.Enabled = false

	s.Start()
	s.Stop()

	a, w := jobs.counts()
	assert.Zero(t, a)
	assert.Zero(t, w)
}
