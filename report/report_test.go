package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/solomon-wilson/hrmis-sub002/report"
	"github.com/solomon-wilson/hrmis-sub002/store/memory"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	employee  = authz.Actor{ID: "u-emp", EmployeeID: "emp-1", Roles: []authz.Role{authz.RoleEmployee}}
	colleague = authz.Actor{ID: "u-col", EmployeeID: "emp-2", Roles: []authz.Role{authz.RoleEmployee}}
	manager   = authz.Actor{ID: "u-mgr", EmployeeID: "mgr-1", Roles: []authz.Role{authz.RoleManager}}
	hr        = authz.Actor{ID: "u-hr", EmployeeID: "hr-1", Roles: []authz.Role{authz.RoleHR}}
)

type fixture struct {
	reports *report.Service
	leave   *leave.Manager
	time    *timetracking.Service
	now     time.Time
}

// newFixture starts on Wednesday 5 March 2025, 18:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, time.March, 5, 18, 0, 0, 0, time.UTC)
	f := &fixture{now: now}
	clock := func() time.Time { return f.now }

	employees := memory.NewEmployeeStore().WithClock(clock)
	for _, e := range []generic.Employee{
		{ID: "emp-1", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime, ManagerID: "mgr-1", HireDate: generic.NewTimePoint(2020, 1, 6)},
		{ID: "emp-2", DepartmentID: "ops", EmploymentType: generic.EmploymentFullTime, ManagerID: "mgr-2", HireDate: generic.NewTimePoint(2021, 1, 4)},
		{ID: "mgr-1", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime, HireDate: generic.NewTimePoint(2018, 1, 8)},
		{ID: "mgr-2", DepartmentID: "ops", EmploymentType: generic.EmploymentFullTime, HireDate: generic.NewTimePoint(2018, 1, 8)},
		{ID: "hr-1", DepartmentID: "hr", EmploymentType: generic.EmploymentFullTime, HireDate: generic.NewTimePoint(2017, 1, 2)},
	} {
		require.NoError(t, employees.SaveEmployee(ctx, e))
	}
	policies := memory.NewPolicyStore()
	require.NoError(t, policies.SaveLeavePolicy(ctx, policy.LeavePolicy{
		ID:          "annual-standard",
		Name:        "Annual leave",
		LeaveTypeID: "annual",
		Accrual:     policy.AccrualRules{Period: generic.AccrualNone, AnnualEntitlement: decimal.NewFromInt(20)},
		Active:      true,
	}))

	authorizer := authz.NewRoleAuthorizer(employees)
	f.leave = leave.NewManager(leave.Deps{
		Store:      memory.NewLeaveStore(),
		Policies:   policy.NewEngine(policies),
		Directory:  employees,
		Holidays:   memory.NewHolidays(),
		Authorizer: authorizer,
		Clock:      clock,
	}, leave.Config{})
	f.time = timetracking.NewService(timetracking.Deps{
		Store:      memory.NewTimeStore(),
		Policies:   policies,
		Directory:  employees,
		Authorizer: authorizer,
		Clock:      clock,
	}, timetracking.DefaultConfig())
	f.reports = report.NewService(report.Deps{
		Leave:      f.leave,
		Time:       f.time,
		Authorizer: authorizer,
		Clock:      clock,
	})
	return f
}

// shift records a completed shift for emp-1 through the clock.
func (f *fixture) shift(t *testing.T, in, out time.Time) {
	t.Helper()
	ctx := context.Background()
	f.now = in
	_, err := f.time.ClockIn(ctx, employee, timetracking.ClockInInput{EmployeeID: "emp-1", At: &in})
	require.NoError(t, err)
	f.now = out
	_, err = f.time.ClockOut(ctx, employee, timetracking.ClockOutInput{EmployeeID: "emp-1"})
	require.NoError(t, err)
}

func march(day, hh int) time.Time {
	return time.Date(2025, time.March, day, hh, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// OVERTIME
// =============================================================================

func TestOvertimeSummary_DailyAndWeeklyReportedSideBySide(t *testing.T) {
	// GIVEN: A 10 hour Monday and an 8 hour Tuesday under the 8/40 default
	f := newFixture(t)
	f.shift(t, march(3, 9), march(3, 19))
	f.shift(t, march(4, 9), march(4, 17))
	f.now = march(5, 18)

	// WHEN: The week is summarized at a base rate of 20
	week := generic.TimeWindow{From: march(3, 0), To: march(10, 0)}
	sum, err := f.reports.OvertimeSummary(context.Background(), employee, "emp-1", week, decimal.NewFromInt(20))

	// THEN: Daily overtime shows two hours, weekly shows none
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyID("default-overtime"), sum.PolicyID)
	assert.True(t, sum.TotalHours.Equal(decimal.NewFromInt(18)))
	require.Len(t, sum.Days, 2)
	assert.True(t, sum.Days[0].Split.Overtime.Equal(decimal.NewFromInt(2)))
	assert.True(t, sum.Days[1].Split.Overtime.IsZero())
	assert.True(t, sum.DailyTotals.Regular.Equal(decimal.NewFromInt(16)))
	require.Len(t, sum.Weeks, 1)
	assert.True(t, sum.WeeklyTotals.Regular.Equal(decimal.NewFromInt(18)))
	assert.True(t, sum.WeeklyTotals.Overtime.IsZero())

	// AND: Both pay projections are reported
	assert.True(t, sum.DailyBasisPay.Equal(dec("380")), "16*20 + 2*20*1.5, got %s", sum.DailyBasisPay)
	assert.True(t, sum.WeeklyBasisPay.Equal(dec("360")), "got %s", sum.WeeklyBasisPay)
}

func TestOvertimeSummary_WindowSpanningTwoWeeks(t *testing.T) {
	// GIVEN: Shifts on Friday and the following Monday
	f := newFixture(t)
	f.now = march(3, 8)
	f.shift(t, time.Date(2025, time.February, 28, 9, 0, 0, 0, time.UTC), time.Date(2025, time.February, 28, 17, 0, 0, 0, time.UTC))
	f.shift(t, march(3, 9), march(3, 17))

	// WHEN: Summarizing Thursday through Tuesday
	window := generic.TimeWindow{From: time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC), To: march(4, 0)}
	sum, err := f.reports.OvertimeSummary(context.Background(), hr, "emp-1", window, decimal.Zero)

	// THEN: Each partial week carries its own hours
	require.NoError(t, err)
	require.Len(t, sum.Weeks, 2)
	assert.True(t, sum.Weeks[0].Hours.Equal(decimal.NewFromInt(8)))
	assert.True(t, sum.Weeks[1].Hours.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, march(3, 0), sum.Weeks[1].From)
}

func TestOvertimeSummary_RejectsEmptyWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.OvertimeSummary(context.Background(), employee, "emp-1", generic.TimeWindow{From: march(3, 0), To: march(3, 0)}, decimal.Zero)

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestOvertimeSummary_OtherEmployeeIsForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.OvertimeSummary(context.Background(), colleague, "emp-1", generic.TimeWindow{From: march(3, 0), To: march(10, 0)}, decimal.Zero)

	assert.ErrorIs(t, err, generic.ErrForbidden)
}

// =============================================================================
// BALANCES AND APPROVAL QUEUES
// =============================================================================

func TestBalanceSummaries_ProjectsAvailability(t *testing.T) {
	// GIVEN: A pending five day request against a 20 day entitlement
	f := newFixture(t)
	_, err := f.leave.Submit(context.Background(), employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: generic.NewTimePoint(2025, 4, 7), EndDate: generic.NewTimePoint(2025, 4, 12),
	})
	require.NoError(t, err)

	// WHEN: The manager reads the team member's balances
	sums, err := f.reports.BalanceSummaries(context.Background(), manager, "emp-1", 2025)

	// THEN: Pending days reduce availability
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.True(t, sums[0].Entitlement.Equal(decimal.NewFromInt(20)))
	assert.True(t, sums[0].Pending.Equal(decimal.NewFromInt(5)))
	assert.True(t, sums[0].Available.Equal(decimal.NewFromInt(15)))
}

func TestPendingApprovals_OnlyWhatTheActorMayDecide(t *testing.T) {
	// GIVEN: Pending leave from emp-1 (reports to mgr-1) and emp-2 (reports to mgr-2)
	f := newFixture(t)
	ctx := context.Background()
	for _, a := range []authz.Actor{employee, colleague} {
		_, err := f.leave.Submit(ctx, a, leave.SubmitInput{
			EmployeeID: a.EmployeeID, LeaveTypeID: "annual",
			StartDate: generic.NewTimePoint(2025, 4, 7), EndDate: generic.NewTimePoint(2025, 4, 9),
		})
		require.NoError(t, err)
	}
	// AND: A manual entry from emp-1 waiting for approval
	_, err := f.time.SubmitManualEntry(ctx, employee, timetracking.ManualEntryInput{
		EmployeeID: "emp-1", ClockIn: march(4, 9), ClockOut: march(4, 17), Reason: "forgot badge",
	})
	require.NoError(t, err)

	// WHEN: mgr-1 opens the queue
	queue, err := f.reports.PendingApprovals(ctx, manager)

	// THEN: Only their report's items appear
	require.NoError(t, err)
	require.Len(t, queue.LeaveRequests, 1)
	assert.Equal(t, generic.EmployeeID("emp-1"), queue.LeaveRequests[0].EmployeeID)
	require.Len(t, queue.TimeEntries, 1)
	assert.Equal(t, timetracking.StatusPendingApproval, queue.TimeEntries[0].Status)

	// AND: HR sees both leave requests
	queue, err = f.reports.PendingApprovals(ctx, hr)
	require.NoError(t, err)
	assert.Len(t, queue.LeaveRequests, 2)

	// AND: An employee cannot decide anything, including their own
	queue, err = f.reports.PendingApprovals(ctx, employee)
	require.NoError(t, err)
	assert.Empty(t, queue.LeaveRequests)
	assert.Empty(t, queue.TimeEntries)
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestDashboard_GathersEveryPanel(t *testing.T) {
	// GIVEN: A completed Monday, an open Wednesday shift and a pending request
	f := newFixture(t)
	ctx := context.Background()
	f.shift(t, march(3, 9), march(3, 17))
	_, err := f.leave.Submit(ctx, employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: generic.NewTimePoint(2025, 4, 7), EndDate: generic.NewTimePoint(2025, 4, 9),
	})
	require.NoError(t, err)
	f.now = march(5, 9)
	_, err = f.time.ClockIn(ctx, employee, timetracking.ClockInInput{EmployeeID: "emp-1"})
	require.NoError(t, err)

	// WHEN: The employee opens their dashboard
	d, err := f.reports.Dashboard(ctx, employee, "emp-1")

	// THEN: Every panel is filled
	require.NoError(t, err)
	assert.Equal(t, timetracking.ClockedIn, d.Status.Status)
	require.Len(t, d.Balances, 1)
	assert.True(t, d.ThisWeek.TotalHours.Equal(decimal.NewFromInt(8)))
	require.Len(t, d.OpenRequests, 1)
	assert.Equal(t, leave.StatusPending, d.OpenRequests[0].Status)
}

func TestDashboard_Forbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Dashboard(context.Background(), colleague, "emp-1")

	assert.ErrorIs(t, err, generic.ErrForbidden)
}
