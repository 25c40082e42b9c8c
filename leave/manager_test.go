package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/notify"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/solomon-wilson/hrmis-sub002/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Monday 3 March 2025, 09:00 UTC.
var now = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

var (
	employee = authz.Actor{ID: "u-emp", EmployeeID: "emp-1", Roles: []authz.Role{authz.RoleEmployee}}
	manager  = authz.Actor{ID: "u-mgr", EmployeeID: "mgr-1", Roles: []authz.Role{authz.RoleManager}}
	hr       = authz.Actor{ID: "u-hr", EmployeeID: "hr-1", Roles: []authz.Role{authz.RoleHR}}
)

func date(y int, m time.Month, d int) generic.TimePoint { return generic.NewTimePoint(y, m, d) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func annualPolicy() policy.LeavePolicy {
	limit := decimal.NewFromInt(5)
	return policy.LeavePolicy{
		ID:          "annual-standard",
		Version:     1,
		Name:        "Annual leave",
		LeaveTypeID: "annual",
		Eligibility: policy.EligibilityRules{
			MinTenureDays:   90,
			EmploymentTypes: []generic.EmploymentType{generic.EmploymentFullTime},
		},
		Accrual: policy.AccrualRules{
			Rate:              dec("1.67"),
			Period:            generic.AccrualMonthly,
			AnnualEntitlement: decimal.NewFromInt(20),
			CarryOverLimit:    &limit,
		},
		Usage: policy.UsageRules{
			MaxConsecutiveDays: 10,
			AdvanceNoticeDays:  14,
			MinimumIncrement:   dec("0.5"),
		},
		Active: true,
	}
}

type fixture struct {
	manager   *leave.Manager
	store     *memory.LeaveStore
	policies  *memory.PolicyStore
	employees *memory.EmployeeStore
	events    *notify.Recorder
}

func newFixture(t *testing.T, cfg leave.Config) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return now }

	employees := memory.NewEmployeeStore().WithClock(clock)
	for _, e := range []generic.Employee{
		{ID: "emp-1", Name: "Ada", Email: "ada@example.com", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime, ManagerID: "mgr-1", HireDate: generic.DateOf(now).AddDays(-1800)},
		{ID: "emp-2", Name: "Bob", Email: "bob@example.com", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime, ManagerID: "mgr-1", HireDate: generic.DateOf(now).AddDays(-400)},
		{ID: "mgr-1", Name: "Mia", Email: "mia@example.com", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime, HireDate: generic.DateOf(now).AddDays(-3000)},
	} {
		require.NoError(t, employees.SaveEmployee(ctx, e))
	}

	policies := memory.NewPolicyStore()
	require.NoError(t, policies.SaveLeavePolicy(ctx, annualPolicy()))

	store := memory.NewLeaveStore()
	events := notify.NewRecorder()
	m := leave.NewManager(leave.Deps{
		Store:      store,
		Policies:   policy.NewEngine(policies),
		Directory:  employees,
		Notifier:   events,
		Authorizer: authz.NewRoleAuthorizer(employees),
		Clock:      clock,
	}, cfg)

	return &fixture{manager: m, store: store, policies: policies, employees: employees, events: events}
}

func (f *fixture) submit(t *testing.T, emp generic.EmployeeID, start, end generic.TimePoint) *leave.Request {
	t.Helper()
	actor := authz.Actor{ID: "u-" + string(emp), EmployeeID: emp, Roles: []authz.Role{authz.RoleEmployee}}
	req, err := f.manager.Submit(context.Background(), actor, leave.SubmitInput{
		EmployeeID:  emp,
		LeaveTypeID: "annual",
		StartDate:   start,
		EndDate:     end,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) balance(t *testing.T, emp generic.EmployeeID, year int) *leave.Balance {
	t.Helper()
	b, err := f.manager.GetBalance(context.Background(), generic.BalanceKey{EmployeeID: emp, LeaveTypeID: "annual", Year: year})
	require.NoError(t, err)
	return b
}

// withFiveUsed approves a Monday to Friday request three weeks out.
func (f *fixture) withFiveUsed(t *testing.T) {
	t.Helper()
	req := f.submit(t, "emp-1", date(2025, 3, 24), date(2025, 3, 29))
	_, err := f.manager.Approve(context.Background(), manager, req.ID, leave.ApproveInput{})
	require.NoError(t, err)
	f.events.Reset()
}

// =============================================================================
// SUBMIT AND APPROVE
// =============================================================================

func TestSubmitThenApprove_MovesDaysFromPendingToUsed(t *testing.T) {
	// GIVEN: 1800 days tenure, entitlement 20, 5 days already used
	f := newFixture(t, leave.Config{})
	f.withFiveUsed(t)
	ctx := context.Background()

	// WHEN: 5 working days starting about 30 days out are requested
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))

	// THEN: The days are reserved as pending
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.True(t, req.TotalDays.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, generic.PolicyID("annual-standard"), req.PolicyID)
	assert.Equal(t, 1, req.PolicyVersion)

	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(5)), "pending = %s", b.Pending)
	assert.True(t, b.Available().Equal(decimal.NewFromInt(10)), "available = %s", b.Available())

	// WHEN: The manager approves
	approved, err := f.manager.Approve(ctx, manager, req.ID, leave.ApproveInput{Notes: "enjoy"})
	require.NoError(t, err)

	// THEN: Used grows, pending is released, available is unchanged
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, generic.EmployeeID("mgr-1"), approved.ApproverID)
	b = f.balance(t, "emp-1", 2025)
	assert.True(t, b.Used.Equal(decimal.NewFromInt(10)), "used = %s", b.Used)
	assert.True(t, b.Pending.IsZero(), "pending = %s", b.Pending)
	assert.True(t, b.Available().Equal(decimal.NewFromInt(10)))

	require.Len(t, f.events.OfKind(notify.KindLeaveRequestSubmitted), 1)
	require.Len(t, f.events.OfKind(notify.KindPendingLeaveApproval), 1)
	require.Len(t, f.events.OfKind(notify.KindLeaveRequestApproved), 1)
	pending := f.events.OfKind(notify.KindPendingLeaveApproval)[0].(notify.PendingLeaveApproval)
	assert.Equal(t, generic.EmployeeID("mgr-1"), pending.ManagerID)
	assert.Equal(t, []string{"MANAGER"}, pending.Tiers)
}

func TestSubmit_DefaultsTotalDaysToWorkdays(t *testing.T) {
	f := newFixture(t, leave.Config{})
	// Thursday to the following Tuesday: Thu, Fri, Mon
	req := f.submit(t, "emp-1", date(2025, 4, 10), date(2025, 4, 15))
	assert.True(t, req.TotalDays.Equal(decimal.NewFromInt(3)), "total = %s", req.TotalDays)
}

func TestSubmit_HolidaysAreNotCharged(t *testing.T) {
	f := newFixture(t, leave.Config{})
	holidays := memory.NewHolidays(generic.Holiday{ID: "h1", Date: date(2025, 4, 18), Name: "Good Friday"})
	m := leave.NewManager(leave.Deps{
		Store:     f.store,
		Policies:  policy.NewEngine(f.policies),
		Directory: f.employees,
		Holidays:  holidays,
		Clock:     func() time.Time { return now },
	}, leave.Config{})

	req, err := m.Submit(context.Background(), employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: date(2025, 4, 14), EndDate: date(2025, 4, 19),
	})

	require.NoError(t, err)
	assert.True(t, req.TotalDays.Equal(decimal.NewFromInt(4)))
}

func TestSubmit_WeekendOnlyRange_ValidationError(t *testing.T) {
	f := newFixture(t, leave.Config{})
	_, err := f.manager.Submit(context.Background(), employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: date(2025, 4, 12), EndDate: date(2025, 4, 14),
	})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestSubmit_EndNotAfterStart_ValidationError(t *testing.T) {
	f := newFixture(t, leave.Config{})
	_, err := f.manager.Submit(context.Background(), employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: date(2025, 4, 14), EndDate: date(2025, 4, 14),
	})

	var verrs generic.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.ToMap(), "end_date")
}

func TestSubmit_InsufficientBalance_NothingPersisted(t *testing.T) {
	// GIVEN: HR took 12 days away, leaving 8
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}
	_, err := f.manager.AdjustBalance(ctx, hr, leave.AdjustInput{Key: key, Delta: decimal.NewFromInt(-12), Reason: "migration"})
	require.NoError(t, err)

	// WHEN: 10 days are requested
	_, err = f.manager.Submit(ctx, employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: date(2025, 4, 7), EndDate: date(2025, 4, 19),
	})

	// THEN: The violation is reported and the balance is untouched
	assert.ErrorIs(t, err, generic.ErrPolicyViolation)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	var pv *generic.PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.True(t, pv.Has(generic.ViolationInsufficientBalance))
	assert.Contains(t, pv.Recommendations, "Reduce the request to at most 8 days")

	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Pending.IsZero())
	reqs, err := f.manager.ListRequests(ctx, leave.RequestFilter{EmployeeIDs: []generic.EmployeeID{"emp-1"}})
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Len(t, f.events.OfKind(notify.KindPolicyViolation), 1)
}

func TestSubmit_ReportsEveryViolationTogether(t *testing.T) {
	// GIVEN: A pending request for the same week
	f := newFixture(t, leave.Config{})
	existing := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))

	// WHEN: An overlapping request also starts too soon
	_, err := f.manager.Submit(context.Background(), employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: date(2025, 3, 5), EndDate: date(2025, 4, 9),
		TotalDays: ptr(decimal.NewFromInt(4)),
	})

	// THEN: Both the notice rule and the overlap are reported
	var pv *generic.PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.True(t, pv.Has(generic.ViolationAdvanceNotice))
	assert.True(t, pv.Has(generic.ViolationOverlappingRequest))
	found := false
	for _, v := range pv.Violations {
		if v.Code == generic.ViolationOverlappingRequest {
			assert.Contains(t, v.Message, existing.ID)
			found = true
		}
	}
	assert.True(t, found)
}

func TestSubmit_ForOtherEmployee_Forbidden(t *testing.T) {
	f := newFixture(t, leave.Config{})
	_, err := f.manager.Submit(context.Background(), employee, leave.SubmitInput{
		EmployeeID: "emp-2", LeaveTypeID: "annual",
		StartDate: date(2025, 4, 7), EndDate: date(2025, 4, 12),
	})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestSubmit_LowBalanceAndTeamConflictEvents(t *testing.T) {
	// GIVEN: Bob from the same department has approved leave that week
	f := newFixture(t, leave.Config{LowBalanceThreshold: decimal.NewFromInt(16)})
	bob := f.submit(t, "emp-2", date(2025, 4, 9), date(2025, 4, 11))
	_, err := f.manager.Approve(context.Background(), manager, bob.ID, leave.ApproveInput{})
	require.NoError(t, err)
	f.events.Reset()

	// WHEN: Ada requests the same week
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))

	// THEN: The manager hears about the overlap and Ada about her balance
	conflicts := f.events.OfKind(notify.KindTeamLeaveConflict)
	require.Len(t, conflicts, 1)
	c := conflicts[0].(notify.TeamLeaveConflict)
	assert.Equal(t, req.ID, c.RequestID)
	assert.Equal(t, generic.EmployeeID("mgr-1"), c.Recipient())
	assert.Equal(t, []generic.EmployeeID{"emp-2"}, c.ConflictingEmployees)

	low := f.events.OfKind(notify.KindLeaveBalanceLow)
	require.Len(t, low, 1)
	assert.True(t, low[0].(notify.LeaveBalanceLow).Available.Equal(decimal.NewFromInt(15)))
}

// =============================================================================
// DECISIONS
// =============================================================================

func TestApprove_PartialDays(t *testing.T) {
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))

	// WHEN: Only Monday to Wednesday is approved
	end := date(2025, 4, 10)
	approved, err := f.manager.Approve(context.Background(), manager, req.ID, leave.ApproveInput{EndDate: &end})

	// THEN: Three days are charged and the rest released
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPartiallyApproved, approved.Status)
	assert.True(t, approved.TotalDays.Equal(decimal.NewFromInt(3)))
	assert.True(t, approved.RequestedDays.Equal(decimal.NewFromInt(5)))
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Used.Equal(decimal.NewFromInt(3)))
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Available().Equal(decimal.NewFromInt(17)))
}

func TestApprove_ShortenedExplicitTotal_NeverChargesMoreThanRequested(t *testing.T) {
	cases := []struct {
		name    string
		total   string
		end     generic.TimePoint
		charged string
	}{
		// Four workdays remain but only a day and a half was asked for
		{name: "partial days", total: "1.5", end: date(2025, 3, 28), charged: "1.5"},
		// Two workdays remain out of three requested
		{name: "fewer workdays", total: "3", end: date(2025, 3, 26), charged: "2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN: A Monday to Friday request with an explicit total
			f := newFixture(t, leave.Config{})
			ctx := context.Background()
			total := dec(tc.total)
			req, err := f.manager.Submit(ctx, employee, leave.SubmitInput{
				EmployeeID:  "emp-1",
				LeaveTypeID: "annual",
				StartDate:   date(2025, 3, 24),
				EndDate:     date(2025, 3, 29),
				TotalDays:   &total,
			})
			require.NoError(t, err)

			// WHEN: The manager shortens the range
			end := tc.end
			approved, err := f.manager.Approve(ctx, manager, req.ID, leave.ApproveInput{EndDate: &end})

			// THEN: At most the requested days are charged
			require.NoError(t, err)
			assert.Equal(t, leave.StatusPartiallyApproved, approved.Status)
			assert.True(t, approved.TotalDays.Equal(dec(tc.charged)), "approved = %s", approved.TotalDays)
			assert.False(t, approved.TotalDays.GreaterThan(total))
			assert.True(t, approved.RequestedDays.Equal(total))
			b := f.balance(t, "emp-1", 2025)
			assert.True(t, b.Used.Equal(dec(tc.charged)), "used = %s", b.Used)
			assert.True(t, b.Pending.IsZero())
			assert.True(t, b.Available().Equal(decimal.NewFromInt(20).Sub(dec(tc.charged))))
		})
	}
}

func TestApprove_ShortenedRange_SkipsCompanyHolidays(t *testing.T) {
	// GIVEN: emp-1 works for acme, which is closed on Wednesday 9 April.
	// Another company's Tuesday holiday does not apply.
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	emp, err := f.employees.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	emp.CompanyID = "acme"
	require.NoError(t, f.employees.SaveEmployee(ctx, emp))

	holidays := memory.NewHolidays(
		generic.Holiday{ID: "h1", CompanyID: "acme", Date: date(2025, 4, 9), Name: "Founders Day"},
		generic.Holiday{ID: "h2", CompanyID: "globex", Date: date(2025, 4, 8), Name: "Globex Day"},
	)
	m := leave.NewManager(leave.Deps{
		Store:      f.store,
		Policies:   policy.NewEngine(f.policies),
		Directory:  f.employees,
		Holidays:   holidays,
		Authorizer: authz.NewRoleAuthorizer(f.employees),
		Clock:      func() time.Time { return now },
	}, leave.Config{})

	req, err := m.Submit(ctx, employee, leave.SubmitInput{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: date(2025, 4, 7), EndDate: date(2025, 4, 12),
	})
	require.NoError(t, err)
	require.True(t, req.TotalDays.Equal(decimal.NewFromInt(4)), "total = %s", req.TotalDays)

	// WHEN: Only Monday to Wednesday is approved
	end := date(2025, 4, 10)
	approved, err := m.Approve(ctx, manager, req.ID, leave.ApproveInput{EndDate: &end})

	// THEN: Monday and Tuesday are charged, the acme holiday is not
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPartiallyApproved, approved.Status)
	assert.True(t, approved.TotalDays.Equal(decimal.NewFromInt(2)), "approved = %s", approved.TotalDays)
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Used.Equal(decimal.NewFromInt(2)), "used = %s", b.Used)
	assert.True(t, b.Available().Equal(decimal.NewFromInt(18)))
}

func TestApprove_ApprovedDaysBeyondShortenedRange_ValidationError(t *testing.T) {
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	end := date(2025, 4, 9)

	_, err := f.manager.Approve(context.Background(), manager, req.ID, leave.ApproveInput{
		EndDate:      &end,
		ApprovedDays: ptr(decimal.NewFromInt(4)),
	})

	assert.ErrorIs(t, err, generic.ErrValidation)
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Used.IsZero())
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(5)))
}

func TestApprove_MoreThanRequested_ValidationError(t *testing.T) {
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	_, err := f.manager.Approve(context.Background(), manager, req.ID, leave.ApproveInput{ApprovedDays: ptr(decimal.NewFromInt(6))})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestApprove_AlreadyDecided_StateConflict(t *testing.T) {
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	_, err := f.manager.Approve(context.Background(), manager, req.ID, leave.ApproveInput{})
	require.NoError(t, err)

	_, err = f.manager.Approve(context.Background(), manager, req.ID, leave.ApproveInput{})

	var sc *generic.StateConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "APPROVED", sc.Current)
}

func TestApprove_ByRequester_Forbidden(t *testing.T) {
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	_, err := f.manager.Approve(context.Background(), employee, req.ID, leave.ApproveInput{})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestApprove_ConcurrentCallsApplyOnce(t *testing.T) {
	// GIVEN: One pending request
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))

	// WHEN: Two approvals race
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.Approve(context.Background(), manager, req.ID, leave.ApproveInput{})
		}(i)
	}
	wg.Wait()

	// THEN: Exactly one wins and the days are charged once
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, generic.ErrStateConflict)
		}
	}
	assert.Equal(t, 1, succeeded)
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Used.Equal(decimal.NewFromInt(5)))
	assert.True(t, b.Pending.IsZero())
}

func TestReject_ReleasesPendingAndRecordsAlternative(t *testing.T) {
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))

	altStart, altEnd := date(2025, 5, 5), date(2025, 5, 10)
	rejected, err := f.manager.Reject(context.Background(), manager, req.ID, leave.RejectInput{
		Reason:           "release week",
		AlternativeStart: &altStart,
		AlternativeEnd:   &altEnd,
	})

	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, "release week", rejected.RejectionReason)
	assert.Contains(t, rejected.ManagerNotes, "2025-05-05 to 2025-05-09")
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Available().Equal(decimal.NewFromInt(20)))
	require.Len(t, f.events.OfKind(notify.KindLeaveRequestRejected), 1)
}

func TestReject_WithoutReason_ValidationError(t *testing.T) {
	f := newFixture(t, leave.Config{})
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	_, err := f.manager.Reject(context.Background(), manager, req.ID, leave.RejectInput{})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCancel_ApprovedRequestRestoresDays(t *testing.T) {
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	_, err := f.manager.Approve(ctx, manager, req.ID, leave.ApproveInput{})
	require.NoError(t, err)

	cancelled, err := f.manager.Cancel(ctx, employee, req.ID, "plans changed")

	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Used.IsZero())
	assert.True(t, b.Available().Equal(decimal.NewFromInt(20)))

	ev := f.events.OfKind(notify.KindLeaveRequestCancelled)
	require.Len(t, ev, 1)
	assert.Equal(t, "APPROVED", ev[0].(notify.LeaveRequestCancelled).PreviousStatus)

	// Cancelling twice is refused
	_, err = f.manager.Cancel(ctx, employee, req.ID, "")
	assert.ErrorIs(t, err, generic.ErrStateConflict)
}

func TestCancel_PendingRequestReleasesReservation(t *testing.T) {
	// GIVEN: A balance with five days already used
	f := newFixture(t, leave.Config{})
	f.withFiveUsed(t)
	before := *f.balance(t, "emp-1", 2025)

	// WHEN: A request is submitted then cancelled while pending
	req := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	_, err := f.manager.Cancel(context.Background(), employee, req.ID, "")

	// THEN: The balance is exactly what it was before the submit
	require.NoError(t, err)
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Pending.Equal(before.Pending), "pending = %s", b.Pending)
	assert.True(t, b.Used.Equal(before.Used), "used = %s", b.Used)
	assert.True(t, b.Entitlement.Equal(before.Entitlement))
	assert.True(t, b.Available().Equal(before.Available()), "available = %s", b.Available())

	// The freed dates can be requested again
	f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedgerReplay_MatchesBalanceRow(t *testing.T) {
	// GIVEN: A mix of grant, pending, approval, rejection, cancel, adjustment
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	f.withFiveUsed(t)
	a := f.submit(t, "emp-1", date(2025, 4, 7), date(2025, 4, 12))
	b := f.submit(t, "emp-1", date(2025, 5, 5), date(2025, 5, 7))
	c := f.submit(t, "emp-1", date(2025, 6, 2), date(2025, 6, 4))
	end := date(2025, 4, 9)
	_, err := f.manager.Approve(ctx, manager, a.ID, leave.ApproveInput{EndDate: &end})
	require.NoError(t, err)
	_, err = f.manager.Reject(ctx, manager, b.ID, leave.RejectInput{Reason: "no"})
	require.NoError(t, err)
	_, err = f.manager.Cancel(ctx, employee, c.ID, "")
	require.NoError(t, err)
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}
	_, err = f.manager.AdjustBalance(ctx, hr, leave.AdjustInput{Key: key, Delta: dec("1.5"), Reason: "bonus"})
	require.NoError(t, err)

	// WHEN: The ledger is replayed
	ok, replayed, err := f.manager.Reconcile(ctx, key)

	// THEN: It reproduces the stored row
	require.NoError(t, err)
	assert.True(t, ok)
	row := f.balance(t, "emp-1", 2025)
	assert.True(t, replayed.Used.Value.Equal(row.Used))
	assert.True(t, row.Available().Equal(dec("14.5")), "available = %s", row.Available())

	history, err := f.manager.History(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, generic.TxGrant, history[0].Type)
	for _, tx := range history {
		assert.NotEmpty(t, tx.CreatedBy)
	}
}

func TestAdjustBalance_Rules(t *testing.T) {
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}

	_, err := f.manager.AdjustBalance(ctx, hr, leave.AdjustInput{Key: key, Delta: decimal.NewFromInt(2)})
	assert.ErrorIs(t, err, generic.ErrValidation, "reason is required")

	_, err = f.manager.AdjustBalance(ctx, hr, leave.AdjustInput{Key: key, Delta: decimal.NewFromInt(-21), Reason: "x"})
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)

	_, err = f.manager.AdjustBalance(ctx, manager, leave.AdjustInput{Key: key, Delta: decimal.NewFromInt(1), Reason: "x"})
	assert.ErrorIs(t, err, generic.ErrForbidden)

	b, err := f.manager.AdjustBalance(ctx, hr, leave.AdjustInput{Key: key, Delta: decimal.NewFromInt(-20), Reason: "x"})
	require.NoError(t, err)
	assert.True(t, b.Available().IsZero())
}

// =============================================================================
// ROUTING
// =============================================================================

func TestRouteLeaveRequest_Tiers(t *testing.T) {
	tests := []struct {
		days string
		want []string
	}{
		{"1", []string{"MANAGER"}},
		{"5", []string{"MANAGER"}},
		{"5.5", []string{"MANAGER", "HR"}},
		{"10", []string{"MANAGER", "HR"}},
		{"11", []string{"MANAGER", "HR", "DIRECTOR"}},
	}
	for _, tt := range tests {
		t.Run(tt.days, func(t *testing.T) {
			assert.Equal(t, tt.want, leave.RouteLeaveRequest(dec(tt.days)).TierNames())
		})
	}
}

func ptr[T any](v T) *T { return &v }
