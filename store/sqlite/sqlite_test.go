package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/solomon-wilson/hrmis-sub002/store/sqlite"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 3 March 2025, 09:00 UTC.
var now = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.WithClock(clock)
}

func seed(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	for _, e := range []generic.Employee{
		{ID: "emp-1", Name: "Ada", Email: "ada@example.com", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime, ManagerID: "mgr-1", HireDate: generic.NewTimePoint(2020, 1, 6)},
		{ID: "mgr-1", Name: "Mia", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime, HireDate: generic.NewTimePoint(2018, 1, 8)},
	} {
		require.NoError(t, s.SaveEmployee(ctx, e))
	}
	require.NoError(t, s.SaveLeavePolicy(ctx, policy.LeavePolicy{
		ID:          "annual-standard",
		Name:        "Annual leave",
		LeaveTypeID: "annual",
		Accrual: policy.AccrualRules{
			Rate:              decimal.RequireFromString("1.67"),
			Period:            generic.AccrualMonthly,
			AnnualEntitlement: decimal.NewFromInt(20),
		},
		Active: true,
	}))
}

var (
	employee = authz.Actor{ID: "u-emp", EmployeeID: "emp-1", Roles: []authz.Role{authz.RoleEmployee}}
	manager  = authz.Actor{ID: "u-mgr", EmployeeID: "mgr-1", Roles: []authz.Role{authz.RoleManager}}
)

// =============================================================================
// VERSIONING AND LEDGER
// =============================================================================

func TestSaveRequest_StaleVersionIsRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	req := &leave.Request{
		ID: "req-1", EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: generic.NewTimePoint(2025, 4, 7), EndDate: generic.NewTimePoint(2025, 4, 12),
		TotalDays: decimal.NewFromInt(5), RequestedDays: decimal.NewFromInt(5),
		Status: leave.StatusPending, SubmittedAt: now, UpdatedAt: now,
		Route: leave.RouteLeaveRequest(decimal.NewFromInt(5)),
	}
	require.NoError(t, s.SaveRequest(ctx, req))
	assert.Equal(t, 1, req.Version)

	stale := *req
	req.Status = leave.StatusApproved
	require.NoError(t, s.SaveRequest(ctx, req))
	assert.Equal(t, 2, req.Version)

	stale.Status = leave.StatusRejected
	err := s.SaveRequest(ctx, &stale)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	got, err := s.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, []leave.ApproverTier{leave.TierManager}, got.Route.Tiers)
	assert.True(t, got.StartDate.Equal(req.StartDate))
}

func TestSaveBalance_InsertTwiceConflicts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}

	first := leave.NewBalance(key)
	first.Entitlement = decimal.RequireFromString("20.5")
	require.NoError(t, s.SaveBalance(ctx, &first))
	second := leave.NewBalance(key)

	assert.ErrorIs(t, s.SaveBalance(ctx, &second), generic.ErrConcurrentModification)
	got, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.Entitlement.Equal(decimal.RequireFromString("20.5")))

	_, err = s.GetBalance(ctx, generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2024})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestAppendBatch_DuplicateKeyWritesNothing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}
	row := func(id, idem string) generic.Transaction {
		return generic.Transaction{
			ID: generic.TransactionID(id), Key: key, Component: generic.ComponentEntitlement,
			Type: generic.TxAccrual, Delta: generic.Days(1.67), EffectiveAt: generic.NewTimePoint(2025, 2, 1),
			IdempotencyKey: idem, Metadata: map[string]string{"period": "2025-02"}, CreatedAt: now,
		}
	}
	require.NoError(t, s.Append(ctx, row("tx-1", "accrual:feb")))

	err := s.AppendBatch(ctx, []generic.Transaction{row("tx-2", "accrual:mar"), row("tx-3", "accrual:feb")})

	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	txs, err := s.LoadLedger(ctx, key)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "2025-02", txs[0].Metadata["period"])
	assert.True(t, txs[0].Delta.Value.Equal(decimal.RequireFromString("1.67")))
	exists, err := s.Exists(ctx, "accrual:mar")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(st leave.Store) error {
		b := leave.NewBalance(key)
		if err := st.SaveBalance(ctx, &b); err != nil {
			return err
		}
		if _, err := st.GetBalance(ctx, key); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = s.GetBalance(ctx, key)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// SERVICES ON SQLITE
// =============================================================================

func TestLeaveLifecycle(t *testing.T) {
	// GIVEN: A seeded database
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()
	m := leave.NewManager(leave.Deps{
		Store:      s,
		Policies:   policy.NewEngine(s),
		Directory:  s,
		Holidays:   s,
		Authorizer: authz.NewRoleAuthorizer(s),
		Clock:      clock,
	}, leave.Config{})

	// WHEN: A week is requested and approved
	req, err := m.Submit(ctx, employee, leave.SubmitInput{
		EmployeeID:  "emp-1",
		LeaveTypeID: "annual",
		StartDate:   generic.NewTimePoint(2025, 4, 7),
		EndDate:     generic.NewTimePoint(2025, 4, 12),
	})
	require.NoError(t, err)
	approved, err := m.Approve(ctx, manager, req.ID, leave.ApproveInput{})
	require.NoError(t, err)

	// THEN: The balance row and its ledger agree
	assert.Equal(t, leave.StatusApproved, approved.Status)
	key := req.BalanceKey()
	b, err := m.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.Used.Equal(decimal.NewFromInt(5)))
	assert.True(t, b.Pending.IsZero())
	ok, _, err := m.Reconcile(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	pending, err := m.ListRequests(ctx, leave.RequestFilter{Statuses: []leave.Status{leave.StatusPending}})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTimeEntryLifecycle(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()
	current := now
	svc := timetracking.NewService(timetracking.Deps{
		Store:      s,
		Policies:   s,
		Directory:  s,
		Authorizer: authz.NewRoleAuthorizer(s),
		Clock:      func() time.Time { return current },
	}, timetracking.DefaultConfig())

	_, err := svc.ClockIn(ctx, employee, timetracking.ClockInInput{EmployeeID: "emp-1"})
	require.NoError(t, err)
	current = now.Add(3 * time.Hour)
	_, err = svc.StartBreak(ctx, employee, timetracking.StartBreakInput{EmployeeID: "emp-1", Type: timetracking.BreakLunch})
	require.NoError(t, err)
	current = current.Add(30 * time.Minute)
	_, err = svc.EndBreak(ctx, employee, timetracking.EndBreakInput{EmployeeID: "emp-1"})
	require.NoError(t, err)
	current = now.Add(8*time.Hour + 30*time.Minute)

	res, err := svc.ClockOut(ctx, employee, timetracking.ClockOutInput{EmployeeID: "emp-1"})

	require.NoError(t, err)
	assert.True(t, res.Entry.TotalHours.Equal(decimal.NewFromInt(8)))
	stored, err := s.GetEntry(ctx, res.Entry.ID)
	require.NoError(t, err)
	completed, ok := stored.(*timetracking.CompletedEntry)
	require.True(t, ok)
	assert.Equal(t, 2, completed.Version)
	require.Len(t, completed.Breaks, 1)
	assert.Equal(t, 30, completed.Breaks[0].DurationMinutes)
	assert.True(t, completed.ClockIn.Equal(now))

	active, err := s.ListEntries(ctx, timetracking.EntryFilter{Statuses: []timetracking.EntryStatus{timetracking.StatusActive}})
	require.NoError(t, err)
	assert.Empty(t, active)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func TestPolicies_ResaveBumpsVersion(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	ot := overtime.DefaultPolicy()
	ot.ID = "eng-overtime"
	ot.Groups = generic.GroupFilter{Departments: []string{"eng"}}
	require.NoError(t, s.SaveOvertimePolicy(ctx, ot))
	require.NoError(t, s.SaveOvertimePolicy(ctx, ot))

	rec, err := s.FindByID(ctx, "eng-overtime")
	require.NoError(t, err)
	assert.Equal(t, policy.KindOvertime, rec.Kind)
	assert.Equal(t, 2, rec.Version())
	assert.True(t, rec.Overtime.DailyThreshold.Equal(decimal.NewFromInt(8)))

	active, err := s.FindActiveOvertimePolicies(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"eng"}, active[0].Groups.Departments)

	leaves, err := s.FindLeavePoliciesByType(ctx, "annual")
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, 1, leaves[0].Version)

	err = s.SaveOvertimePolicy(ctx, func() overtime.Policy { p := overtime.DefaultPolicy(); p.ID = "annual-standard"; return p }())
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestDirectory(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	g, err := s.GetEmployeeGroupData(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, generic.DaysBetween(generic.NewTimePoint(2020, 1, 6), generic.DateOf(now)), g.TenureDays)

	mgr, err := s.GetManagerID(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, generic.EmployeeID("mgr-1"), mgr)

	members, err := s.ListDepartmentMembers(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, []generic.EmployeeID{"emp-1", "mgr-1"}, members)

	_, err = s.GetEmployee(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestHolidays_CompanyGlobalAndRecurring(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddHoliday(ctx, generic.Holiday{Date: generic.NewTimePoint(2020, 12, 25), Name: "Christmas", Recurring: true}))
	require.NoError(t, s.AddHoliday(ctx, generic.Holiday{CompanyID: "acme", Date: generic.NewTimePoint(2025, 4, 18), Name: "Founders day"}))

	assert.True(t, s.IsHoliday("acme", generic.NewTimePoint(2025, 12, 25)))
	assert.True(t, s.IsHoliday("acme", generic.NewTimePoint(2025, 4, 18)))
	assert.False(t, s.IsHoliday("other", generic.NewTimePoint(2025, 4, 18)))
	assert.False(t, s.IsHoliday("acme", generic.NewTimePoint(2026, 4, 18)))

	list, err := s.ListHolidays(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	seed(t, s)
	ids, err := s.ListEmployees(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
