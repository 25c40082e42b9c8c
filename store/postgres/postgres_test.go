package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/solomon-wilson/hrmis-sub002/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable database:
//
//	TEST_DATABASE_URL=postgres://hr:hr@localhost:5432/hr_test go test ./store/postgres/
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := postgres.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// unique prefixes IDs so runs against a shared database do not collide.
func unique(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func TestSaveRequest_StaleVersionIsRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	req := &leave.Request{
		ID: unique("req"), EmployeeID: "emp-1", LeaveTypeID: "annual",
		StartDate: generic.NewTimePoint(2025, 4, 7), EndDate: generic.NewTimePoint(2025, 4, 12),
		TotalDays: decimal.RequireFromString("4.5"), RequestedDays: decimal.NewFromInt(5),
		Status: leave.StatusPending, SubmittedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.SaveRequest(ctx, req))
	stale := *req
	req.Status = leave.StatusApproved
	require.NoError(t, s.SaveRequest(ctx, req))

	assert.ErrorIs(t, s.SaveRequest(ctx, &stale), generic.ErrConcurrentModification)
	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.True(t, got.TotalDays.Equal(decimal.RequireFromString("4.5")))
	assert.True(t, got.EndDate.Equal(generic.NewTimePoint(2025, 4, 12)))
	assert.True(t, got.SubmittedAt.Equal(now))
}

func TestAppendBatch_DuplicateKeyWritesNothing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: generic.EmployeeID(unique("emp")), LeaveTypeID: "annual", Year: 2025}
	feb := unique("accrual")
	row := func(idem string) generic.Transaction {
		return generic.Transaction{
			ID: generic.TransactionID(uuid.NewString()), Key: key, Component: generic.ComponentEntitlement,
			Type: generic.TxAccrual, Delta: generic.Days(1.67), EffectiveAt: generic.NewTimePoint(2025, 2, 1),
			IdempotencyKey: idem, CreatedAt: time.Now(),
		}
	}
	require.NoError(t, s.Append(ctx, row(feb)))

	err := s.AppendBatch(ctx, []generic.Transaction{row(unique("accrual")), row(feb)})

	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	txs, err := s.LoadLedger(ctx, key)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Delta.Value.Equal(decimal.RequireFromString("1.67")))
}

// Two processes approving against the same balance queue on the advisory
// lock; the counter below would lose updates without it.
func TestLockBalance_SerializesTransactions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: generic.EmployeeID(unique("emp")), LeaveTypeID: "annual", Year: 2025}
	b := leave.NewBalance(key)
	require.NoError(t, s.SaveBalance(ctx, &b))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(st leave.Store) error {
				if err := st.LockBalance(ctx, key); err != nil {
					return err
				}
				cur, err := st.GetBalance(ctx, key)
				if err != nil {
					return err
				}
				cur.Used = cur.Used.Add(decimal.NewFromInt(1))
				return st.SaveBalance(ctx, cur)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.Used.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 6, got.Version)
}

func TestLeaveLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	emp, mgr := generic.EmployeeID(unique("emp")), generic.EmployeeID(unique("mgr"))
	require.NoError(t, s.SaveEmployee(ctx, generic.Employee{ID: mgr, DepartmentID: "eng", HireDate: generic.NewTimePoint(2018, 1, 8)}))
	require.NoError(t, s.SaveEmployee(ctx, generic.Employee{ID: emp, DepartmentID: "eng", ManagerID: mgr, HireDate: generic.NewTimePoint(2020, 1, 6)}))
	leaveType := generic.LeaveTypeID(unique("annual"))
	require.NoError(t, s.SaveLeavePolicy(ctx, policy.LeavePolicy{
		ID:          generic.PolicyID(unique("policy")),
		LeaveTypeID: leaveType,
		Accrual:     policy.AccrualRules{Period: generic.AccrualNone, AnnualEntitlement: decimal.NewFromInt(20)},
		Active:      true,
	}))
	m := leave.NewManager(leave.Deps{
		Store:      s,
		Policies:   policy.NewEngine(s),
		Directory:  s,
		Holidays:   s,
		Authorizer: authz.NewRoleAuthorizer(s),
		Clock:      func() time.Time { return time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC) },
	}, leave.Config{})

	req, err := m.Submit(ctx, authz.Actor{ID: "u", EmployeeID: emp, Roles: []authz.Role{authz.RoleEmployee}}, leave.SubmitInput{
		EmployeeID: emp, LeaveTypeID: leaveType,
		StartDate: generic.NewTimePoint(2025, 4, 7), EndDate: generic.NewTimePoint(2025, 4, 12),
	})
	require.NoError(t, err)
	_, err = m.Approve(ctx, authz.Actor{ID: "m", EmployeeID: mgr, Roles: []authz.Role{authz.RoleManager}}, req.ID, leave.ApproveInput{})
	require.NoError(t, err)

	b, err := m.GetBalance(ctx, req.BalanceKey())
	require.NoError(t, err)
	assert.True(t, b.Used.Equal(decimal.NewFromInt(5)))
	ok, _, err := m.Reconcile(ctx, req.BalanceKey())
	require.NoError(t, err)
	assert.True(t, ok)
}
