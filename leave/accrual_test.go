package leave_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sickPolicy(mutate func(*policy.LeavePolicy)) policy.LeavePolicy {
	p := policy.LeavePolicy{
		ID:          "sick-standard",
		Version:     1,
		Name:        "Sick leave",
		LeaveTypeID: "sick",
		Accrual: policy.AccrualRules{
			Rate:              decimal.NewFromInt(1),
			Period:            generic.AccrualMonthly,
			AnnualEntitlement: decimal.NewFromInt(20),
		},
		Active: true,
	}
	if mutate != nil {
		mutate(&p)
	}
	return p
}

func sickKey(emp generic.EmployeeID) generic.BalanceKey {
	return generic.BalanceKey{EmployeeID: emp, LeaveTypeID: "sick", Year: 2025}
}

func outcomeFor(t *testing.T, res leave.AccrualResult, key generic.BalanceKey) leave.AccrualOutcome {
	t.Helper()
	for _, o := range res.Accrued {
		if o.Key == key {
			return o
		}
	}
	t.Fatalf("no accrual outcome for %s", key)
	return leave.AccrualOutcome{}
}

func TestProcessAutomaticAccrual_CreditsDuePeriodsOnce(t *testing.T) {
	// GIVEN: An annual balance opened this year, never accrued
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}
	_, err := f.manager.EnsureBalance(ctx, hr, key)
	require.NoError(t, err)

	// WHEN: Accrual runs on April 1st
	res, err := f.manager.ProcessAutomaticAccrual(ctx, hr, leave.AccrualInput{AsOf: date(2025, 4, 1)})

	// THEN: February, March and April are credited
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	out := outcomeFor(t, res, key)
	assert.Len(t, out.Periods, 3)
	assert.True(t, out.Credited.Equal(dec("5.01")), "credited = %s", out.Credited)
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Entitlement.Equal(dec("25.01")))
	require.NotNil(t, b.LastAccrualDate)
	assert.Equal(t, "2025-04-01", b.LastAccrualDate.String())

	// WHEN: It runs again for the same date
	res, err = f.manager.ProcessAutomaticAccrual(ctx, hr, leave.AccrualInput{AsOf: date(2025, 4, 1)})

	// THEN: Nothing more is credited
	require.NoError(t, err)
	assert.Empty(t, res.Accrued)
	assert.True(t, f.balance(t, "emp-1", 2025).Entitlement.Equal(dec("25.01")))

	ok, _, err := f.manager.Reconcile(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcessAutomaticAccrual_DryRunChangesNothing(t *testing.T) {
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	key := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}
	_, err := f.manager.EnsureBalance(ctx, hr, key)
	require.NoError(t, err)

	res, err := f.manager.ProcessAutomaticAccrual(ctx, hr, leave.AccrualInput{AsOf: date(2025, 3, 1), DryRun: true})

	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.True(t, outcomeFor(t, res, key).Credited.Equal(dec("3.34")))
	b := f.balance(t, "emp-1", 2025)
	assert.True(t, b.Entitlement.Equal(decimal.NewFromInt(20)))
	assert.Nil(t, b.LastAccrualDate)
}

func TestProcessAutomaticAccrual_CapsAtMaxBalance(t *testing.T) {
	// GIVEN: Sick leave capped at 21.5 available days
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	require.NoError(t, f.policies.SaveLeavePolicy(ctx, sickPolicy(func(p *policy.LeavePolicy) {
		p.Accrual.MaxBalance = ptr(dec("21.5"))
	})))
	_, err := f.manager.EnsureBalance(ctx, hr, sickKey("emp-1"))
	require.NoError(t, err)

	// WHEN: Three monthly periods fall due
	res, err := f.manager.ProcessAutomaticAccrual(ctx, hr, leave.AccrualInput{AsOf: date(2025, 4, 1), EmployeeID: "emp-1"})

	// THEN: Credits stop at the cap
	require.NoError(t, err)
	out := outcomeFor(t, res, sickKey("emp-1"))
	assert.True(t, out.Capped)
	assert.True(t, out.Credited.Equal(dec("1.5")), "credited = %s", out.Credited)
	b, err := f.manager.GetBalance(ctx, sickKey("emp-1"))
	require.NoError(t, err)
	assert.True(t, b.Available().Equal(dec("21.5")))
}

func TestProcessAutomaticAccrual_WaitingPeriodSkipsEarlyPeriods(t *testing.T) {
	// GIVEN: A hire from January 20th and a 30 day waiting period
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	require.NoError(t, f.employees.SaveEmployee(ctx, generic.Employee{
		ID: "new-1", DepartmentID: "eng", EmploymentType: generic.EmploymentFullTime,
		ManagerID: "mgr-1", HireDate: date(2025, 1, 20),
	}))
	require.NoError(t, f.policies.SaveLeavePolicy(ctx, sickPolicy(func(p *policy.LeavePolicy) {
		p.Accrual.WaitingPeriodDays = 30
	})))
	_, err := f.manager.EnsureBalance(ctx, hr, sickKey("new-1"))
	require.NoError(t, err)

	// WHEN: Accrual runs on March 1st
	res, err := f.manager.ProcessAutomaticAccrual(ctx, hr, leave.AccrualInput{AsOf: date(2025, 3, 1), EmployeeID: "new-1"})

	// THEN: February is skipped, March is credited, and February is not revisited later
	require.NoError(t, err)
	out := outcomeFor(t, res, sickKey("new-1"))
	assert.Equal(t, 1, out.Waiting)
	assert.True(t, out.Credited.Equal(decimal.NewFromInt(1)))

	res, err = f.manager.ProcessAutomaticAccrual(ctx, hr, leave.AccrualInput{AsOf: date(2025, 3, 1), EmployeeID: "new-1"})
	require.NoError(t, err)
	assert.Empty(t, res.Accrued)
}

func TestProcessAutomaticAccrual_FailureDoesNotStopRun(t *testing.T) {
	// GIVEN: One healthy balance and one whose policy no longer exists
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	good := generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}
	_, err := f.manager.EnsureBalance(ctx, hr, good)
	require.NoError(t, err)
	orphan := leave.NewBalance(generic.BalanceKey{EmployeeID: "emp-2", LeaveTypeID: "annual", Year: 2025})
	orphan.PolicyID = "deleted-policy"
	require.NoError(t, f.store.SaveBalance(ctx, &orphan))

	// WHEN: Accrual runs
	res, err := f.manager.ProcessAutomaticAccrual(ctx, hr, leave.AccrualInput{AsOf: date(2025, 2, 1)})

	// THEN: The failure is collected and the healthy balance is credited
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, orphan.Key, res.Failures[0].Key)
	assert.ErrorIs(t, res.Failures[0].Err, generic.ErrNotFound)
	assert.True(t, outcomeFor(t, res, good).Credited.Equal(dec("1.67")))
}

func TestProcessAutomaticAccrual_RequiresCompanyWideGrant(t *testing.T) {
	f := newFixture(t, leave.Config{})
	_, err := f.manager.ProcessAutomaticAccrual(context.Background(), employee, leave.AccrualInput{AsOf: date(2025, 2, 1)})
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestProcessCarryOver_MovesUnusedDaysUpToLimit(t *testing.T) {
	// GIVEN: 15 days unused in 2025 and a carry-over limit of 5
	f := newFixture(t, leave.Config{})
	ctx := context.Background()
	f.withFiveUsed(t)

	// WHEN: A dry run is made
	preview, err := f.manager.ProcessCarryOver(ctx, hr, 2025, true)

	// THEN: It reports the plan without opening 2026
	require.NoError(t, err)
	require.Len(t, preview.Carried, 1)
	assert.True(t, preview.Carried[0].Carried.Equal(decimal.NewFromInt(5)))
	assert.True(t, preview.Carried[0].Forfeited.Equal(decimal.NewFromInt(10)))
	_, err = f.manager.GetBalance(ctx, generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2026})
	assert.ErrorIs(t, err, generic.ErrNotFound)

	// WHEN: It runs for real
	res, err := f.manager.ProcessCarryOver(ctx, hr, 2025, false)

	// THEN: 2026 opens with its entitlement plus 5 carried days
	require.NoError(t, err)
	require.Len(t, res.Carried, 1)
	next := f.balance(t, "emp-1", 2026)
	assert.True(t, next.CarryOver.Equal(decimal.NewFromInt(5)))
	assert.True(t, next.Available().Equal(decimal.NewFromInt(25)))
	assert.True(t, f.balance(t, "emp-1", 2025).Available().Equal(decimal.NewFromInt(15)), "closed year is untouched")

	// WHEN: It runs again
	again, err := f.manager.ProcessCarryOver(ctx, hr, 2025, false)

	// THEN: Nothing is carried twice
	require.NoError(t, err)
	assert.Empty(t, again.Carried)
	assert.Equal(t, 1, again.Skipped)
	assert.True(t, f.balance(t, "emp-1", 2026).CarryOver.Equal(decimal.NewFromInt(5)))
}
