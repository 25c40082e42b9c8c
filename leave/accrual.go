package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/policy"
)

// =============================================================================
// AUTOMATIC ACCRUAL
// =============================================================================

type AccrualInput struct {
	AsOf   generic.TimePoint
	DryRun bool
	// EmployeeID limits the run to one employee when set.
	EmployeeID generic.EmployeeID
}

// AccrualOutcome describes what one balance received, or would receive in a
// dry run.
type AccrualOutcome struct {
	Key      generic.BalanceKey
	Periods  []generic.TimePoint
	Credited decimal.Decimal
	// Capped is set when MaxBalance reduced at least one credit.
	Capped bool
	// Waiting counts periods skipped because the waiting period had not elapsed.
	Waiting int
}

type AccrualFailure struct {
	Key generic.BalanceKey
	Err error
}

type AccrualResult struct {
	AsOf     generic.TimePoint
	DryRun   bool
	Scanned  int
	Accrued  []AccrualOutcome
	Failures []AccrualFailure
}

// ProcessAutomaticAccrual credits every balance the accrual periods that fell
// due on or before AsOf. Each balance is processed in its own transaction;
// a failure is recorded and the run continues. Running it twice for the same
// date credits nothing the second time.
func (m *Manager) ProcessAutomaticAccrual(ctx context.Context, actor authz.Actor, in AccrualInput) (AccrualResult, error) {
	if err := m.deps.Authorizer.Authorize(ctx, actor, authz.CapRunAccrual, in.EmployeeID); err != nil {
		return AccrualResult{}, err
	}
	if in.AsOf.IsZero() {
		in.AsOf = generic.DateOf(m.now())
	}
	result := AccrualResult{AsOf: in.AsOf, DryRun: in.DryRun}

	// January 1st credits the previous year's last period.
	var balances []Balance
	for _, year := range []int{in.AsOf.Year() - 1, in.AsOf.Year()} {
		bs, err := m.deps.Store.ListBalances(ctx, BalanceFilter{EmployeeID: in.EmployeeID, Year: year})
		if err != nil {
			return result, fmt.Errorf("list balances for %d: %w", year, err)
		}
		balances = append(balances, bs...)
	}

	for _, b := range balances {
		result.Scanned++
		outcome, err := m.accrueBalance(ctx, actor, b.Key, in)
		if err != nil {
			m.deps.Logger.ErrorContext(ctx, "accrual failed",
				slog.String("balance", b.Key.String()),
				slog.Any("error", err))
			result.Failures = append(result.Failures, AccrualFailure{Key: b.Key, Err: err})
			continue
		}
		if len(outcome.Periods) > 0 || outcome.Waiting > 0 {
			result.Accrued = append(result.Accrued, outcome)
		}
	}

	m.deps.Logger.InfoContext(ctx, "accrual run finished",
		slog.String("as_of", in.AsOf.String()),
		slog.Bool("dry_run", in.DryRun),
		slog.Int("scanned", result.Scanned),
		slog.Int("accrued", len(result.Accrued)),
		slog.Int("failed", len(result.Failures)))
	return result, nil
}

func (m *Manager) accrueBalance(ctx context.Context, actor authz.Actor, key generic.BalanceKey, in AccrualInput) (AccrualOutcome, error) {
	group, err := m.deps.Directory.GetEmployeeGroupData(ctx, key.EmployeeID)
	if err != nil {
		return AccrualOutcome{}, err
	}

	var outcome AccrualOutcome
	run := func(st Store) error {
		if err := st.LockBalance(ctx, key); err != nil {
			return err
		}
		bal, err := st.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		p, err := m.balancePolicy(ctx, bal)
		if err != nil {
			return err
		}

		now := m.now()
		plan := planAccrual(*bal, p, group, in.AsOf)
		outcome = plan.outcome
		if in.DryRun || len(plan.outcome.Periods) == 0 && plan.outcome.Waiting == 0 {
			return nil
		}

		var txs []generic.Transaction
		for _, c := range plan.credits {
			tx := m.transaction(actor, now, key, generic.ComponentEntitlement, generic.TxAccrual, c.amount)
			tx.EffectiveAt = c.date
			tx.IdempotencyKey = fmt.Sprintf("accrual:%s:%s", key, c.date)
			tx.Reason = fmt.Sprintf("%s accrual", p.Accrual.Period)
			tx.PolicyID, tx.PolicyVersion = p.ID, p.Version
			txs = append(txs, tx)
		}
		bal.LastAccrualDate = &plan.last
		bal.AccrualRate = p.Accrual.Rate
		bal.AccrualPeriod = p.Accrual.Period
		bal.PolicyVersion = p.Version
		if len(txs) == 0 {
			bal.UpdatedAt = now
			return st.SaveBalance(ctx, bal)
		}
		return m.post(ctx, st, bal, txs...)
	}

	if in.DryRun {
		err = run(m.deps.Store)
	} else {
		err = m.deps.Store.WithTx(ctx, run)
	}
	return outcome, err
}

type accrualCredit struct {
	date   generic.TimePoint
	amount decimal.Decimal
}

type accrualPlan struct {
	outcome AccrualOutcome
	credits []accrualCredit
	last    generic.TimePoint
}

// planAccrual walks the due dates after the last accrual. Periods inside the
// waiting period advance the cursor without credit; MaxBalance caps what is
// available after each credit.
func planAccrual(b Balance, p *policy.LeavePolicy, g generic.EmployeeGroupData, asOf generic.TimePoint) accrualPlan {
	plan := accrualPlan{outcome: AccrualOutcome{Key: b.Key, Credited: decimal.Zero}}
	if p.Accrual.Period == generic.AccrualNone || !p.Accrual.Rate.IsPositive() {
		return plan
	}

	available := b.Available()
	for _, date := range p.Accrual.Period.DueAccruals(b.LastAccrualDate, b.Key.Year, asOf) {
		plan.last = date
		if g.TenureAt(date) < p.Accrual.WaitingPeriodDays {
			plan.outcome.Waiting++
			continue
		}
		credit := p.Accrual.Rate
		if p.Accrual.MaxBalance != nil {
			headroom := p.Accrual.MaxBalance.Sub(available)
			if headroom.LessThan(credit) {
				credit = decimal.Max(headroom, decimal.Zero)
				plan.outcome.Capped = true
			}
		}
		plan.outcome.Periods = append(plan.outcome.Periods, date)
		if !credit.IsPositive() {
			continue
		}
		available = available.Add(credit)
		plan.outcome.Credited = plan.outcome.Credited.Add(credit)
		plan.credits = append(plan.credits, accrualCredit{date: date, amount: credit})
	}
	return plan
}

// balancePolicy loads the policy a balance was opened under.
func (m *Manager) balancePolicy(ctx context.Context, b *Balance) (*policy.LeavePolicy, error) {
	if b.PolicyID == "" {
		return nil, generic.NotFound("policy", "for balance "+b.Key.String())
	}
	rec, err := m.deps.Policies.Repo.FindByID(ctx, b.PolicyID)
	if err != nil {
		return nil, err
	}
	if rec.Leave == nil {
		return nil, fmt.Errorf("%w: policy %s is not a leave policy", generic.ErrValidation, b.PolicyID)
	}
	return rec.Leave, nil
}

// =============================================================================
// CARRY-OVER
// =============================================================================

type CarryOverOutcome struct {
	From    generic.BalanceKey
	To      generic.BalanceKey
	Carried decimal.Decimal
	// Forfeited is what exceeded the policy limit.
	Forfeited decimal.Decimal
}

type CarryOverResult struct {
	FromYear int
	DryRun   bool
	Carried  []CarryOverOutcome
	Skipped  int
	Failures []AccrualFailure
}

// ProcessCarryOver moves unused days of fromYear into the next year's
// balances, up to each policy's CarryOverLimit. A policy without a limit
// carries nothing. The source balance is left untouched; it is the record of
// the closed year. Each balance carries at most once.
func (m *Manager) ProcessCarryOver(ctx context.Context, actor authz.Actor, fromYear int, dryRun bool) (CarryOverResult, error) {
	if err := m.deps.Authorizer.Authorize(ctx, actor, authz.CapRunAccrual, ""); err != nil {
		return CarryOverResult{}, err
	}
	result := CarryOverResult{FromYear: fromYear, DryRun: dryRun}

	balances, err := m.deps.Store.ListBalances(ctx, BalanceFilter{Year: fromYear})
	if err != nil {
		return result, fmt.Errorf("list balances for %d: %w", fromYear, err)
	}
	for i := range balances {
		out, ok, err := m.carryBalance(ctx, actor, &balances[i], dryRun)
		switch {
		case err != nil:
			m.deps.Logger.ErrorContext(ctx, "carry-over failed",
				slog.String("balance", balances[i].Key.String()),
				slog.Any("error", err))
			result.Failures = append(result.Failures, AccrualFailure{Key: balances[i].Key, Err: err})
		case ok:
			result.Carried = append(result.Carried, out)
		default:
			result.Skipped++
		}
	}
	return result, nil
}

func (m *Manager) carryBalance(ctx context.Context, actor authz.Actor, from *Balance, dryRun bool) (CarryOverOutcome, bool, error) {
	p, err := m.balancePolicy(ctx, from)
	if err != nil {
		return CarryOverOutcome{}, false, err
	}
	unused := decimal.Max(from.Available(), decimal.Zero)
	limit := decimal.Zero
	if p.Accrual.CarryOverLimit != nil {
		limit = *p.Accrual.CarryOverLimit
	}
	carry := decimal.Min(unused, limit)
	if !carry.IsPositive() {
		return CarryOverOutcome{}, false, nil
	}

	to := from.Key
	to.Year++
	out := CarryOverOutcome{From: from.Key, To: to, Carried: carry, Forfeited: unused.Sub(carry)}
	idem := fmt.Sprintf("carryover:%s", from.Key)

	done, err := m.deps.Store.Exists(ctx, idem)
	if err != nil || done {
		return CarryOverOutcome{}, false, err
	}
	if dryRun {
		return out, true, nil
	}

	now := m.now()
	err = m.deps.Store.WithTx(ctx, func(st Store) error {
		if err := st.LockEmployee(ctx, to.EmployeeID); err != nil {
			return err
		}
		if err := st.LockBalance(ctx, to); err != nil {
			return err
		}
		next, opened, err := m.currentBalance(ctx, st, to, p)
		if err != nil {
			return err
		}
		if opened {
			if err := m.openBalance(ctx, st, next, actor, now); err != nil {
				return err
			}
		}
		tx := m.transaction(actor, now, to, generic.ComponentCarryOver, generic.TxCarryOver, carry)
		tx.EffectiveAt = generic.StartOfYear(to.Year)
		tx.IdempotencyKey = idem
		tx.Reason = fmt.Sprintf("carried over from %d", from.Key.Year)
		tx.PolicyID, tx.PolicyVersion = p.ID, p.Version
		return m.post(ctx, st, next, tx)
	})
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		return CarryOverOutcome{}, false, nil
	}
	return out, err == nil, err
}

// =============================================================================
// BALANCE OPENING AND ADJUSTMENT
// =============================================================================

// EnsureBalance returns the balance for the key, opening it under the first
// eligible policy for the leave type when it does not exist yet.
func (m *Manager) EnsureBalance(ctx context.Context, actor authz.Actor, key generic.BalanceKey) (*Balance, error) {
	if bal, err := m.deps.Store.GetBalance(ctx, key); err == nil {
		return bal, nil
	} else if !errors.Is(err, generic.ErrNotFound) {
		return nil, err
	}

	group, err := m.deps.Directory.GetEmployeeGroupData(ctx, key.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("load employee %s: %w", key.EmployeeID, err)
	}
	p, err := m.firstEligible(ctx, key.LeaveTypeID, group)
	if err != nil {
		return nil, err
	}

	var out *Balance
	err = m.deps.Store.WithTx(ctx, func(st Store) error {
		if err := st.LockBalance(ctx, key); err != nil {
			return err
		}
		bal, opened, err := m.currentBalance(ctx, st, key, p)
		if err != nil {
			return err
		}
		if opened {
			if err := m.openBalance(ctx, st, bal, actor, m.now()); err != nil {
				return err
			}
		}
		out = bal
		return nil
	})
	return out, err
}

func (m *Manager) firstEligible(ctx context.Context, leaveType generic.LeaveTypeID, g generic.EmployeeGroupData) (*policy.LeavePolicy, error) {
	policies, err := m.deps.Policies.Repo.FindLeavePoliciesByType(ctx, leaveType)
	if err != nil {
		return nil, err
	}
	for i := range policies {
		if policy.Eligibility(g, policies[i]).Eligible {
			return &policies[i], nil
		}
	}
	return nil, generic.NotFound("eligible_policy", string(leaveType))
}

type AdjustInput struct {
	Key    generic.BalanceKey
	Delta  decimal.Decimal
	Reason string
}

// AdjustBalance applies a signed manual correction. The balance is opened
// first if needed. A delta that would leave available negative is refused.
func (m *Manager) AdjustBalance(ctx context.Context, actor authz.Actor, in AdjustInput) (*Balance, error) {
	if err := m.deps.Authorizer.Authorize(ctx, actor, authz.CapAdjustBalance, in.Key.EmployeeID); err != nil {
		return nil, err
	}
	var errs generic.ValidationErrors
	if in.Reason == "" {
		errs.Add("reason", "is required")
	}
	if in.Delta.IsZero() {
		errs.Add("delta", "must not be zero")
	}
	if in.Key.EmployeeID == "" || in.Key.LeaveTypeID == "" || in.Key.Year == 0 {
		errs.Add("key", "employee, leave type and year are required")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if _, err := m.EnsureBalance(ctx, actor, in.Key); err != nil {
		return nil, err
	}

	now := m.now()
	var after Balance
	err := m.deps.Store.WithTx(ctx, func(st Store) error {
		if err := st.LockBalance(ctx, in.Key); err != nil {
			return err
		}
		bal, err := st.GetBalance(ctx, in.Key)
		if err != nil {
			return err
		}
		if bal.Available().Add(in.Delta).IsNegative() {
			return &generic.InsufficientBalanceError{
				Key:       in.Key,
				Available: generic.NewAmountFromDecimal(bal.Available(), generic.UnitDays),
				Requested: generic.NewAmountFromDecimal(in.Delta.Neg(), generic.UnitDays),
			}
		}
		tx := m.transaction(actor, now, in.Key, generic.ComponentAdjustment, generic.TxAdjustment, in.Delta)
		tx.Reason = in.Reason
		tx.Metadata = map[string]string{"delta": in.Delta.String()}
		if err := m.post(ctx, st, bal, tx); err != nil {
			return err
		}
		after = *bal
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.deps.Logger.InfoContext(ctx, "balance adjusted",
		slog.String("balance", in.Key.String()),
		slog.String("delta", in.Delta.String()),
		slog.String("actor", actor.ID))
	m.notifyLowBalance(ctx, after)
	return &after, nil
}
