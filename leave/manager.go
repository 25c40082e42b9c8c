package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/notify"
	"github.com/solomon-wilson/hrmis-sub002/policy"
)

// =============================================================================
// MANAGER - Request lifecycle with transactional guarantees
// =============================================================================

// Deps are the collaborators a Manager needs. Holidays, Notifier, Clock,
// NewID and Logger are optional.
type Deps struct {
	Store      TxStore
	Policies   *policy.Engine
	Directory  generic.Directory
	Holidays   generic.HolidayCalendar
	Notifier   notify.Dispatcher
	Authorizer authz.Authorizer
	Clock      func() time.Time
	NewID      func() string
	Logger     *slog.Logger
}

type Config struct {
	// LowBalanceThreshold triggers LEAVE_BALANCE_LOW when available days
	// fall to or below it after a change. Zero disables the event.
	LowBalanceThreshold decimal.Decimal
}

type Manager struct {
	deps   Deps
	config Config
}

func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Holidays == nil {
		deps.Holidays = generic.NoHolidays{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Authorizer == nil {
		deps.Authorizer = authz.AllowAll{}
	}
	return &Manager{deps: deps, config: cfg}
}

func (m *Manager) now() time.Time { return m.deps.Clock() }

// =============================================================================
// SUBMIT
// =============================================================================

type SubmitInput struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	StartDate   generic.TimePoint
	EndDate     generic.TimePoint // exclusive

	// TotalDays overrides the computed workday count (half days, shifts).
	TotalDays *decimal.Decimal

	Reason        string
	EmployeeNotes string
}

// Submit creates a PENDING request and reserves its days on the balance.
//
// Policy rules, overlap with the employee's own open requests and balance
// sufficiency are checked independently; every failure across the three is
// reported in a single PolicyViolationError.
func (m *Manager) Submit(ctx context.Context, actor authz.Actor, in SubmitInput) (*Request, error) {
	if err := m.deps.Authorizer.Authorize(ctx, actor, authz.CapRequestLeave, in.EmployeeID); err != nil {
		return nil, err
	}
	if err := validateSubmit(in); err != nil {
		return nil, err
	}

	group, err := m.deps.Directory.GetEmployeeGroupData(ctx, in.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("load employee %s: %w", in.EmployeeID, err)
	}
	total, err := m.requestedDays(in, group.CompanyID)
	if err != nil {
		return nil, err
	}
	managerID, err := m.deps.Directory.GetManagerID(ctx, in.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("load manager of %s: %w", in.EmployeeID, err)
	}

	now := m.now()
	policyInput := policy.RequestInput{
		EmployeeID:  in.EmployeeID,
		LeaveTypeID: in.LeaveTypeID,
		Start:       in.StartDate,
		End:         in.EndDate,
		TotalDays:   total,
		SubmittedAt: generic.DateOf(now),
	}
	validation, err := m.deps.Policies.ValidateLeaveRequest(ctx, policyInput, group)
	if err != nil {
		return nil, err
	}

	route := RouteLeaveRequest(total)
	route.ManagerID = managerID
	req := &Request{
		ID:            m.deps.NewID(),
		EmployeeID:    in.EmployeeID,
		LeaveTypeID:   in.LeaveTypeID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		TotalDays:     total,
		RequestedDays: total,
		Status:        StatusPending,
		Reason:        in.Reason,
		EmployeeNotes: in.EmployeeNotes,
		Route:         route,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	if validation.Policy != nil {
		req.PolicyID = validation.Policy.ID
		req.PolicyVersion = validation.Policy.Version
	}

	var after Balance
	err = m.deps.Store.WithTx(ctx, func(st Store) error {
		if err := st.LockEmployee(ctx, in.EmployeeID); err != nil {
			return err
		}
		key := req.BalanceKey()
		if err := st.LockBalance(ctx, key); err != nil {
			return err
		}

		violations := &validation
		if err := m.checkOverlaps(ctx, st, req, violations); err != nil {
			return err
		}

		bal, opened, err := m.currentBalance(ctx, st, key, validation.Policy)
		if err != nil {
			return err
		}
		if bal.Available().LessThan(total) {
			violations.Valid = false
			violations.Violations = append(violations.Violations, generic.Violation{
				Code:    generic.ViolationInsufficientBalance,
				Message: fmt.Sprintf("requested %s days but only %s are available", total, bal.Available()),
			})
			rec := "No days are available for this leave type"
			if bal.Available().IsPositive() {
				rec = fmt.Sprintf("Reduce the request to at most %s days", bal.Available())
			}
			violations.Recommendations = append(violations.Recommendations, rec)
		}
		if err := violations.Err(); err != nil {
			return err
		}

		if opened {
			if err := m.openBalance(ctx, st, bal, actor, now); err != nil {
				return err
			}
		}
		if err := st.SaveRequest(ctx, req); err != nil {
			return err
		}
		tx := m.transaction(actor, now, key, generic.ComponentPending, generic.TxPending, total)
		tx.ReferenceID = req.ID
		tx.Reason = "leave request submitted"
		tx.IdempotencyKey = "pending:" + req.ID
		tx.PolicyID, tx.PolicyVersion = req.PolicyID, req.PolicyVersion
		if err := m.post(ctx, st, bal, tx); err != nil {
			return err
		}
		after = *bal
		return nil
	})
	if err != nil {
		var pv *generic.PolicyViolationError
		if errors.As(err, &pv) {
			m.send(ctx, notify.PolicyViolation{
				EmployeeID:      in.EmployeeID,
				LeaveTypeID:     in.LeaveTypeID,
				PolicyID:        pv.PolicyID,
				PolicyVersion:   pv.PolicyVersion,
				Violations:      pv.Violations,
				Recommendations: pv.Recommendations,
			})
		}
		return nil, err
	}

	m.deps.Logger.InfoContext(ctx, "leave request submitted",
		slog.String("request_id", req.ID),
		slog.String("employee_id", string(req.EmployeeID)),
		slog.String("days", total.String()))

	m.send(ctx, notify.LeaveRequestSubmitted{
		RequestID:      req.ID,
		EmployeeID:     req.EmployeeID,
		LeaveTypeID:    req.LeaveTypeID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		TotalDays:      total,
		PendingAfter:   after.Pending,
		AvailableAfter: after.Available(),
		PolicyID:       req.PolicyID,
		PolicyVersion:  req.PolicyVersion,
	})
	m.send(ctx, notify.PendingLeaveApproval{
		RequestID:   req.ID,
		EmployeeID:  req.EmployeeID,
		ManagerID:   managerID,
		Tiers:       route.TierNames(),
		TotalDays:   total,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		SubmittedAt: now,
	})
	m.notifyTeamConflicts(ctx, req, group.DepartmentID, managerID)
	m.notifyLowBalance(ctx, after)
	return req, nil
}

func validateSubmit(in SubmitInput) error {
	var errs generic.ValidationErrors
	if in.EmployeeID == "" {
		errs.Add("employee_id", "is required")
	}
	if in.LeaveTypeID == "" {
		errs.Add("leave_type_id", "is required")
	}
	if in.StartDate.IsZero() {
		errs.Add("start_date", "is required")
	}
	if in.EndDate.IsZero() {
		errs.Add("end_date", "is required")
	}
	if len(errs) == 0 && !in.EndDate.After(in.StartDate) {
		errs.Add("end_date", "must be after start_date")
	}
	return errs.Err()
}

// requestedDays is the explicit TotalDays, or the workdays in the range.
func (m *Manager) requestedDays(in SubmitInput, companyID string) (decimal.Decimal, error) {
	var errs generic.ValidationErrors
	if in.TotalDays != nil {
		span := decimal.NewFromInt(int64(generic.DaysBetween(in.StartDate, in.EndDate)))
		switch {
		case !in.TotalDays.IsPositive():
			errs.Add("total_days", "must be positive")
		case in.TotalDays.GreaterThan(span):
			errs.Add("total_days", fmt.Sprintf("cannot exceed the %s calendar days in the range", span))
		}
		return *in.TotalDays, errs.Err()
	}

	days := generic.WorkdaysBetween(in.StartDate, in.EndDate, m.deps.Holidays, companyID)
	if days == 0 {
		errs.Add("end_date", "range contains no working days")
		return decimal.Zero, errs.Err()
	}
	return decimal.NewFromInt(int64(days)), nil
}

// checkOverlaps adds one violation per open request of the employee that
// shares a day with req.
func (m *Manager) checkOverlaps(ctx context.Context, st Store, req *Request, res *policy.ValidationResult) error {
	period := req.Period()
	existing, err := st.ListRequests(ctx, RequestFilter{
		EmployeeIDs: []generic.EmployeeID{req.EmployeeID},
		Statuses:    ActiveStatuses,
		Overlapping: &period,
	})
	if err != nil {
		return fmt.Errorf("load overlapping requests: %w", err)
	}
	for _, other := range existing {
		res.Valid = false
		res.Violations = append(res.Violations, generic.Violation{
			Code: generic.ViolationOverlappingRequest,
			Message: fmt.Sprintf("overlaps %s request %s covering %s",
				other.Status, other.ID, other.Period()),
		})
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Cancel or change request %s before submitting these dates", other.ID))
	}
	return nil
}

// =============================================================================
// APPROVE
// =============================================================================

type ApproveInput struct {
	// ApprovedDays approves part of the request. Nil approves everything,
	// or the workdays up to EndDate (capped at the requested days) when
	// EndDate is set.
	ApprovedDays *decimal.Decimal
	// EndDate shortens the approved range (exclusive).
	EndDate *generic.TimePoint
	Notes   string
}

// Approve moves a PENDING request to APPROVED, or PARTIALLY_APPROVED when
// fewer days are granted. The pending reservation is released and the
// approved days are charged to used in the same transaction as the status
// change.
func (m *Manager) Approve(ctx context.Context, actor authz.Actor, id string, in ApproveInput) (*Request, error) {
	current, err := m.deps.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.deps.Authorizer.Authorize(ctx, actor, authz.CapApproveLeave, current.EmployeeID); err != nil {
		return nil, err
	}

	// Shortened ranges are recounted against the same calendar Submit used.
	var companyID string
	if in.EndDate != nil {
		group, err := m.deps.Directory.GetEmployeeGroupData(ctx, current.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("load employee %s: %w", current.EmployeeID, err)
		}
		companyID = group.CompanyID
	}

	now := m.now()
	var req *Request
	var after Balance
	err = m.deps.Store.WithTx(ctx, func(st Store) error {
		if err := st.LockEmployee(ctx, current.EmployeeID); err != nil {
			return err
		}
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return stateConflict(r, "approve")
		}
		approved, end, err := m.approvedAmount(r, in, companyID)
		if err != nil {
			return err
		}

		key := r.BalanceKey()
		if err := st.LockBalance(ctx, key); err != nil {
			return err
		}
		bal, err := st.GetBalance(ctx, key)
		if err != nil {
			return err
		}

		requested := r.TotalDays
		next := *bal
		next.Pending = next.Pending.Sub(requested)
		next.Used = next.Used.Add(approved)
		if next.Available().IsNegative() {
			return &generic.InsufficientBalanceError{
				Key:       key,
				Available: generic.NewAmountFromDecimal(bal.Available().Add(requested), generic.UnitDays),
				Requested: generic.NewAmountFromDecimal(approved, generic.UnitDays),
			}
		}

		r.Status = StatusApproved
		if approved.LessThan(requested) || end.Before(r.EndDate) {
			r.Status = StatusPartiallyApproved
		}
		r.TotalDays = approved
		r.EndDate = end
		r.ApproverID = actor.EmployeeID
		r.ManagerNotes = in.Notes
		r.DecidedAt = &now
		r.UpdatedAt = now
		if err := st.SaveRequest(ctx, r); err != nil {
			return err
		}

		release := m.transaction(actor, now, key, generic.ComponentPending, generic.TxPendingRelease, requested.Neg())
		release.ReferenceID, release.IdempotencyKey = r.ID, "release:"+r.ID
		release.Reason = "leave request approved"
		consume := m.transaction(actor, now, key, generic.ComponentUsed, generic.TxConsumption, approved)
		consume.ReferenceID, consume.IdempotencyKey = r.ID, "consume:"+r.ID
		consume.Reason = "leave request approved"
		consume.PolicyID, consume.PolicyVersion = r.PolicyID, r.PolicyVersion
		if err := m.post(ctx, st, bal, release, consume); err != nil {
			return err
		}
		req, after = r, *bal
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.deps.Logger.InfoContext(ctx, "leave request approved",
		slog.String("request_id", req.ID),
		slog.String("status", string(req.Status)),
		slog.String("approver_id", string(actor.EmployeeID)))

	m.send(ctx, notify.LeaveRequestApproved{
		RequestID:      req.ID,
		EmployeeID:     req.EmployeeID,
		ApproverID:     actor.EmployeeID,
		RequestedDays:  req.RequestedDays,
		ApprovedDays:   req.TotalDays,
		Partial:        req.Status == StatusPartiallyApproved,
		EndDate:        req.EndDate,
		UsedAfter:      after.Used,
		AvailableAfter: after.Available(),
	})
	m.notifyLowBalance(ctx, after)
	return req, nil
}

// approvedAmount never exceeds the requested days. A shortened range is
// charged its workdays, capped at the requested total so partial-day
// requests are not inflated.
func (m *Manager) approvedAmount(r *Request, in ApproveInput, companyID string) (decimal.Decimal, generic.TimePoint, error) {
	var errs generic.ValidationErrors
	end := r.EndDate
	approved := r.TotalDays
	var shortened *decimal.Decimal

	if in.EndDate != nil {
		switch {
		case !in.EndDate.After(r.StartDate):
			errs.Add("end_date", "must be after the request start date")
		case in.EndDate.After(r.EndDate):
			errs.Add("end_date", "cannot extend the requested range")
		default:
			end = *in.EndDate
			if end.Before(r.EndDate) {
				workdays := decimal.NewFromInt(int64(generic.WorkdaysBetween(r.StartDate, end, m.deps.Holidays, companyID)))
				shortened = &workdays
				approved = decimal.Min(workdays, r.TotalDays)
			}
		}
	}
	if in.ApprovedDays != nil {
		switch {
		case !in.ApprovedDays.IsPositive():
			errs.Add("approved_days", "must be positive")
		case in.ApprovedDays.GreaterThan(r.TotalDays):
			errs.Add("approved_days", fmt.Sprintf("cannot exceed the requested %s days", r.TotalDays))
		case shortened != nil && in.ApprovedDays.GreaterThan(*shortened):
			errs.Add("approved_days", fmt.Sprintf("cannot exceed the %s working days up to end_date", *shortened))
		default:
			approved = *in.ApprovedDays
		}
	}
	if len(errs) == 0 && !approved.IsPositive() {
		errs.Add("end_date", "approved range contains no working days")
	}
	return approved, end, errs.Err()
}

// =============================================================================
// REJECT
// =============================================================================

type RejectInput struct {
	Reason string
	// Optional suggested dates, recorded in the manager notes. End is exclusive.
	AlternativeStart *generic.TimePoint
	AlternativeEnd   *generic.TimePoint
}

// Reject moves a PENDING request to REJECTED and releases its reservation.
func (m *Manager) Reject(ctx context.Context, actor authz.Actor, id string, in RejectInput) (*Request, error) {
	var errs generic.ValidationErrors
	if in.Reason == "" {
		errs.Add("reason", "is required")
	}
	if (in.AlternativeStart == nil) != (in.AlternativeEnd == nil) {
		errs.Add("alternative_end", "alternative start and end must be given together")
	} else if in.AlternativeStart != nil && !in.AlternativeEnd.After(*in.AlternativeStart) {
		errs.Add("alternative_end", "must be after alternative_start")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	current, err := m.deps.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.deps.Authorizer.Authorize(ctx, actor, authz.CapApproveLeave, current.EmployeeID); err != nil {
		return nil, err
	}

	now := m.now()
	var req *Request
	var released decimal.Decimal
	err = m.deps.Store.WithTx(ctx, func(st Store) error {
		if err := st.LockEmployee(ctx, current.EmployeeID); err != nil {
			return err
		}
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return stateConflict(r, "reject")
		}
		key := r.BalanceKey()
		if err := st.LockBalance(ctx, key); err != nil {
			return err
		}
		bal, err := st.GetBalance(ctx, key)
		if err != nil {
			return err
		}

		r.Status = StatusRejected
		r.RejectionReason = in.Reason
		r.ApproverID = actor.EmployeeID
		if in.AlternativeStart != nil {
			r.ManagerNotes = fmt.Sprintf("Suggested alternative dates: %s to %s",
				in.AlternativeStart, in.AlternativeEnd.AddDays(-1))
		}
		r.DecidedAt = &now
		r.UpdatedAt = now
		if err := st.SaveRequest(ctx, r); err != nil {
			return err
		}

		released = r.TotalDays
		tx := m.transaction(actor, now, key, generic.ComponentPending, generic.TxPendingRelease, released.Neg())
		tx.ReferenceID, tx.IdempotencyKey = r.ID, "release:"+r.ID
		tx.Reason = "leave request rejected: " + in.Reason
		if err := m.post(ctx, st, bal, tx); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.send(ctx, notify.LeaveRequestRejected{
		RequestID:        req.ID,
		EmployeeID:       req.EmployeeID,
		ApproverID:       actor.EmployeeID,
		Reason:           in.Reason,
		AlternativeStart: in.AlternativeStart,
		AlternativeEnd:   in.AlternativeEnd,
		ReleasedDays:     released,
	})
	return req, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel withdraws a PENDING or approved request. A pending reservation is
// released; approved days are restored with a reversal ledger row.
func (m *Manager) Cancel(ctx context.Context, actor authz.Actor, id, reason string) (*Request, error) {
	current, err := m.deps.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.deps.Authorizer.Authorize(ctx, actor, authz.CapCancelLeave, current.EmployeeID); err != nil {
		return nil, err
	}

	now := m.now()
	var req *Request
	var previous Status
	var restored decimal.Decimal
	var after Balance
	err = m.deps.Store.WithTx(ctx, func(st Store) error {
		if err := st.LockEmployee(ctx, current.EmployeeID); err != nil {
			return err
		}
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if !r.Status.Holds() {
			return stateConflict(r, "cancel")
		}
		key := r.BalanceKey()
		if err := st.LockBalance(ctx, key); err != nil {
			return err
		}
		bal, err := st.GetBalance(ctx, key)
		if err != nil {
			return err
		}

		var tx generic.Transaction
		if r.Status == StatusPending {
			tx = m.transaction(actor, now, key, generic.ComponentPending, generic.TxPendingRelease, r.TotalDays.Neg())
			tx.IdempotencyKey = "release:" + r.ID
		} else {
			tx = m.transaction(actor, now, key, generic.ComponentUsed, generic.TxReversal, r.TotalDays.Neg())
			tx.IdempotencyKey = "reversal:" + r.ID
			tx.PolicyID, tx.PolicyVersion = r.PolicyID, r.PolicyVersion
		}
		tx.ReferenceID = r.ID
		tx.Reason = "leave request cancelled"
		if reason != "" {
			tx.Reason += ": " + reason
		}

		previous = r.Status
		restored = r.TotalDays
		r.Status = StatusCancelled
		r.CancelledAt = &now
		r.UpdatedAt = now
		if reason != "" {
			r.EmployeeNotes = reason
		}
		if err := st.SaveRequest(ctx, r); err != nil {
			return err
		}
		if err := m.post(ctx, st, bal, tx); err != nil {
			return err
		}
		req, after = r, *bal
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.send(ctx, notify.LeaveRequestCancelled{
		RequestID:      req.ID,
		EmployeeID:     req.EmployeeID,
		CancelledBy:    actor.ID,
		PreviousStatus: string(previous),
		RestoredDays:   restored,
		AvailableAfter: after.Available(),
	})
	return req, nil
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

func (m *Manager) GetRequest(ctx context.Context, id string) (*Request, error) {
	return m.deps.Store.GetRequest(ctx, id)
}

func (m *Manager) ListRequests(ctx context.Context, f RequestFilter) ([]Request, error) {
	return m.deps.Store.ListRequests(ctx, f)
}

func (m *Manager) GetBalance(ctx context.Context, key generic.BalanceKey) (*Balance, error) {
	return m.deps.Store.GetBalance(ctx, key)
}

func (m *Manager) ListBalances(ctx context.Context, f BalanceFilter) ([]Balance, error) {
	return m.deps.Store.ListBalances(ctx, f)
}

// History returns the ledger rows explaining a balance, oldest first.
func (m *Manager) History(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return generic.NewLedger(m.deps.Store).Transactions(ctx, key)
}

// Reconcile replays the ledger and reports whether it matches the stored row.
func (m *Manager) Reconcile(ctx context.Context, key generic.BalanceKey) (bool, generic.Components, error) {
	bal, err := m.deps.Store.GetBalance(ctx, key)
	if err != nil {
		return false, generic.Components{}, err
	}
	replayed, err := generic.NewLedger(m.deps.Store).Replay(ctx, key, generic.UnitDays)
	if err != nil {
		return false, generic.Components{}, err
	}
	row := bal.Components()
	ok := row.Entitlement.Equal(replayed.Entitlement) &&
		row.Pending.Equal(replayed.Pending) &&
		row.Used.Equal(replayed.Used) &&
		row.CarryOver.Equal(replayed.CarryOver) &&
		row.Adjustment.Equal(replayed.Adjustment)
	return ok, replayed, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// currentBalance loads the balance, or prepares a new one from the policy
// when none exists yet. opened reports that the caller must persist it.
func (m *Manager) currentBalance(ctx context.Context, st Store, key generic.BalanceKey, p *policy.LeavePolicy) (*Balance, bool, error) {
	bal, err := st.GetBalance(ctx, key)
	if err == nil {
		return bal, false, nil
	}
	if !errors.Is(err, generic.ErrNotFound) {
		return nil, false, err
	}
	fresh := NewBalance(key)
	if p != nil {
		fresh.AccrualRate = p.Accrual.Rate
		fresh.AccrualPeriod = p.Accrual.Period
		fresh.PolicyID = p.ID
		fresh.PolicyVersion = p.Version
		fresh.Entitlement = p.Accrual.AnnualEntitlement
	}
	return &fresh, true, nil
}

// openBalance persists a new balance and the grant row for its entitlement.
func (m *Manager) openBalance(ctx context.Context, st Store, bal *Balance, actor authz.Actor, now time.Time) error {
	granted := bal.Entitlement
	bal.Entitlement = decimal.Zero
	bal.UpdatedAt = now
	if err := st.SaveBalance(ctx, bal); err != nil {
		return err
	}
	if !granted.IsPositive() {
		return nil
	}
	grant := m.transaction(actor, now, bal.Key, generic.ComponentEntitlement, generic.TxGrant, granted)
	grant.EffectiveAt = generic.StartOfYear(bal.Key.Year)
	grant.IdempotencyKey = "grant:" + bal.Key.String()
	grant.Reason = "annual entitlement"
	grant.PolicyID, grant.PolicyVersion = bal.PolicyID, bal.PolicyVersion
	return m.post(ctx, st, bal, grant)
}

// post applies ledger rows to the balance, appends them and saves the row.
func (m *Manager) post(ctx context.Context, st Store, bal *Balance, txs ...generic.Transaction) error {
	for _, tx := range txs {
		bal.apply(tx.Component, tx.Delta.Value)
	}
	if err := generic.NewLedger(st).AppendBatch(ctx, txs); err != nil {
		return fmt.Errorf("append ledger for %s: %w", bal.Key, err)
	}
	bal.UpdatedAt = m.now()
	return st.SaveBalance(ctx, bal)
}

func (m *Manager) transaction(actor authz.Actor, now time.Time, key generic.BalanceKey, c generic.Component, t generic.TransactionType, delta decimal.Decimal) generic.Transaction {
	return generic.Transaction{
		ID:            generic.TransactionID(m.deps.NewID()),
		Key:           key,
		Component:     c,
		Type:          t,
		Delta:         generic.NewAmountFromDecimal(delta, generic.UnitDays),
		EffectiveAt:   generic.DateOf(now),
		CreatedBy:     actor.ID,
		CreatedByType: actor.ActorType(),
		CreatedAt:     now,
	}
}

func stateConflict(r *Request, attempted string) error {
	return &generic.StateConflictError{
		Entity:    "leave_request",
		ID:        r.ID,
		Code:      "INVALID_STATUS",
		Current:   string(r.Status),
		Attempted: attempted,
	}
}

func (m *Manager) send(ctx context.Context, e notify.Event) {
	notify.Send(ctx, m.deps.Notifier, m.deps.Logger, e)
}

func (m *Manager) notifyLowBalance(ctx context.Context, b Balance) {
	if !m.config.LowBalanceThreshold.IsPositive() || b.Available().GreaterThan(m.config.LowBalanceThreshold) {
		return
	}
	m.send(ctx, notify.LeaveBalanceLow{
		EmployeeID:  b.Key.EmployeeID,
		LeaveTypeID: b.Key.LeaveTypeID,
		Year:        b.Key.Year,
		Available:   b.Available(),
		Threshold:   m.config.LowBalanceThreshold,
	})
}

// notifyTeamConflicts tells the manager about department colleagues with
// approved leave on the same days. Lookup failures are logged only.
func (m *Manager) notifyTeamConflicts(ctx context.Context, req *Request, departmentID string, managerID generic.EmployeeID) {
	if departmentID == "" {
		return
	}
	members, err := m.deps.Directory.ListDepartmentMembers(ctx, departmentID)
	if err != nil {
		m.deps.Logger.WarnContext(ctx, "team conflict lookup failed", slog.Any("error", err))
		return
	}
	var colleagues []generic.EmployeeID
	for _, id := range members {
		if id != req.EmployeeID {
			colleagues = append(colleagues, id)
		}
	}
	if len(colleagues) == 0 {
		return
	}
	period := req.Period()
	overlapping, err := m.deps.Store.ListRequests(ctx, RequestFilter{
		EmployeeIDs: colleagues,
		Statuses:    []Status{StatusApproved, StatusPartiallyApproved},
		Overlapping: &period,
	})
	if err != nil {
		m.deps.Logger.WarnContext(ctx, "team conflict lookup failed", slog.Any("error", err))
		return
	}
	if len(overlapping) == 0 {
		return
	}
	ev := notify.TeamLeaveConflict{
		RequestID:    req.ID,
		EmployeeID:   req.EmployeeID,
		ManagerID:    managerID,
		DepartmentID: departmentID,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	}
	seen := map[generic.EmployeeID]bool{}
	for _, o := range overlapping {
		ev.ConflictingRequests = append(ev.ConflictingRequests, o.ID)
		if !seen[o.EmployeeID] {
			seen[o.EmployeeID] = true
			ev.ConflictingEmployees = append(ev.ConflictingEmployees, o.EmployeeID)
		}
	}
	m.send(ctx, ev)
}
