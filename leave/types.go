/*
Package leave owns leave requests and leave balances.

PURPOSE:
  The Manager runs the request lifecycle (submit, approve, reject, cancel)
  and the balance maintenance jobs (accrual, carry-over, manual adjustment).
  It is the only component that mutates a Balance.

LIFECYCLE:
  PENDING ──approve──▶ APPROVED / PARTIALLY_APPROVED ──cancel──▶ CANCELLED
     │
     ├──reject──▶ REJECTED
     └──cancel──▶ CANCELLED

BALANCE INVARIANT:
  Available = Entitlement + CarryOver + ManualAdjustment - Used - Pending

  Available is never negative after a committed approval. Each transition
  writes the request row, the balance row and the explaining ledger rows in
  one store transaction; a concurrent reader sees all of it or none of it.

LEDGER:
  The balance row is what gets locked and version-checked. The ledger is the
  audit trail: replaying a balance's transactions reproduces every component
  of the row.

SEE ALSO:
  - manager.go: Lifecycle operations
  - accrual.go: Accrual, carry-over and adjustment jobs
  - store.go: Persistence contract
  - generic/ledger.go: Transaction log
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// =============================================================================
// REQUEST
// =============================================================================

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusApproved          Status = "APPROVED"
	StatusPartiallyApproved Status = "PARTIALLY_APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusCancelled         Status = "CANCELLED"
)

// Holds reports whether a request in this status still reserves or uses days.
func (s Status) Holds() bool {
	return s == StatusPending || s == StatusApproved || s == StatusPartiallyApproved
}

// IsApproved covers full and partial approval.
func (s Status) IsApproved() bool {
	return s == StatusApproved || s == StatusPartiallyApproved
}

// ActiveStatuses are the statuses that block overlapping requests.
var ActiveStatuses = []Status{StatusPending, StatusApproved, StatusPartiallyApproved}

// Request is a leave request. EndDate is exclusive: a request for Monday to
// Friday has StartDate Monday and EndDate the following Saturday.
type Request struct {
	ID          string
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	StartDate   generic.TimePoint
	EndDate     generic.TimePoint

	// TotalDays is the amount charged to the balance. RequestedDays keeps the
	// original amount when an approval is partial.
	TotalDays     decimal.Decimal
	RequestedDays decimal.Decimal

	Status          Status
	Reason          string
	EmployeeNotes   string
	ManagerNotes    string
	RejectionReason string
	ApproverID      generic.EmployeeID

	PolicyID      generic.PolicyID
	PolicyVersion int
	Route         Route

	SubmittedAt time.Time
	DecidedAt   *time.Time
	CancelledAt *time.Time
	UpdatedAt   time.Time

	// Version increments on every save; zero means not yet stored.
	Version int
}

// Period returns the inclusive days the request covers.
func (r Request) Period() generic.Period {
	return generic.HalfOpen(r.StartDate, r.EndDate)
}

// BalanceKey is the balance charged: the start date's year.
func (r Request) BalanceKey() generic.BalanceKey {
	return generic.BalanceKey{EmployeeID: r.EmployeeID, LeaveTypeID: r.LeaveTypeID, Year: r.StartDate.Year()}
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance is one per (employee, leave type, year).
type Balance struct {
	Key generic.BalanceKey

	Entitlement      decimal.Decimal
	Used             decimal.Decimal
	Pending          decimal.Decimal
	CarryOver        decimal.Decimal
	ManualAdjustment decimal.Decimal

	AccrualRate     decimal.Decimal
	AccrualPeriod   generic.AccrualPeriod
	LastAccrualDate *generic.TimePoint

	PolicyID      generic.PolicyID
	PolicyVersion int

	UpdatedAt time.Time
	Version   int
}

// NewBalance returns an empty balance for the key.
func NewBalance(key generic.BalanceKey) Balance {
	return Balance{
		Key:              key,
		Entitlement:      decimal.Zero,
		Used:             decimal.Zero,
		Pending:          decimal.Zero,
		CarryOver:        decimal.Zero,
		ManualAdjustment: decimal.Zero,
		AccrualRate:      decimal.Zero,
		AccrualPeriod:    generic.AccrualNone,
	}
}

// Available = entitlement + carryOver + manualAdjustment - used - pending.
func (b Balance) Available() decimal.Decimal {
	return b.Entitlement.Add(b.CarryOver).Add(b.ManualAdjustment).Sub(b.Used).Sub(b.Pending)
}

// Components expresses the row in ledger terms, for comparison with a replay.
func (b Balance) Components() generic.Components {
	d := func(v decimal.Decimal) generic.Amount { return generic.NewAmountFromDecimal(v, generic.UnitDays) }
	return generic.Components{
		Entitlement: d(b.Entitlement),
		Pending:     d(b.Pending),
		Used:        d(b.Used),
		CarryOver:   d(b.CarryOver),
		Adjustment:  d(b.ManualAdjustment),
	}
}

// apply adds a ledger delta to the matching field.
func (b *Balance) apply(c generic.Component, delta decimal.Decimal) {
	switch c {
	case generic.ComponentEntitlement:
		b.Entitlement = b.Entitlement.Add(delta)
	case generic.ComponentPending:
		b.Pending = b.Pending.Add(delta)
	case generic.ComponentUsed:
		b.Used = b.Used.Add(delta)
	case generic.ComponentCarryOver:
		b.CarryOver = b.CarryOver.Add(delta)
	case generic.ComponentAdjustment:
		b.ManualAdjustment = b.ManualAdjustment.Add(delta)
	}
}

// =============================================================================
// ROUTING
// =============================================================================

type ApproverTier string

const (
	TierManager  ApproverTier = "MANAGER"
	TierHR       ApproverTier = "HR"
	TierDirector ApproverTier = "DIRECTOR"
)

// Route is the advisory approval chain attached to a request.
type Route struct {
	Tiers     []ApproverTier
	ManagerID generic.EmployeeID
}

func (r Route) TierNames() []string {
	out := make([]string, len(r.Tiers))
	for i, t := range r.Tiers {
		out[i] = string(t)
	}
	return out
}

var (
	routeManagerOnly = decimal.NewFromInt(5)
	routeWithHR      = decimal.NewFromInt(10)
)

// RouteLeaveRequest maps total days to approver tiers: up to 5 days the
// manager, up to 10 days manager and HR, beyond that manager, HR and
// director. It does not gate access.
func RouteLeaveRequest(totalDays decimal.Decimal) Route {
	switch {
	case totalDays.LessThanOrEqual(routeManagerOnly):
		return Route{Tiers: []ApproverTier{TierManager}}
	case totalDays.LessThanOrEqual(routeWithHR):
		return Route{Tiers: []ApproverTier{TierManager, TierHR}}
	default:
		return Route{Tiers: []ApproverTier{TierManager, TierHR, TierDirector}}
	}
}
