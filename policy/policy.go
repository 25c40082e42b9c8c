/*
Package policy evaluates leave policies against employees and requests.

PURPOSE:
  A LeavePolicy is a versioned rule bundle for one leave type: which
  employees it applies to, who is eligible, how the balance accrues, and how
  the leave may be used. The Engine answers two questions:
    1. Is this employee covered and eligible? (Eligibility)
    2. Does this request satisfy the usage rules? (ValidateLeaveRequest)

  Policy evaluation is free of identity and persistence concerns: it reads
  employee group data and policies, and never writes.

KEY CONCEPTS:
  - Applicable: the policy's group filter matches the employee
  - Eligible: applicable AND every eligibility rule passes
  - Violations: failed usage rules, each paired with a recommendation

SEE ALSO:
  - engine.go: Evaluation
  - repository.go: Policy Repository collaborator and TTL cache
  - factory/policy.go: JSON policy definitions
*/
package policy

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
)

// =============================================================================
// LEAVE POLICY
// =============================================================================

type LeavePolicy struct {
	ID          generic.PolicyID
	Version     int
	Name        string
	LeaveTypeID generic.LeaveTypeID
	Groups      generic.GroupFilter
	Eligibility EligibilityRules
	Accrual     AccrualRules
	Usage       UsageRules
	Active      bool
	UpdatedAt   time.Time
}

type EligibilityRules struct {
	MinTenureDays   int
	EmploymentTypes []generic.EmploymentType // empty = any
	Departments     []string                 // empty = any
}

type AccrualRules struct {
	// Rate is credited every Period. Ignored for AccrualNone.
	Rate   decimal.Decimal
	Period generic.AccrualPeriod

	// WaitingPeriodDays of tenure before accrual starts.
	WaitingPeriodDays int

	// AnnualEntitlement is granted when the year's balance is opened.
	AnnualEntitlement decimal.Decimal

	MaxBalance     *decimal.Decimal
	CarryOverLimit *decimal.Decimal
}

type UsageRules struct {
	MaxConsecutiveDays int             // 0 = unlimited
	AdvanceNoticeDays  int             // calendar days
	MinimumIncrement   decimal.Decimal // e.g. 0.5; zero = any
	Blackouts          []Blackout
}

type Blackout struct {
	Period generic.Period
	Reason string
}

// Validate reports configuration errors.
func (p LeavePolicy) Validate() error {
	var errs generic.ValidationErrors
	if p.ID == "" {
		errs.Add("id", "is required")
	}
	if p.LeaveTypeID == "" {
		errs.Add("leave_type", "is required")
	}
	if !p.Accrual.Period.Valid() {
		errs.Add("accrual.period", "must be none, monthly, quarterly or annually")
	}
	if p.Accrual.Rate.IsNegative() {
		errs.Add("accrual.rate", "must not be negative")
	}
	if p.Accrual.AnnualEntitlement.IsNegative() {
		errs.Add("accrual.annual_entitlement", "must not be negative")
	}
	if p.Usage.MinimumIncrement.IsNegative() {
		errs.Add("usage.minimum_increment", "must not be negative")
	}
	for _, b := range p.Usage.Blackouts {
		if err := b.Period.Validate(); err != nil {
			errs.Add("usage.blackouts", err.Error())
		}
	}
	return errs.Err()
}

// =============================================================================
// RECORD - What the repository returns by ID
// =============================================================================

type Kind string

const (
	KindLeave    Kind = "leave"
	KindOvertime Kind = "overtime"
)

// Record holds exactly one of Leave or Overtime.
type Record struct {
	Kind     Kind
	Leave    *LeavePolicy
	Overtime *overtime.Policy
}

func (r Record) Version() int {
	switch r.Kind {
	case KindLeave:
		return r.Leave.Version
	case KindOvertime:
		return r.Overtime.Version
	}
	return 0
}
