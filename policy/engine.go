package policy

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// =============================================================================
// ELIGIBILITY
// =============================================================================

type EligibilityResult struct {
	Applicable bool
	Eligible   bool
	Reasons    []string
}

// Eligibility evaluates every rule and accumulates all blocking reasons.
func Eligibility(g generic.EmployeeGroupData, p LeavePolicy) EligibilityResult {
	res := EligibilityResult{Applicable: true}

	if !p.Active {
		res.Applicable = false
		res.Reasons = append(res.Reasons, fmt.Sprintf("policy %s is inactive", p.ID))
	}
	if !p.Groups.Matches(g) {
		res.Applicable = false
		res.Reasons = append(res.Reasons, fmt.Sprintf("policy %s does not cover this employee group", p.ID))
	}

	var reasons []string
	if g.TenureDays < p.Eligibility.MinTenureDays {
		reasons = append(reasons, fmt.Sprintf("tenure of %d days is below the required %d days",
			g.TenureDays, p.Eligibility.MinTenureDays))
	}
	if len(p.Eligibility.EmploymentTypes) > 0 && !slices.Contains(p.Eligibility.EmploymentTypes, g.EmploymentType) {
		reasons = append(reasons, fmt.Sprintf("employment type %s is not eligible", g.EmploymentType))
	}
	if len(p.Eligibility.Departments) > 0 && !slices.Contains(p.Eligibility.Departments, g.DepartmentID) {
		reasons = append(reasons, fmt.Sprintf("department %s is not eligible", g.DepartmentID))
	}
	res.Reasons = append(res.Reasons, reasons...)
	res.Eligible = res.Applicable && len(reasons) == 0
	return res
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Repo Repository
}

func NewEngine(repo Repository) *Engine {
	return &Engine{Repo: repo}
}

// RequestInput is the policy-relevant projection of a leave request.
type RequestInput struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Start       generic.TimePoint
	End         generic.TimePoint // exclusive
	TotalDays   decimal.Decimal
	SubmittedAt generic.TimePoint
}

type ValidationResult struct {
	Valid           bool
	Policy          *LeavePolicy // winning policy, nil if none
	Violations      []generic.Violation
	Recommendations []string
}

func (r *ValidationResult) fail(code, message, recommendation string) {
	r.Valid = false
	r.Violations = append(r.Violations, generic.Violation{Code: code, Message: message})
	if recommendation != "" {
		r.Recommendations = append(r.Recommendations, recommendation)
	}
}

// Err converts an invalid result into a PolicyViolationError.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	e := &generic.PolicyViolationError{Violations: r.Violations, Recommendations: r.Recommendations}
	if r.Policy != nil {
		e.PolicyID = r.Policy.ID
		e.PolicyVersion = r.Policy.Version
	}
	return e
}

// ValidateLeaveRequest picks the first applicable and eligible policy for the
// leave type and checks the usage rules against it.
func (e *Engine) ValidateLeaveRequest(ctx context.Context, in RequestInput, g generic.EmployeeGroupData) (ValidationResult, error) {
	policies, err := e.Repo.FindLeavePoliciesByType(ctx, in.LeaveTypeID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load policies for %s: %w", in.LeaveTypeID, err)
	}

	res := ValidationResult{Valid: true}
	var reasons []string
	for i := range policies {
		el := Eligibility(g, policies[i])
		if el.Eligible {
			res.Policy = &policies[i]
			break
		}
		reasons = append(reasons, el.Reasons...)
	}

	if res.Policy == nil {
		if len(policies) == 0 {
			res.fail(generic.ViolationNoApplicablePolicy,
				fmt.Sprintf("no policy is configured for leave type %s", in.LeaveTypeID),
				"Choose a leave type that has a configured policy")
			return res, nil
		}
		for _, r := range reasons {
			res.fail(generic.ViolationIneligible, r, "")
		}
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Request a different leave type; no %s policy currently covers this employee", in.LeaveTypeID))
		return res, nil
	}

	checkUsage(&res, res.Policy.Usage, in)
	return res, nil
}

// checkUsage runs the usage rules in order: max consecutive days, advance
// notice, minimum increment, blackout periods.
func checkUsage(res *ValidationResult, u UsageRules, in RequestInput) {
	if u.MaxConsecutiveDays > 0 && in.TotalDays.GreaterThan(decimal.NewFromInt(int64(u.MaxConsecutiveDays))) {
		res.fail(generic.ViolationMaxConsecutiveDays,
			fmt.Sprintf("request of %s days exceeds the maximum of %d consecutive days", in.TotalDays, u.MaxConsecutiveDays),
			fmt.Sprintf("Split the request into chunks of at most %d days", u.MaxConsecutiveDays))
	}

	if u.AdvanceNoticeDays > 0 {
		notice := generic.DaysBetween(in.SubmittedAt, in.Start)
		if notice < u.AdvanceNoticeDays {
			earliest := in.SubmittedAt.AddDays(u.AdvanceNoticeDays)
			res.fail(generic.ViolationAdvanceNotice,
				fmt.Sprintf("%d days notice given, %d required", notice, u.AdvanceNoticeDays),
				fmt.Sprintf("Start the leave on or after %s", earliest))
		}
	}

	if u.MinimumIncrement.IsPositive() && !in.TotalDays.Mod(u.MinimumIncrement).IsZero() {
		lower := in.TotalDays.Div(u.MinimumIncrement).Floor().Mul(u.MinimumIncrement)
		upper := lower.Add(u.MinimumIncrement)
		rec := fmt.Sprintf("Request %s or %s days (multiples of %s)", lower, upper, u.MinimumIncrement)
		if lower.IsZero() {
			rec = fmt.Sprintf("Request %s days (multiples of %s)", upper, u.MinimumIncrement)
		}
		res.fail(generic.ViolationMinimumIncrement,
			fmt.Sprintf("%s days is not a multiple of the minimum increment %s", in.TotalDays, u.MinimumIncrement),
			rec)
	}

	requested := generic.HalfOpen(in.Start, in.End)
	for _, b := range u.Blackouts {
		if requested.Overlaps(b.Period) {
			res.fail(generic.ViolationBlackoutPeriod,
				fmt.Sprintf("dates overlap blackout period %s (%s)", b.Period, b.Reason),
				fmt.Sprintf("Choose dates before %s or after %s", b.Period.Start, b.Period.End))
		}
	}
}

// RecommendPolicy returns the eligible policy with the highest accrual rate.
// Advisory only; validation always uses the first eligible policy.
func (e *Engine) RecommendPolicy(ctx context.Context, leaveType generic.LeaveTypeID, g generic.EmployeeGroupData) (*LeavePolicy, error) {
	policies, err := e.Repo.FindLeavePoliciesByType(ctx, leaveType)
	if err != nil {
		return nil, err
	}
	var best *LeavePolicy
	for i := range policies {
		if !Eligibility(g, policies[i]).Eligible {
			continue
		}
		if best == nil || policies[i].Accrual.Rate.GreaterThan(best.Accrual.Rate) {
			best = &policies[i]
		}
	}
	if best == nil {
		return nil, generic.NotFound("eligible_policy", string(leaveType))
	}
	return best, nil
}
