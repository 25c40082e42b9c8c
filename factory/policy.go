/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into policy.LeavePolicy and
  overtime.Policy values, and back. HR defines policies in JSON (through the
  admin API or a seed file) and the factory builds the Go structs the
  engine evaluates.

JSON SCHEMA (leave):
  {
    "kind": "leave",
    "id": "annual-standard",
    "name": "Annual leave",
    "leave_type": "annual",
    "groups": {"departments": ["eng"]},
    "eligibility": {"min_tenure_days": 90, "employment_types": ["FULL_TIME"]},
    "accrual": {
      "rate": 1.67,
      "period": "monthly",
      "annual_entitlement": 0,
      "carry_over_limit": 5
    },
    "usage": {
      "max_consecutive_days": 15,
      "advance_notice_days": 7,
      "minimum_increment": 0.5,
      "blackouts": [{"start": "2025-12-20", "end": "2026-01-02", "reason": "Year-end freeze"}]
    }
  }

JSON SCHEMA (overtime):
  {
    "kind": "overtime",
    "id": "eng-overtime",
    "daily_threshold": 8,
    "weekly_threshold": 40,
    "overtime_multiplier": 1.5,
    "double_time_threshold": 12,
    "double_time_multiplier": 2
  }

KEY FEATURES:
  - Numbers are parsed as decimals, never floats
  - Missing "active" defaults to true
  - Converted policies are validated before they are returned

USAGE:
  f := factory.NewPolicyFactory()
  rec, err := f.ParsePolicy(jsonString)
  switch rec.Kind {
  case policy.KindLeave:
      store.SaveLeavePolicy(ctx, *rec.Leave)
  case policy.KindOvertime:
      store.SaveOvertimePolicy(ctx, *rec.Overtime)
  }

SEE ALSO:
  - policy/policy.go: LeavePolicy definition
  - overtime/overtime.go: Overtime policy definition
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of either policy kind. Fields that
// do not belong to Kind are ignored.
type PolicyJSON struct {
	Kind    string     `json:"kind"`
	ID      string     `json:"id"`
	Version int        `json:"version,omitempty"`
	Name    string     `json:"name,omitempty"`
	Active  *bool      `json:"active,omitempty"`
	Groups  *GroupJSON `json:"groups,omitempty"`

	// Leave
	LeaveType   string           `json:"leave_type,omitempty"`
	Eligibility *EligibilityJSON `json:"eligibility,omitempty"`
	Accrual     *AccrualJSON     `json:"accrual,omitempty"`
	Usage       *UsageJSON       `json:"usage,omitempty"`

	// Overtime
	DailyThreshold       *decimal.Decimal `json:"daily_threshold,omitempty"`
	WeeklyThreshold      *decimal.Decimal `json:"weekly_threshold,omitempty"`
	OvertimeMultiplier   *decimal.Decimal `json:"overtime_multiplier,omitempty"`
	DoubleTimeThreshold  *decimal.Decimal `json:"double_time_threshold,omitempty"`
	DoubleTimeMultiplier *decimal.Decimal `json:"double_time_multiplier,omitempty"`
}

type GroupJSON struct {
	Departments     []string `json:"departments,omitempty"`
	EmploymentTypes []string `json:"employment_types,omitempty"`
	JobTitles       []string `json:"job_titles,omitempty"`
}

type EligibilityJSON struct {
	MinTenureDays   int      `json:"min_tenure_days,omitempty"`
	EmploymentTypes []string `json:"employment_types,omitempty"`
	Departments     []string `json:"departments,omitempty"`
}

type AccrualJSON struct {
	Rate              decimal.Decimal  `json:"rate"`
	Period            string           `json:"period"` // none, monthly, quarterly, annually
	WaitingPeriodDays int              `json:"waiting_period_days,omitempty"`
	AnnualEntitlement decimal.Decimal  `json:"annual_entitlement"`
	MaxBalance        *decimal.Decimal `json:"max_balance,omitempty"`
	CarryOverLimit    *decimal.Decimal `json:"carry_over_limit,omitempty"`
}

type UsageJSON struct {
	MaxConsecutiveDays int             `json:"max_consecutive_days,omitempty"`
	AdvanceNoticeDays  int             `json:"advance_notice_days,omitempty"`
	MinimumIncrement   decimal.Decimal `json:"minimum_increment"`
	Blackouts          []BlackoutJSON  `json:"blackouts,omitempty"`
}

// BlackoutJSON dates are inclusive, formatted YYYY-MM-DD.
type BlackoutJSON struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON document into a policy record.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (policy.Record, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return policy.Record{}, fmt.Errorf("%w: failed to parse policy JSON: %v", generic.ErrValidation, err)
	}
	return f.FromJSON(pj)
}

// ParsePolicies parses a JSON array of policy documents.
func (f *PolicyFactory) ParsePolicies(data []byte) ([]policy.Record, error) {
	var list []PolicyJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: failed to parse policy list: %v", generic.ErrValidation, err)
	}
	out := make([]policy.Record, 0, len(list))
	for i, pj := range list {
		rec, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i, pj.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FromJSON converts and validates a PolicyJSON.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (policy.Record, error) {
	switch policy.Kind(pj.Kind) {
	case policy.KindLeave:
		p, err := leaveFromJSON(pj)
		if err != nil {
			return policy.Record{}, err
		}
		return policy.Record{Kind: policy.KindLeave, Leave: &p}, nil
	case policy.KindOvertime:
		p, err := overtimeFromJSON(pj)
		if err != nil {
			return policy.Record{}, err
		}
		return policy.Record{Kind: policy.KindOvertime, Overtime: &p}, nil
	default:
		return policy.Record{}, generic.ValidationErrors{{Field: "kind", Message: "must be leave or overtime"}}
	}
}

func leaveFromJSON(pj PolicyJSON) (policy.LeavePolicy, error) {
	p := policy.LeavePolicy{
		ID:          generic.PolicyID(pj.ID),
		Version:     pj.Version,
		Name:        pj.Name,
		LeaveTypeID: generic.LeaveTypeID(pj.LeaveType),
		Groups:      parseGroups(pj.Groups),
		Active:      pj.Active == nil || *pj.Active,
		Accrual: policy.AccrualRules{
			Rate:              decimal.Zero,
			Period:            generic.AccrualNone,
			AnnualEntitlement: decimal.Zero,
		},
	}
	if e := pj.Eligibility; e != nil {
		p.Eligibility = policy.EligibilityRules{
			MinTenureDays:   e.MinTenureDays,
			EmploymentTypes: parseEmploymentTypes(e.EmploymentTypes),
			Departments:     e.Departments,
		}
	}
	if a := pj.Accrual; a != nil {
		p.Accrual = policy.AccrualRules{
			Rate:              a.Rate,
			Period:            generic.AccrualPeriod(a.Period),
			WaitingPeriodDays: a.WaitingPeriodDays,
			AnnualEntitlement: a.AnnualEntitlement,
			MaxBalance:        a.MaxBalance,
			CarryOverLimit:    a.CarryOverLimit,
		}
		if a.Period == "" {
			p.Accrual.Period = generic.AccrualNone
		}
	}
	if u := pj.Usage; u != nil {
		p.Usage = policy.UsageRules{
			MaxConsecutiveDays: u.MaxConsecutiveDays,
			AdvanceNoticeDays:  u.AdvanceNoticeDays,
			MinimumIncrement:   u.MinimumIncrement,
		}
		var errs generic.ValidationErrors
		for i, b := range u.Blackouts {
			start, err := generic.ParseDate(b.Start)
			if err != nil {
				errs.Add(fmt.Sprintf("usage.blackouts[%d].start", i), "must be YYYY-MM-DD")
				continue
			}
			end, err := generic.ParseDate(b.End)
			if err != nil {
				errs.Add(fmt.Sprintf("usage.blackouts[%d].end", i), "must be YYYY-MM-DD")
				continue
			}
			p.Usage.Blackouts = append(p.Usage.Blackouts, policy.Blackout{
				Period: generic.Period{Start: start, End: end},
				Reason: b.Reason,
			})
		}
		if err := errs.Err(); err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

func overtimeFromJSON(pj PolicyJSON) (overtime.Policy, error) {
	p := overtime.DefaultPolicy()
	p.ID = generic.PolicyID(pj.ID)
	p.Version = pj.Version
	p.Name = pj.Name
	p.Groups = parseGroups(pj.Groups)
	p.Active = pj.Active == nil || *pj.Active
	if pj.DailyThreshold != nil {
		p.DailyThreshold = *pj.DailyThreshold
	}
	if pj.WeeklyThreshold != nil {
		p.WeeklyThreshold = *pj.WeeklyThreshold
	}
	if pj.OvertimeMultiplier != nil {
		p.OvertimeMultiplier = *pj.OvertimeMultiplier
	}
	p.DoubleTimeThreshold = pj.DoubleTimeThreshold
	p.DoubleTimeMultiplier = pj.DoubleTimeMultiplier

	if p.ID == "" {
		return p, generic.ValidationErrors{{Field: "id", Message: "is required"}}
	}
	return p, p.Validate()
}

// =============================================================================
// BACK TO JSON
// =============================================================================

// ToJSON converts a policy record to its JSON representation.
func (f *PolicyFactory) ToJSON(rec policy.Record) PolicyJSON {
	switch rec.Kind {
	case policy.KindLeave:
		return leaveToJSON(*rec.Leave)
	case policy.KindOvertime:
		return overtimeToJSON(*rec.Overtime)
	}
	return PolicyJSON{Kind: string(rec.Kind)}
}

func leaveToJSON(p policy.LeavePolicy) PolicyJSON {
	active := p.Active
	pj := PolicyJSON{
		Kind:      string(policy.KindLeave),
		ID:        string(p.ID),
		Version:   p.Version,
		Name:      p.Name,
		Active:    &active,
		Groups:    groupsToJSON(p.Groups),
		LeaveType: string(p.LeaveTypeID),
		Accrual: &AccrualJSON{
			Rate:              p.Accrual.Rate,
			Period:            string(p.Accrual.Period),
			WaitingPeriodDays: p.Accrual.WaitingPeriodDays,
			AnnualEntitlement: p.Accrual.AnnualEntitlement,
			MaxBalance:        p.Accrual.MaxBalance,
			CarryOverLimit:    p.Accrual.CarryOverLimit,
		},
		Usage: &UsageJSON{
			MaxConsecutiveDays: p.Usage.MaxConsecutiveDays,
			AdvanceNoticeDays:  p.Usage.AdvanceNoticeDays,
			MinimumIncrement:   p.Usage.MinimumIncrement,
		},
	}
	if e := p.Eligibility; e.MinTenureDays > 0 || len(e.EmploymentTypes) > 0 || len(e.Departments) > 0 {
		pj.Eligibility = &EligibilityJSON{
			MinTenureDays:   e.MinTenureDays,
			EmploymentTypes: employmentTypeNames(e.EmploymentTypes),
			Departments:     e.Departments,
		}
	}
	for _, b := range p.Usage.Blackouts {
		pj.Usage.Blackouts = append(pj.Usage.Blackouts, BlackoutJSON{
			Start:  b.Period.Start.Time.Format(generic.DateLayout),
			End:    b.Period.End.Time.Format(generic.DateLayout),
			Reason: b.Reason,
		})
	}
	return pj
}

func overtimeToJSON(p overtime.Policy) PolicyJSON {
	active := p.Active
	daily, weekly, mult := p.DailyThreshold, p.WeeklyThreshold, p.OvertimeMultiplier
	return PolicyJSON{
		Kind:                 string(policy.KindOvertime),
		ID:                   string(p.ID),
		Version:              p.Version,
		Name:                 p.Name,
		Active:               &active,
		Groups:               groupsToJSON(p.Groups),
		DailyThreshold:       &daily,
		WeeklyThreshold:      &weekly,
		OvertimeMultiplier:   &mult,
		DoubleTimeThreshold:  p.DoubleTimeThreshold,
		DoubleTimeMultiplier: p.DoubleTimeMultiplier,
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseGroups(g *GroupJSON) generic.GroupFilter {
	if g == nil {
		return generic.GroupFilter{}
	}
	return generic.GroupFilter{
		Departments:     g.Departments,
		EmploymentTypes: parseEmploymentTypes(g.EmploymentTypes),
		JobTitles:       g.JobTitles,
	}
}

func groupsToJSON(g generic.GroupFilter) *GroupJSON {
	if len(g.Departments) == 0 && len(g.EmploymentTypes) == 0 && len(g.JobTitles) == 0 {
		return nil
	}
	return &GroupJSON{
		Departments:     g.Departments,
		EmploymentTypes: employmentTypeNames(g.EmploymentTypes),
		JobTitles:       g.JobTitles,
	}
}

func parseEmploymentTypes(names []string) []generic.EmploymentType {
	if len(names) == 0 {
		return nil
	}
	out := make([]generic.EmploymentType, len(names))
	for i, n := range names {
		out[i] = generic.EmploymentType(n)
	}
	return out
}

func employmentTypeNames(types []generic.EmploymentType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
