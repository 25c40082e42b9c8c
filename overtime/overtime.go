/*
Package overtime splits worked hours into pay bands.

PURPOSE:
  Pure functions, no I/O. Given worked hours and an overtime policy, the
  calculator splits hours into regular, overtime and double-time bands and
  projects pay from a base rate.

BANDS (daily):
  regular    = min(hours, dailyThreshold)
  overtime   = max(0, min(hours, doubleTimeThreshold) - dailyThreshold)
  doubleTime = max(0, hours - doubleTimeThreshold)   (only when configured)

WEEKLY:
  The same split runs against the weekly threshold, independently of the
  daily split. Both results are reported; which one governs pay is a
  jurisdictional decision left to the caller.

PAY:
  pay = regular*rate + overtime*rate*otMultiplier + doubleTime*rate*dtMultiplier

SEE ALSO:
  - timetracking/service.go: Applies the split when an entry is completed
  - report/report.go: Overtime summaries per pay period
*/
package overtime

import (
	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy holds overtime thresholds and multipliers for a group of employees.
type Policy struct {
	ID                   generic.PolicyID
	Version              int
	Name                 string
	DailyThreshold       decimal.Decimal
	WeeklyThreshold      decimal.Decimal
	DoubleTimeThreshold  *decimal.Decimal
	OvertimeMultiplier   decimal.Decimal
	DoubleTimeMultiplier *decimal.Decimal
	Groups               generic.GroupFilter
	Active               bool
}

// DefaultPolicy is 8h/day, 40h/week at 1.5x, no double-time.
func DefaultPolicy() Policy {
	return Policy{
		ID:                 "default-overtime",
		Version:            1,
		Name:               "Default overtime",
		DailyThreshold:     decimal.NewFromInt(8),
		WeeklyThreshold:    decimal.NewFromInt(40),
		OvertimeMultiplier: decimal.NewFromFloat(1.5),
		Active:             true,
	}
}

// Applies is the applicability predicate over employee group data.
func (p Policy) Applies(g generic.EmployeeGroupData) bool {
	return p.Active && p.Groups.Matches(g)
}

// Select returns the first applicable policy, or fallback.
func Select(policies []Policy, g generic.EmployeeGroupData, fallback Policy) Policy {
	for _, p := range policies {
		if p.Applies(g) {
			return p
		}
	}
	return fallback
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	var errs generic.ValidationErrors
	if !p.DailyThreshold.IsPositive() {
		errs.Add("daily_threshold", "must be positive")
	}
	if !p.WeeklyThreshold.IsPositive() {
		errs.Add("weekly_threshold", "must be positive")
	}
	if p.OvertimeMultiplier.LessThan(decimal.NewFromInt(1)) {
		errs.Add("overtime_multiplier", "must be at least 1")
	}
	if p.DoubleTimeThreshold != nil {
		if !p.DoubleTimeThreshold.GreaterThan(p.DailyThreshold) {
			errs.Add("double_time_threshold", "must exceed the daily threshold")
		}
		if p.DoubleTimeMultiplier == nil {
			errs.Add("double_time_multiplier", "required with a double-time threshold")
		}
	}
	return errs.Err()
}

// =============================================================================
// BREAKDOWN
// =============================================================================

// Breakdown is hours split into pay bands.
type Breakdown struct {
	Regular    decimal.Decimal
	Overtime   decimal.Decimal
	DoubleTime decimal.Decimal
}

func (b Breakdown) Total() decimal.Decimal {
	return b.Regular.Add(b.Overtime).Add(b.DoubleTime)
}

func (b Breakdown) Add(o Breakdown) Breakdown {
	return Breakdown{
		Regular:    b.Regular.Add(o.Regular),
		Overtime:   b.Overtime.Add(o.Overtime),
		DoubleTime: b.DoubleTime.Add(o.DoubleTime),
	}
}

func (b Breakdown) Sub(o Breakdown) Breakdown {
	return Breakdown{
		Regular:    b.Regular.Sub(o.Regular),
		Overtime:   b.Overtime.Sub(o.Overtime),
		DoubleTime: b.DoubleTime.Sub(o.DoubleTime),
	}
}

// HasOvertime is true when any hours fall outside the regular band.
func (b Breakdown) HasOvertime() bool {
	return b.Overtime.IsPositive() || b.DoubleTime.IsPositive()
}

// Result reports the daily and weekly splits side by side.
type Result struct {
	Daily  Breakdown
	Weekly Breakdown
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Split divides hours at threshold and, if set, at doubleTime.
func Split(hours, threshold decimal.Decimal, doubleTime *decimal.Decimal) Breakdown {
	if hours.IsNegative() {
		hours = decimal.Zero
	}
	b := Breakdown{
		Regular:    decimal.Min(hours, threshold),
		Overtime:   decimal.Zero,
		DoubleTime: decimal.Zero,
	}
	otCeiling := hours
	if doubleTime != nil {
		otCeiling = decimal.Min(hours, *doubleTime)
		if hours.GreaterThan(*doubleTime) {
			b.DoubleTime = hours.Sub(*doubleTime)
		}
	}
	if otCeiling.GreaterThan(threshold) {
		b.Overtime = otCeiling.Sub(threshold)
	}
	return b
}

// SplitDaily splits a day's hours using the daily and double-time thresholds.
func SplitDaily(hours decimal.Decimal, p Policy) Breakdown {
	return Split(hours, p.DailyThreshold, p.DoubleTimeThreshold)
}

// SplitWeekly splits a week's hours against the weekly threshold.
func SplitWeekly(hours decimal.Decimal, p Policy) Breakdown {
	return Split(hours, p.WeeklyThreshold, nil)
}

// Calculate runs both splits. Daily and weekly overtime may both be non-zero
// for the same hours; they are not reconciled here.
func Calculate(dailyHours, weeklyHours decimal.Decimal, p Policy) Result {
	return Result{
		Daily:  SplitDaily(dailyHours, p),
		Weekly: SplitWeekly(weeklyHours, p),
	}
}

// Incremental attributes the hours added between two cumulative totals.
// Used when a day has several entries: the entry that crosses the threshold
// receives the overtime, earlier entries keep their regular hours.
func Incremental(before, after decimal.Decimal, split func(decimal.Decimal) Breakdown) Breakdown {
	return split(after).Sub(split(before))
}

// Pay projects gross pay for a breakdown at a base hourly rate.
func Pay(b Breakdown, baseRate decimal.Decimal, p Policy) decimal.Decimal {
	pay := b.Regular.Mul(baseRate)
	pay = pay.Add(b.Overtime.Mul(baseRate).Mul(p.OvertimeMultiplier))
	if b.DoubleTime.IsPositive() {
		mult := p.OvertimeMultiplier
		if p.DoubleTimeMultiplier != nil {
			mult = *p.DoubleTimeMultiplier
		}
		pay = pay.Add(b.DoubleTime.Mul(baseRate).Mul(mult))
	}
	return pay
}
