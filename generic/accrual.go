package generic

// =============================================================================
// ACCRUAL CADENCE - How often a balance earns days
// =============================================================================

type AccrualPeriod string

const (
	AccrualNone      AccrualPeriod = "none" // Entitlement granted up front, no periodic accrual
	AccrualMonthly   AccrualPeriod = "monthly"
	AccrualQuarterly AccrualPeriod = "quarterly"
	AccrualAnnually  AccrualPeriod = "annually"
)

func (p AccrualPeriod) Valid() bool {
	switch p {
	case AccrualNone, AccrualMonthly, AccrualQuarterly, AccrualAnnually:
		return true
	}
	return false
}

// Months returns the cadence length in months (0 for AccrualNone).
func (p AccrualPeriod) Months() int {
	switch p {
	case AccrualMonthly:
		return 1
	case AccrualQuarterly:
		return 3
	case AccrualAnnually:
		return 12
	default:
		return 0
	}
}

// NextAccrualDate returns the date the next accrual becomes due after `last`.
// With no previous accrual the first boundary after the year start is used,
// so a monthly balance opened for 2025 is first due on 2025-02-01.
func (p AccrualPeriod) NextAccrualDate(last *TimePoint, year int) (TimePoint, bool) {
	months := p.Months()
	if months == 0 {
		return TimePoint{}, false
	}
	base := StartOfYear(year)
	if last != nil {
		base = *last
	}
	return base.AddMonths(months), true
}

// DueAccruals lists every accrual date in (last, asOf] for the balance year.
// Dates beyond the year end belong to the next year's balance.
func (p AccrualPeriod) DueAccruals(last *TimePoint, year int, asOf TimePoint) []TimePoint {
	var due []TimePoint
	yearEnd := StartOfYear(year + 1)
	cursor := last
	for {
		next, ok := p.NextAccrualDate(cursor, year)
		if !ok || next.After(asOf) || next.After(yearEnd) {
			return due
		}
		due = append(due, next)
		n := next
		cursor = &n
	}
}
