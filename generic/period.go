package generic

import "time"

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive date range [Start, End].
//
// Examples:
//   - Calendar year 2025: Jan 1 - Dec 31
//   - Blackout: Dec 20 - Jan 2
//   - Days covered by a leave request starting Mar 10 and ending (exclusive) Mar 15:
//     Mar 10 - Mar 14
type Period struct {
	Start TimePoint
	End   TimePoint
}

// HalfOpen converts a [start, end) range into the inclusive period it covers.
func HalfOpen(start, end TimePoint) Period {
	return Period{Start: start, End: end.AddDays(-1)}
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps returns true if the two inclusive periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Len returns the number of calendar days in the period.
func (p Period) Len() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// PAY PERIOD - Time window for overtime summaries
// =============================================================================

// TimeWindow is a half-open instant range [From, To) used for reporting.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Weeks splits the window into ISO weeks (Monday start), clipped to the window.
func (w TimeWindow) Weeks() []TimeWindow {
	var weeks []TimeWindow
	start := w.From
	for start.Before(w.To) {
		end := StartOfWeek(start).AddDate(0, 0, 7)
		if end.After(w.To) {
			end = w.To
		}
		weeks = append(weeks, TimeWindow{From: start, To: end})
		start = end
	}
	return weeks
}
