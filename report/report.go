/*
Package report exposes read-only projections of leave and time data.

PURPOSE:
  Reporting and export formatting live outside the engine. This package
  hands them the figures they need without adding business rules:

  BalanceSummaries:  per leave type, the balance components and availability
  OvertimeSummary:   per day and per ISO week, hours split into pay bands
  PendingApprovals:  the leave requests and time entries an actor may decide
  Dashboard:         presence, balances, this week's hours and open requests

  Every read is authorized with authz.CapViewReports (or the approval
  capability for queues). Nothing here writes.

SEE ALSO:
  - leave/manager.go: Balances and requests
  - timetracking/service.go: Time entries and overtime policy selection
*/
package report

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

type Deps struct {
	Leave      *leave.Manager
	Time       *timetracking.Service
	Authorizer authz.Authorizer
	Clock      func() time.Time
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Authorizer == nil {
		deps.Authorizer = authz.AllowAll{}
	}
	return &Service{deps: deps}
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceSummary struct {
	LeaveTypeID      generic.LeaveTypeID `json:"leave_type_id"`
	Year             int                 `json:"year"`
	Entitlement      decimal.Decimal     `json:"entitlement"`
	CarryOver        decimal.Decimal     `json:"carry_over"`
	ManualAdjustment decimal.Decimal     `json:"manual_adjustment"`
	Used             decimal.Decimal     `json:"used"`
	Pending          decimal.Decimal     `json:"pending"`
	Available        decimal.Decimal     `json:"available"`
	AccrualRate      decimal.Decimal     `json:"accrual_rate"`
	AccrualPeriod    string              `json:"accrual_period"`
	LastAccrualDate  *generic.TimePoint  `json:"last_accrual_date,omitempty"`
	PolicyID         generic.PolicyID    `json:"policy_id"`
	PolicyVersion    int                 `json:"policy_version"`
}

func summarize(b leave.Balance) BalanceSummary {
	return BalanceSummary{
		LeaveTypeID:      b.Key.LeaveTypeID,
		Year:             b.Key.Year,
		Entitlement:      b.Entitlement,
		CarryOver:        b.CarryOver,
		ManualAdjustment: b.ManualAdjustment,
		Used:             b.Used,
		Pending:          b.Pending,
		Available:        b.Available(),
		AccrualRate:      b.AccrualRate,
		AccrualPeriod:    string(b.AccrualPeriod),
		LastAccrualDate:  b.LastAccrualDate,
		PolicyID:         b.PolicyID,
		PolicyVersion:    b.PolicyVersion,
	}
}

// BalanceSummaries lists the employee's balances for year; year 0 means
// every year.
func (s *Service) BalanceSummaries(ctx context.Context, actor authz.Actor, employeeID generic.EmployeeID, year int) ([]BalanceSummary, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapViewReports, employeeID); err != nil {
		return nil, err
	}
	return s.balanceSummaries(ctx, employeeID, year)
}

func (s *Service) balanceSummaries(ctx context.Context, employeeID generic.EmployeeID, year int) ([]BalanceSummary, error) {
	balances, err := s.deps.Leave.ListBalances(ctx, leave.BalanceFilter{EmployeeID: employeeID, Year: year})
	if err != nil {
		return nil, err
	}
	out := make([]BalanceSummary, 0, len(balances))
	for _, b := range balances {
		out = append(out, summarize(b))
	}
	return out, nil
}

// =============================================================================
// OVERTIME
// =============================================================================

type DayHours struct {
	Date  generic.TimePoint  `json:"date"`
	Hours decimal.Decimal    `json:"hours"`
	Split overtime.Breakdown `json:"split"`
}

type WeekHours struct {
	From  time.Time          `json:"from"`
	To    time.Time          `json:"to"`
	Hours decimal.Decimal    `json:"hours"`
	Split overtime.Breakdown `json:"split"`
}

// OvertimeSummary reports the daily and weekly splits side by side with the
// pay each would produce. Which one applies is the payroll's decision.
type OvertimeSummary struct {
	EmployeeID     generic.EmployeeID `json:"employee_id"`
	Window         generic.TimeWindow `json:"window"`
	PolicyID       generic.PolicyID   `json:"policy_id"`
	PolicyVersion  int                `json:"policy_version"`
	TotalHours     decimal.Decimal    `json:"total_hours"`
	Days           []DayHours         `json:"days"`
	Weeks          []WeekHours        `json:"weeks"`
	DailyTotals    overtime.Breakdown `json:"daily_totals"`
	WeeklyTotals   overtime.Breakdown `json:"weekly_totals"`
	BaseRate       decimal.Decimal    `json:"base_rate"`
	DailyBasisPay  decimal.Decimal    `json:"daily_basis_pay"`
	WeeklyBasisPay decimal.Decimal    `json:"weekly_basis_pay"`
}

// OvertimeSummary covers completed entries clocked in within the window.
// Day figures come from each entry's recorded split, so they reflect the
// policy in force when the entry was completed.
func (s *Service) OvertimeSummary(ctx context.Context, actor authz.Actor, employeeID generic.EmployeeID, window generic.TimeWindow, baseRate decimal.Decimal) (OvertimeSummary, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapViewReports, employeeID); err != nil {
		return OvertimeSummary{}, err
	}
	if !window.From.Before(window.To) {
		return OvertimeSummary{}, generic.ValidationErrors{{Field: "window", Message: "from must be before to"}}
	}
	if baseRate.IsNegative() {
		return OvertimeSummary{}, generic.ValidationErrors{{Field: "base_rate", Message: "must not be negative"}}
	}
	return s.overtimeSummary(ctx, employeeID, window, baseRate)
}

func (s *Service) overtimeSummary(ctx context.Context, employeeID generic.EmployeeID, window generic.TimeWindow, baseRate decimal.Decimal) (OvertimeSummary, error) {
	pol, err := s.deps.Time.OvertimePolicyFor(ctx, employeeID)
	if err != nil {
		return OvertimeSummary{}, err
	}
	entries, err := s.deps.Time.ListEntries(ctx, timetracking.EntryFilter{
		EmployeeID: employeeID,
		From:       &window.From,
		To:         &window.To,
		Statuses:   []timetracking.EntryStatus{timetracking.StatusCompleted},
	})
	if err != nil {
		return OvertimeSummary{}, err
	}

	out := OvertimeSummary{
		EmployeeID:    employeeID,
		Window:        window,
		PolicyID:      pol.ID,
		PolicyVersion: pol.Version,
		TotalHours:    decimal.Zero,
		BaseRate:      baseRate,
		DailyTotals:   zeroBreakdown(),
		WeeklyTotals:  zeroBreakdown(),
	}

	byDay := map[string]*DayHours{}
	var order []string
	for _, e := range entries {
		c, ok := e.(*timetracking.CompletedEntry)
		if !ok {
			continue
		}
		day := generic.DateOf(c.ClockIn)
		k := day.String()
		d, seen := byDay[k]
		if !seen {
			d = &DayHours{Date: day, Hours: decimal.Zero, Split: zeroBreakdown()}
			byDay[k] = d
			order = append(order, k)
		}
		d.Hours = d.Hours.Add(c.TotalHours)
		d.Split = d.Split.Add(c.Hours)
		out.TotalHours = out.TotalHours.Add(c.TotalHours)
		out.DailyTotals = out.DailyTotals.Add(c.Hours)
	}
	slices.Sort(order)
	for _, k := range order {
		out.Days = append(out.Days, *byDay[k])
	}

	for _, w := range window.Weeks() {
		hours := decimal.Zero
		for _, e := range entries {
			if c, ok := e.(*timetracking.CompletedEntry); ok && w.Contains(c.ClockIn) {
				hours = hours.Add(c.TotalHours)
			}
		}
		split := overtime.SplitWeekly(hours, pol)
		out.Weeks = append(out.Weeks, WeekHours{From: w.From, To: w.To, Hours: hours, Split: split})
		out.WeeklyTotals = out.WeeklyTotals.Add(split)
	}

	out.DailyBasisPay = overtime.Pay(out.DailyTotals, baseRate, pol)
	out.WeeklyBasisPay = overtime.Pay(out.WeeklyTotals, baseRate, pol)
	return out, nil
}

func zeroBreakdown() overtime.Breakdown {
	return overtime.Breakdown{Regular: decimal.Zero, Overtime: decimal.Zero, DoubleTime: decimal.Zero}
}

// =============================================================================
// APPROVAL QUEUES
// =============================================================================

type PendingApprovals struct {
	LeaveRequests []leave.Request            `json:"leave_requests"`
	TimeEntries   []timetracking.EntryRecord `json:"time_entries"`
}

// PendingApprovals lists what the actor may approve. Items
// the authorizer refuses are left out rather than failing the call.
func (s *Service) PendingApprovals(ctx context.Context, actor authz.Actor) (PendingApprovals, error) {
	out := PendingApprovals{LeaveRequests: []leave.Request{}, TimeEntries: []timetracking.EntryRecord{}}

	requests, err := s.deps.Leave.ListRequests(ctx, leave.RequestFilter{Statuses: []leave.Status{leave.StatusPending}})
	if err != nil {
		return out, err
	}
	for _, r := range requests {
		if s.allowed(ctx, actor, authz.CapApproveLeave, r.EmployeeID) {
			out.LeaveRequests = append(out.LeaveRequests, r)
		}
	}

	entries, err := s.deps.Time.ListEntries(ctx, timetracking.EntryFilter{Statuses: []timetracking.EntryStatus{timetracking.StatusPendingApproval}})
	if err != nil {
		return out, err
	}
	for _, e := range entries {
		if s.allowed(ctx, actor, authz.CapApproveTime, e.Header().EmployeeID) {
			out.TimeEntries = append(out.TimeEntries, timetracking.ToRecord(e))
		}
	}
	return out, nil
}

func (s *Service) allowed(ctx context.Context, actor authz.Actor, c authz.Capability, subject generic.EmployeeID) bool {
	return s.deps.Authorizer.Authorize(ctx, actor, c, subject) == nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

type Dashboard struct {
	EmployeeID   generic.EmployeeID              `json:"employee_id"`
	Status       timetracking.EmployeeTimeStatus `json:"status"`
	Balances     []BalanceSummary                `json:"balances"`
	ThisWeek     OvertimeSummary                 `json:"this_week"`
	OpenRequests []leave.Request                 `json:"open_requests"`
	GeneratedAt  time.Time                       `json:"generated_at"`
}

// Dashboard gathers the employee's figures concurrently. The first failing
// query cancels the others.
func (s *Service) Dashboard(ctx context.Context, actor authz.Actor, employeeID generic.EmployeeID) (Dashboard, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapViewReports, employeeID); err != nil {
		return Dashboard{}, err
	}
	now := s.deps.Clock()
	d := Dashboard{EmployeeID: employeeID, GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := s.deps.Time.Status(gctx, employeeID)
		d.Status = st
		return err
	})
	g.Go(func() error {
		b, err := s.balanceSummaries(gctx, employeeID, now.Year())
		d.Balances = b
		return err
	})
	g.Go(func() error {
		from := generic.StartOfWeek(now)
		week := generic.TimeWindow{From: from, To: from.AddDate(0, 0, 7)}
		sum, err := s.overtimeSummary(gctx, employeeID, week, decimal.Zero)
		d.ThisWeek = sum
		return err
	})
	g.Go(func() error {
		reqs, err := s.deps.Leave.ListRequests(gctx, leave.RequestFilter{
			EmployeeIDs: []generic.EmployeeID{employeeID},
			Statuses:    leave.ActiveStatuses,
		})
		d.OpenRequests = reqs
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
