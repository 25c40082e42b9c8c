/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the stores with realistic
  reference data for demos: an org chart, leave and overtime policies,
  and holidays. Each scenario builds on the previous one.

AVAILABLE SCENARIOS:
  small-team:     HR, one manager, two employees, annual + sick leave,
                  the default overtime rules and two holidays
  overtime-rules: small-team plus a stricter overtime policy for the
                  warehouse department (daily 8h, double time after 12h)
  year-end:       small-team plus last year's annual balances with days
                  left over, ready for POST /leave/carry-over

HOW SCENARIOS WORK:
  1. Upsert employees
  2. Create policies via factory JSON (skipped when the ID already exists,
     so loading twice does not publish new versions)
  3. Add holidays that are not there yet
  4. Optionally post balance adjustments through the leave manager

USAGE VIA API:
  POST /api/v1/scenarios/load
  {"scenario_id": "year-end"}

NOTE:
  Loading requires the policies.manage capability. Scenarios never delete
  data.

SEE ALSO:
  - handlers.go: savePolicy
  - factory/policy.go: Policy JSON definitions
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "HR, a manager and two reports with annual and sick leave",
	},
	{
		ID:          "overtime-rules",
		Name:        "Overtime Rules",
		Description: "Warehouse staff on daily overtime with double time after 12 hours",
	},
	{
		ID:          "year-end",
		Name:        "Year-End Carry-Over",
		Description: "Last year's annual balances with unused days to carry over",
	},
}

const smallTeamPolicies = `[
	{
		"kind": "leave",
		"id": "annual-standard",
		"name": "Annual leave",
		"leave_type": "annual",
		"eligibility": {"employment_types": ["FULL_TIME", "PART_TIME"]},
		"accrual": {"rate": 1.67, "period": "monthly", "annual_entitlement": 0, "max_balance": 30, "carry_over_limit": 5},
		"usage": {"max_consecutive_days": 15, "advance_notice_days": 3, "minimum_increment": 0.5}
	},
	{
		"kind": "leave",
		"id": "sick-standard",
		"name": "Sick leave",
		"leave_type": "sick",
		"accrual": {"rate": 0, "period": "none", "annual_entitlement": 10},
		"usage": {"minimum_increment": 0.5}
	},
	{
		"kind": "overtime",
		"id": "overtime-default",
		"name": "Default overtime",
		"weekly_threshold": 40,
		"overtime_multiplier": 1.5
	}
]`

const warehouseOvertimePolicy = `[
	{
		"kind": "overtime",
		"id": "overtime-warehouse",
		"name": "Warehouse overtime",
		"groups": {"departments": ["warehouse"]},
		"daily_threshold": 8,
		"weekly_threshold": 40,
		"overtime_multiplier": 1.5,
		"double_time_threshold": 12,
		"double_time_multiplier": 2
	}
]`

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r, authz.CapManagePolicies, ""); err != nil {
		h.handleError(w, r, err)
		return
	}
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "small-team":
		err = h.loadSmallTeamScenario(ctx)
	case "overtime-rules":
		err = h.loadOvertimeRulesScenario(ctx)
	case "year-end":
		err = h.loadYearEndScenario(ctx, actorOf(r))
	default:
		h.handleError(w, r, generic.ValidationErrors{{Field: "scenario_id", Message: "unknown scenario"}})
		return
	}
	if err != nil {
		h.handleError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSmallTeamScenario(ctx context.Context) error {
	hired := generic.DateOf(h.clock().AddDate(-3, 0, 0))
	employees := []generic.Employee{
		{ID: "hr-001", Name: "Hannah Reyes", Email: "hannah@example.com", DepartmentID: "people", EmploymentType: generic.EmploymentFullTime, JobTitle: "HR Partner"},
		{ID: "mgr-001", Name: "Marcus Lee", Email: "marcus@example.com", DepartmentID: "engineering", EmploymentType: generic.EmploymentFullTime, JobTitle: "Engineering Manager"},
		{ID: "emp-001", Name: "Alice Johnson", Email: "alice@example.com", DepartmentID: "engineering", EmploymentType: generic.EmploymentFullTime, JobTitle: "Engineer", ManagerID: "mgr-001"},
		{ID: "emp-002", Name: "Bruno Costa", Email: "bruno@example.com", DepartmentID: "engineering", EmploymentType: generic.EmploymentPartTime, JobTitle: "Engineer", ManagerID: "mgr-001"},
	}
	for _, e := range employees {
		e.HireDate = hired
		e.CreatedAt = h.clock()
		if err := h.deps.Employees.SaveEmployee(ctx, e); err != nil {
			return err
		}
	}

	if err := h.createPoliciesFromJSON(ctx, smallTeamPolicies); err != nil {
		return err
	}

	year := h.clock().Year()
	return h.addHolidays(ctx, []generic.Holiday{
		{ID: "new-year", Date: generic.NewTimePoint(year, time.January, 1), Name: "New Year's Day", Recurring: true},
		{ID: "christmas", Date: generic.NewTimePoint(year, time.December, 25), Name: "Christmas Day", Recurring: true},
	})
}

func (h *Handler) loadOvertimeRulesScenario(ctx context.Context) error {
	if err := h.loadSmallTeamScenario(ctx); err != nil {
		return err
	}
	hired := generic.DateOf(h.clock().AddDate(-1, 0, 0))
	if err := h.deps.Employees.SaveEmployee(ctx, generic.Employee{
		ID:             "emp-003",
		Name:           "Wen Zhao",
		Email:          "wen@example.com",
		DepartmentID:   "warehouse",
		EmploymentType: generic.EmploymentFullTime,
		JobTitle:       "Picker",
		ManagerID:      "mgr-001",
		HireDate:       hired,
		CreatedAt:      h.clock(),
	}); err != nil {
		return err
	}
	return h.createPoliciesFromJSON(ctx, warehouseOvertimePolicy)
}

// loadYearEndScenario leaves 8 unused annual days on last year's balances;
// with a carry-over limit of 5, a run forfeits 3 per employee.
func (h *Handler) loadYearEndScenario(ctx context.Context, actor authz.Actor) error {
	if err := h.loadSmallTeamScenario(ctx); err != nil {
		return err
	}
	lastYear := h.clock().Year() - 1
	for _, id := range []generic.EmployeeID{"emp-001", "emp-002"} {
		key := generic.BalanceKey{EmployeeID: id, LeaveTypeID: "annual", Year: lastYear}
		if b, err := h.deps.Leave.GetBalance(ctx, key); err == nil && b.Available().IsPositive() {
			continue
		} else if err != nil && !errors.Is(err, generic.ErrNotFound) {
			return err
		}
		if _, err := h.deps.Leave.AdjustBalance(ctx, actor, leave.AdjustInput{
			Key:    key,
			Delta:  decimal.NewFromInt(8),
			Reason: "Opening balance for year-end demo",
		}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createPoliciesFromJSON(ctx context.Context, jsonStr string) error {
	recs, err := h.factory.ParsePolicies([]byte(jsonStr))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		id := generic.PolicyID(h.factory.ToJSON(rec).ID)
		if _, err := h.deps.Policies.FindByID(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, generic.ErrNotFound) {
			return err
		}
		if _, err := h.savePolicy(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) addHolidays(ctx context.Context, hols []generic.Holiday) error {
	existing, err := h.deps.Holidays.ListHolidays(ctx, "")
	if err != nil {
		return err
	}
	for _, hol := range hols {
		if containsHoliday(existing, hol) {
			continue
		}
		if err := h.deps.Holidays.AddHoliday(ctx, hol); err != nil {
			return err
		}
	}
	return nil
}

func containsHoliday(hs []generic.Holiday, hol generic.Holiday) bool {
	for _, e := range hs {
		if e.Name == hol.Name && e.Date.Month() == hol.Date.Month() && e.Date.Day() == hol.Date.Day() {
			return true
		}
	}
	return false
}
