/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (leave, timetracking, report) from the external API
  contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Dates are "2006-01-02". Instants are RFC 3339. Day and hour amounts are
  decimal strings so clients never see binary rounding.

VALIDATION:
  Handlers parse dates and decimals and collect field errors into
  generic.ValidationErrors. Business rules stay in the services.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/factory"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/report"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	DepartmentID   string `json:"department_id,omitempty"`
	EmploymentType string `json:"employment_type,omitempty"`
	JobTitle       string `json:"job_title,omitempty"`
	ManagerID      string `json:"manager_id,omitempty"`
	CompanyID      string `json:"company_id,omitempty"`
	HireDate       string `json:"hire_date"`
}

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	DepartmentID   string `json:"department_id"`
	EmploymentType string `json:"employment_type"`
	JobTitle       string `json:"job_title"`
	ManagerID      string `json:"manager_id"`
	CompanyID      string `json:"company_id"`
	HireDate       string `json:"hire_date"`
}

func toEmployeeDTO(e generic.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:             string(e.ID),
		Name:           e.Name,
		Email:          e.Email,
		DepartmentID:   e.DepartmentID,
		EmploymentType: string(e.EmploymentType),
		JobTitle:       e.JobTitle,
		ManagerID:      string(e.ManagerID),
		CompanyID:      e.CompanyID,
		HireDate:       formatDate(e.HireDate),
	}
}

// =============================================================================
// POLICIES AND HOLIDAYS
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID      string             `json:"id"`
	Kind    string             `json:"kind"`
	Name    string             `json:"name"`
	Version int                `json:"version"`
	Config  factory.PolicyJSON `json:"config"`
}

type HolidayDTO struct {
	ID        string `json:"id,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		CompanyID: h.CompanyID,
		Date:      formatDate(h.Date),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

// =============================================================================
// TIME TRACKING
// =============================================================================

// ClockRequest serves clock-in, clock-out and break end. At defaults to now.
type ClockRequest struct {
	EmployeeID string                    `json:"employee_id"`
	At         *time.Time                `json:"at,omitempty"`
	Location   *timetracking.GeoLocation `json:"location,omitempty"`
}

type StartBreakRequest struct {
	EmployeeID string     `json:"employee_id"`
	Type       string     `json:"type"`
	At         *time.Time `json:"at,omitempty"`
	Paid       *bool      `json:"paid,omitempty"`
}

type ManualEntryRequest struct {
	EmployeeID string                    `json:"employee_id"`
	ClockIn    time.Time                 `json:"clock_in"`
	ClockOut   time.Time                 `json:"clock_out"`
	Reason     string                    `json:"reason"`
	Breaks     []timetracking.BreakEntry `json:"breaks,omitempty"`
}

type CorrectionRequest struct {
	ClockIn  time.Time `json:"clock_in"`
	ClockOut time.Time `json:"clock_out"`
	Reason   string    `json:"reason"`
}

// DecisionRequest carries the optional note on an approval and the required
// reason on a rejection or cancellation.
type DecisionRequest struct {
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type HoursDTO struct {
	Total      decimal.Decimal `json:"total"`
	Regular    decimal.Decimal `json:"regular"`
	Overtime   decimal.Decimal `json:"overtime"`
	DoubleTime decimal.Decimal `json:"double_time"`
}

type TimeEntryDTO struct {
	ID                    string                    `json:"id"`
	EmployeeID            string                    `json:"employee_id"`
	Status                string                    `json:"status"`
	ClockIn               time.Time                 `json:"clock_in"`
	ClockOut              *time.Time                `json:"clock_out,omitempty"`
	Location              *timetracking.GeoLocation `json:"location,omitempty"`
	Manual                bool                      `json:"manual"`
	Breaks                []timetracking.BreakEntry `json:"breaks"`
	Hours                 *HoursDTO                 `json:"hours,omitempty"`
	Notes                 string                    `json:"notes,omitempty"`
	PendingKind           string                    `json:"pending_kind,omitempty"`
	Reason                string                    `json:"reason,omitempty"`
	Original              *TimeEntryDTO             `json:"original,omitempty"`
	ApproverID            string                    `json:"approver_id,omitempty"`
	ApprovedAt            *time.Time                `json:"approved_at,omitempty"`
	AutoClosed            bool                      `json:"auto_closed,omitempty"`
	RejectionNote         string                    `json:"rejection_note,omitempty"`
	OvertimePolicyID      string                    `json:"overtime_policy_id,omitempty"`
	OvertimePolicyVersion int                       `json:"overtime_policy_version,omitempty"`
	Version               int                       `json:"version"`
}

func toTimeEntryDTO(e timetracking.TimeEntry) TimeEntryDTO {
	return recordToDTO(timetracking.ToRecord(e))
}

func recordToDTO(r timetracking.EntryRecord) TimeEntryDTO {
	dto := TimeEntryDTO{
		ID:                    r.ID,
		EmployeeID:            string(r.EmployeeID),
		Status:                string(r.Status),
		ClockIn:               r.ClockIn,
		ClockOut:              r.ClockOut,
		Location:              r.Location,
		Manual:                r.Manual,
		Breaks:                r.Breaks,
		Notes:                 r.Notes,
		PendingKind:           string(r.PendingKind),
		Reason:                r.Reason,
		ApproverID:            string(r.ApproverID),
		ApprovedAt:            r.ApprovedAt,
		AutoClosed:            r.AutoClosed,
		RejectionNote:         r.RejectionNote,
		OvertimePolicyID:      string(r.OvertimePolicyID),
		OvertimePolicyVersion: r.OvertimePolicyVersion,
		Version:               r.Version,
	}
	if dto.Breaks == nil {
		dto.Breaks = []timetracking.BreakEntry{}
	}
	if r.ClockOut != nil {
		dto.Hours = &HoursDTO{
			Total:      r.TotalHours,
			Regular:    r.RegularHours,
			Overtime:   r.OvertimeHours,
			DoubleTime: r.DoubleTimeHours,
		}
	}
	if r.Original != nil {
		orig := recordToDTO(*r.Original)
		dto.Original = &orig
	}
	return dto
}

// ClockOutDTO reports the entry's daily split and the week's running total
// side by side.
type ClockOutDTO struct {
	Entry     TimeEntryDTO    `json:"entry"`
	DayHours  decimal.Decimal `json:"day_hours"`
	WeekHours decimal.Decimal `json:"week_hours"`
	Weekly    HoursDTO        `json:"weekly"`
}

type SweepResultDTO struct {
	Scanned  int               `json:"scanned"`
	Closed   []string          `json:"closed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// =============================================================================
// LEAVE
// =============================================================================

type SubmitLeaveRequest struct {
	EmployeeID    string           `json:"employee_id"`
	LeaveTypeID   string           `json:"leave_type_id"`
	StartDate     string           `json:"start_date"`
	EndDate       string           `json:"end_date"`
	TotalDays     *decimal.Decimal `json:"total_days,omitempty"`
	Reason        string           `json:"reason"`
	EmployeeNotes string           `json:"employee_notes"`
}

type ApproveLeaveRequest struct {
	ApprovedDays *decimal.Decimal `json:"approved_days,omitempty"`
	EndDate      string           `json:"end_date,omitempty"`
	Notes        string           `json:"notes"`
}

type RejectLeaveRequest struct {
	Reason           string `json:"reason"`
	AlternativeStart string `json:"alternative_start,omitempty"`
	AlternativeEnd   string `json:"alternative_end,omitempty"`
}

type LeaveRequestDTO struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employee_id"`
	LeaveTypeID     string          `json:"leave_type_id"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	TotalDays       decimal.Decimal `json:"total_days"`
	RequestedDays   decimal.Decimal `json:"requested_days"`
	Status          string          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	EmployeeNotes   string          `json:"employee_notes,omitempty"`
	ManagerNotes    string          `json:"manager_notes,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	ApproverID      string          `json:"approver_id,omitempty"`
	PolicyID        string          `json:"policy_id"`
	PolicyVersion   int             `json:"policy_version"`
	ApprovalRoute   []string        `json:"approval_route"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	Version         int             `json:"version"`
}

func toLeaveRequestDTO(r leave.Request) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:              r.ID,
		EmployeeID:      string(r.EmployeeID),
		LeaveTypeID:     string(r.LeaveTypeID),
		StartDate:       formatDate(r.StartDate),
		EndDate:         formatDate(r.EndDate),
		TotalDays:       r.TotalDays,
		RequestedDays:   r.RequestedDays,
		Status:          string(r.Status),
		Reason:          r.Reason,
		EmployeeNotes:   r.EmployeeNotes,
		ManagerNotes:    r.ManagerNotes,
		RejectionReason: r.RejectionReason,
		ApproverID:      string(r.ApproverID),
		PolicyID:        string(r.PolicyID),
		PolicyVersion:   r.PolicyVersion,
		ApprovalRoute:   r.Route.TierNames(),
		SubmittedAt:     r.SubmittedAt,
		DecidedAt:       r.DecidedAt,
		CancelledAt:     r.CancelledAt,
		Version:         r.Version,
	}
}

func toLeaveRequestDTOs(rs []leave.Request) []LeaveRequestDTO {
	out := make([]LeaveRequestDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toLeaveRequestDTO(r))
	}
	return out
}

type AdjustBalanceRequest struct {
	EmployeeID  string          `json:"employee_id"`
	LeaveTypeID string          `json:"leave_type_id"`
	Year        int             `json:"year"`
	Delta       decimal.Decimal `json:"delta"`
	Reason      string          `json:"reason"`
}

type BalanceDTO struct {
	EmployeeID string `json:"employee_id"`
	report.BalanceSummary
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	return BalanceDTO{
		EmployeeID: string(b.Key.EmployeeID),
		BalanceSummary: report.BalanceSummary{
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
		},
	}
}

// TransactionDTO represents a ledger row in API responses.
type TransactionDTO struct {
	ID             string            `json:"id"`
	Component      string            `json:"component"`
	Type           string            `json:"type"`
	Delta          decimal.Decimal   `json:"delta"`
	EffectiveAt    string            `json:"effective_at"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	PolicyID       string            `json:"policy_id,omitempty"`
	PolicyVersion  int               `json:"policy_version,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		Component:      string(tx.Component),
		Type:           string(tx.Type),
		Delta:          tx.Delta.Value,
		EffectiveAt:    formatDate(tx.EffectiveAt),
		ReferenceID:    tx.ReferenceID,
		Reason:         tx.Reason,
		IdempotencyKey: tx.IdempotencyKey,
		PolicyID:       string(tx.PolicyID),
		PolicyVersion:  tx.PolicyVersion,
		Metadata:       tx.Metadata,
		CreatedBy:      tx.CreatedBy,
		CreatedAt:      tx.CreatedAt,
	}
}

// HistoryDTO is the ledger of one balance and whether it still reconciles
// with the stored figures.
type HistoryDTO struct {
	Key          string           `json:"key"`
	Transactions []TransactionDTO `json:"transactions"`
	Reconciled   bool             `json:"reconciled"`
}

type AccrualRunRequest struct {
	AsOf       string `json:"as_of,omitempty"`
	DryRun     bool   `json:"dry_run"`
	EmployeeID string `json:"employee_id,omitempty"`
}

type AccrualOutcomeDTO struct {
	EmployeeID  string          `json:"employee_id"`
	LeaveTypeID string          `json:"leave_type_id"`
	Year        int             `json:"year"`
	Periods     []string        `json:"periods"`
	Credited    decimal.Decimal `json:"credited"`
	Capped      bool            `json:"capped,omitempty"`
	Waiting     int             `json:"waiting,omitempty"`
}

type AccrualResultDTO struct {
	AsOf     string              `json:"as_of"`
	DryRun   bool                `json:"dry_run"`
	Scanned  int                 `json:"scanned"`
	Accrued  []AccrualOutcomeDTO `json:"accrued"`
	Failures map[string]string   `json:"failures,omitempty"`
}

func toAccrualResultDTO(r leave.AccrualResult) AccrualResultDTO {
	dto := AccrualResultDTO{
		AsOf:    formatDate(r.AsOf),
		DryRun:  r.DryRun,
		Scanned: r.Scanned,
		Accrued: make([]AccrualOutcomeDTO, 0, len(r.Accrued)),
	}
	for _, o := range r.Accrued {
		periods := make([]string, len(o.Periods))
		for i, p := range o.Periods {
			periods[i] = formatDate(p)
		}
		dto.Accrued = append(dto.Accrued, AccrualOutcomeDTO{
			EmployeeID:  string(o.Key.EmployeeID),
			LeaveTypeID: string(o.Key.LeaveTypeID),
			Year:        o.Key.Year,
			Periods:     periods,
			Credited:    o.Credited,
			Capped:      o.Capped,
			Waiting:     o.Waiting,
		})
	}
	dto.Failures = failureMap(r.Failures)
	return dto
}

type CarryOverRequest struct {
	FromYear int  `json:"from_year"`
	DryRun   bool `json:"dry_run"`
}

type CarryOverOutcomeDTO struct {
	EmployeeID  string          `json:"employee_id"`
	LeaveTypeID string          `json:"leave_type_id"`
	ToYear      int             `json:"to_year"`
	Carried     decimal.Decimal `json:"carried"`
	Forfeited   decimal.Decimal `json:"forfeited"`
}

type CarryOverResultDTO struct {
	FromYear int                   `json:"from_year"`
	DryRun   bool                  `json:"dry_run"`
	Carried  []CarryOverOutcomeDTO `json:"carried"`
	Skipped  int                   `json:"skipped"`
	Failures map[string]string     `json:"failures,omitempty"`
}

func toCarryOverResultDTO(r leave.CarryOverResult) CarryOverResultDTO {
	dto := CarryOverResultDTO{
		FromYear: r.FromYear,
		DryRun:   r.DryRun,
		Skipped:  r.Skipped,
		Carried:  make([]CarryOverOutcomeDTO, 0, len(r.Carried)),
	}
	for _, o := range r.Carried {
		dto.Carried = append(dto.Carried, CarryOverOutcomeDTO{
			EmployeeID:  string(o.To.EmployeeID),
			LeaveTypeID: string(o.To.LeaveTypeID),
			ToYear:      o.To.Year,
			Carried:     o.Carried,
			Forfeited:   o.Forfeited,
		})
	}
	dto.Failures = failureMap(r.Failures)
	return dto
}

func failureMap(fs []leave.AccrualFailure) map[string]string {
	if len(fs) == 0 {
		return nil
	}
	out := make(map[string]string, len(fs))
	for _, f := range fs {
		out[f.Key.String()] = f.Err.Error()
	}
	return out
}

// =============================================================================
// REPORTS
// =============================================================================

type PendingApprovalsDTO struct {
	LeaveRequests []LeaveRequestDTO `json:"leave_requests"`
	TimeEntries   []TimeEntryDTO    `json:"time_entries"`
}

type DashboardDTO struct {
	EmployeeID   string                          `json:"employee_id"`
	Status       timetracking.EmployeeTimeStatus `json:"status"`
	Balances     []report.BalanceSummary         `json:"balances"`
	ThisWeek     report.OvertimeSummary          `json:"this_week"`
	OpenRequests []LeaveRequestDTO               `json:"open_requests"`
	GeneratedAt  time.Time                       `json:"generated_at"`
}

// =============================================================================
// SCENARIOS AND AUTH
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type TokenRequest struct {
	UserID     string   `json:"user_id"`
	EmployeeID string   `json:"employee_id"`
	Roles      []string `json:"roles"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	// Violations and Recommendations accompany policy_violation errors.
	Violations      []generic.Violation `json:"violations,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
	// Conflict names the refusing state for state_conflict errors.
	Conflict string `json:"conflict,omitempty"`
}

func formatDate(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(generic.DateLayout)
}
