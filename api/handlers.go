/*
handlers.go - HTTP API handlers for time tracking and leave

PURPOSE:
  Exposes the leave manager, the time tracking service and the report
  projections via REST API. Handles HTTP request/response and JSON
  serialization, and delegates every rule to the services.

ENDPOINTS (under /api/v1, JWT protected):
  Time:
    POST   /time/clock-in                  Start a shift
    POST   /time/clock-out                 End the active shift
    POST   /time/breaks/start              Open a break
    POST   /time/breaks/end                Close the open break
    POST   /time/manual                    Record a shift after the fact
    POST   /time/entries/{id}/correction   Propose new times for a shift
    POST   /time/entries/{id}/approve      Approve a pending entry
    POST   /time/entries/{id}/reject       Reject a pending entry
    GET    /time/entries                   List an employee's entries
    GET    /time/entries/{id}              Get one entry
    GET    /time/status/{employeeID}       Derived presence

  Leave:
    POST   /leave/requests                 Submit a request
    GET    /leave/requests                 List an employee's requests
    GET    /leave/requests/{id}            Get one request
    POST   /leave/requests/{id}/approve    Full or partial approval
    POST   /leave/requests/{id}/reject     Reject with optional alternative
    POST   /leave/requests/{id}/cancel     Cancel pending or approved leave
    GET    /leave/balances/{employeeID}    Balances (optionally ?year=)
    GET    /leave/balances/{employeeID}/history   Ledger of one balance
    POST   /leave/balances/adjust          Manual adjustment
    POST   /leave/accrual/run              Run accrual now
    POST   /leave/carry-over               Year-end carry-over

  Reports:
    GET    /reports/overtime/{employeeID}  Daily and weekly overtime
    GET    /reports/pending-approvals      The caller's approval queue
    GET    /reports/dashboard/{employeeID} Presence, balances, week, requests

  Reference data:
    /employees, /policies, /holidays, /scenarios, /admin/time/sweep

AUTHORIZATION:
  Services check capabilities themselves. Handlers check only for the
  reference data the services do not own (employees, policies, holidays).

ERROR HANDLING:
  Every error goes through handleError, which maps generic.CodeOf to a
  status:
  - 400: validation
  - 403: forbidden
  - 404: not found
  - 409: state conflict, version conflict, duplicate
  - 422: policy violation (with violations and recommendations)
  - 500: internal (logged, details withheld)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo scenario loaders
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/factory"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
	"github.com/solomon-wilson/hrmis-sub002/report"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, e generic.Employee) error
	GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error)
	ListEmployees(ctx context.Context) ([]generic.Employee, error)
}

type PolicyStore interface {
	SaveLeavePolicy(ctx context.Context, p policy.LeavePolicy) error
	SaveOvertimePolicy(ctx context.Context, p overtime.Policy) error
	FindByID(ctx context.Context, id generic.PolicyID) (policy.Record, error)
	ListPolicies(ctx context.Context) ([]policy.Record, error)
}

type HolidayStore interface {
	AddHoliday(ctx context.Context, h generic.Holiday) error
	ListHolidays(ctx context.Context, companyID string) ([]generic.Holiday, error)
}

// Deps are the collaborators of the HTTP layer. PolicyCache is invalidated
// after policy writes when set. DevTokens enables POST /auth/token, which
// signs a token for any identity and must stay off in production.
type Deps struct {
	Leave   *leave.Manager
	Time    *timetracking.Service
	Reports *report.Service

	Employees   EmployeeStore
	Policies    PolicyStore
	Holidays    HolidayStore
	PolicyCache *policy.CachedRepository
	Authorizer  authz.Authorizer

	JWT       *jwtauth.JWTAuth
	TokenTTL  time.Duration
	DevTokens bool

	Clock  func() time.Time
	Logger *slog.Logger
}

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	deps    Deps
	factory *factory.PolicyFactory
	logger  *slog.Logger
	clock   func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(deps Deps) *Handler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Authorizer == nil {
		deps.Authorizer = authz.AllowAll{}
	}
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = time.Hour
	}
	return &Handler{
		deps:    deps,
		factory: factory.NewPolicyFactory(),
		logger:  deps.Logger,
		clock:   deps.Clock,
	}
}

// =============================================================================
// TIME TRACKING
// =============================================================================

func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	entry, err := h.deps.Time.ClockIn(r.Context(), actorOf(r), timetracking.ClockInInput{
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		At:         req.At,
		Location:   req.Location,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryDTO(entry))
}

func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	res, err := h.deps.Time.ClockOut(r.Context(), actorOf(r), timetracking.ClockOutInput{
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		At:         req.At,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClockOutDTO{
		Entry:     toTimeEntryDTO(res.Entry),
		DayHours:  res.DayHours,
		WeekHours: res.WeekHours,
		Weekly: HoursDTO{
			Total:      res.Weekly.Total(),
			Regular:    res.Weekly.Regular,
			Overtime:   res.Weekly.Overtime,
			DoubleTime: res.Weekly.DoubleTime,
		},
	})
}

func (h *Handler) StartBreak(w http.ResponseWriter, r *http.Request) {
	var req StartBreakRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	b, err := h.deps.Time.StartBreak(r.Context(), actorOf(r), timetracking.StartBreakInput{
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		Type:       timetracking.BreakType(req.Type),
		At:         req.At,
		Paid:       req.Paid,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) EndBreak(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	b, err := h.deps.Time.EndBreak(r.Context(), actorOf(r), timetracking.EndBreakInput{
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		At:         req.At,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) SubmitManualEntry(w http.ResponseWriter, r *http.Request) {
	var req ManualEntryRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	e, err := h.deps.Time.SubmitManualEntry(r.Context(), actorOf(r), timetracking.ManualEntryInput{
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		ClockIn:    req.ClockIn,
		ClockOut:   req.ClockOut,
		Reason:     req.Reason,
		Breaks:     req.Breaks,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryDTO(e))
}

func (h *Handler) SubmitCorrection(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	e, err := h.deps.Time.SubmitCorrection(r.Context(), actorOf(r), timetracking.CorrectionInput{
		EntryID:  chi.URLParam(r, "id"),
		ClockIn:  req.ClockIn,
		ClockOut: req.ClockOut,
		Reason:   req.Reason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryDTO(e))
}

func (h *Handler) ApproveTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeOptional(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	e, err := h.deps.Time.ApproveTimeEntry(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(e))
}

func (h *Handler) RejectTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	e, err := h.deps.Time.RejectTimeEntry(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(e))
}

func (h *Handler) GetTimeEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.Time.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.authorize(r, authz.CapViewReports, e.Header().EmployeeID); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryDTO(e))
}

// ListTimeEntries requires employee_id. from and to are RFC 3339 instants
// bounding the clock-in time; status may repeat.
func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs generic.ValidationErrors
	employeeID := generic.EmployeeID(q.Get("employee_id"))
	if employeeID == "" {
		errs.Add("employee_id", "is required")
	}
	filter := timetracking.EntryFilter{EmployeeID: employeeID}
	filter.From = parseInstantParam(q.Get("from"), "from", &errs)
	filter.To = parseInstantParam(q.Get("to"), "to", &errs)
	for _, s := range q["status"] {
		filter.Statuses = append(filter.Statuses, timetracking.EntryStatus(strings.ToUpper(s)))
	}
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.authorize(r, authz.CapViewReports, employeeID); err != nil {
		h.handleError(w, r, err)
		return
	}
	entries, err := h.deps.Time.ListEntries(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]TimeEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toTimeEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetTimeStatus(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "employeeID"))
	if err := h.authorize(r, authz.CapViewReports, employeeID); err != nil {
		h.handleError(w, r, err)
		return
	}
	st, err := h.deps.Time.Status(r.Context(), employeeID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SweepStaleEntries closes forgotten ACTIVE entries, as the scheduler does.
func (h *Handler) SweepStaleEntries(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r, authz.CapSweepTime, ""); err != nil {
		h.handleError(w, r, err)
		return
	}
	res, err := h.deps.Time.AutoClockOutStaleEntries(r.Context(), h.clock())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepResultDTO(res))
}

func toSweepResultDTO(res timetracking.SweepResult) SweepResultDTO {
	dto := SweepResultDTO{Scanned: res.Scanned, Closed: res.Closed}
	if dto.Closed == nil {
		dto.Closed = []string{}
	}
	if len(res.Failures) > 0 {
		dto.Failures = make(map[string]string, len(res.Failures))
		for _, f := range res.Failures {
			dto.Failures[f.EntryID] = f.Err.Error()
		}
	}
	return dto
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (h *Handler) SubmitLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	var errs generic.ValidationErrors
	start := parseDateField(req.StartDate, "start_date", &errs)
	end := parseDateField(req.EndDate, "end_date", &errs)
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	created, err := h.deps.Leave.Submit(r.Context(), actorOf(r), leave.SubmitInput{
		EmployeeID:    generic.EmployeeID(req.EmployeeID),
		LeaveTypeID:   generic.LeaveTypeID(req.LeaveTypeID),
		StartDate:     start,
		EndDate:       end,
		TotalDays:     req.TotalDays,
		Reason:        req.Reason,
		EmployeeNotes: req.EmployeeNotes,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(*created))
}

func (h *Handler) GetLeaveRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.deps.Leave.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.authorize(r, authz.CapViewReports, req.EmployeeID); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*req))
}

// ListLeaveRequests requires employee_id; status and leave_type_id narrow it.
func (h *Handler) ListLeaveRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	employeeID := generic.EmployeeID(q.Get("employee_id"))
	if employeeID == "" {
		h.handleError(w, r, generic.ValidationErrors{{Field: "employee_id", Message: "is required"}})
		return
	}
	if err := h.authorize(r, authz.CapViewReports, employeeID); err != nil {
		h.handleError(w, r, err)
		return
	}
	filter := leave.RequestFilter{
		EmployeeIDs: []generic.EmployeeID{employeeID},
		LeaveTypeID: generic.LeaveTypeID(q.Get("leave_type_id")),
	}
	for _, s := range q["status"] {
		filter.Statuses = append(filter.Statuses, leave.Status(strings.ToUpper(s)))
	}
	reqs, err := h.deps.Leave.ListRequests(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

func (h *Handler) ApproveLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req ApproveLeaveRequest
	if err := decodeOptional(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	in := leave.ApproveInput{ApprovedDays: req.ApprovedDays, Notes: req.Notes}
	if req.EndDate != "" {
		var errs generic.ValidationErrors
		end := parseDateField(req.EndDate, "end_date", &errs)
		if err := errs.Err(); err != nil {
			h.handleError(w, r, err)
			return
		}
		in.EndDate = &end
	}
	updated, err := h.deps.Leave.Approve(r.Context(), actorOf(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*updated))
}

func (h *Handler) RejectLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req RejectLeaveRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	in := leave.RejectInput{Reason: req.Reason}
	var errs generic.ValidationErrors
	if req.AlternativeStart != "" {
		start := parseDateField(req.AlternativeStart, "alternative_start", &errs)
		in.AlternativeStart = &start
	}
	if req.AlternativeEnd != "" {
		end := parseDateField(req.AlternativeEnd, "alternative_end", &errs)
		in.AlternativeEnd = &end
	}
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	updated, err := h.deps.Leave.Reject(r.Context(), actorOf(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*updated))
}

func (h *Handler) CancelLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeOptional(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	updated, err := h.deps.Leave.Cancel(r.Context(), actorOf(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*updated))
}

// =============================================================================
// BALANCES
// =============================================================================

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "employeeID"))
	var errs generic.ValidationErrors
	year := parseIntParam(r.URL.Query().Get("year"), "year", &errs)
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	sums, err := h.deps.Reports.BalanceSummaries(r.Context(), actorOf(r), employeeID, year)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// GetBalanceHistory returns the ledger of one balance. leave_type_id is
// required; year defaults to the current year.
func (h *Handler) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs generic.ValidationErrors
	key := generic.BalanceKey{
		EmployeeID:  generic.EmployeeID(chi.URLParam(r, "employeeID")),
		LeaveTypeID: generic.LeaveTypeID(q.Get("leave_type_id")),
		Year:        parseIntParam(q.Get("year"), "year", &errs),
	}
	if key.LeaveTypeID == "" {
		errs.Add("leave_type_id", "is required")
	}
	if key.Year == 0 {
		key.Year = h.clock().Year()
	}
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.authorize(r, authz.CapViewReports, key.EmployeeID); err != nil {
		h.handleError(w, r, err)
		return
	}
	txs, err := h.deps.Leave.History(r.Context(), key)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	ok, _, err := h.deps.Leave.Reconcile(r.Context(), key)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dto := HistoryDTO{Key: key.String(), Reconciled: ok, Transactions: make([]TransactionDTO, 0, len(txs))}
	for _, tx := range txs {
		dto.Transactions = append(dto.Transactions, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req AdjustBalanceRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	b, err := h.deps.Leave.AdjustBalance(r.Context(), actorOf(r), leave.AdjustInput{
		Key: generic.BalanceKey{
			EmployeeID:  generic.EmployeeID(req.EmployeeID),
			LeaveTypeID: generic.LeaveTypeID(req.LeaveTypeID),
			Year:        req.Year,
		},
		Delta:  req.Delta,
		Reason: req.Reason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req AccrualRunRequest
	if err := decodeOptional(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	asOf := generic.DateOf(h.clock())
	if req.AsOf != "" {
		var errs generic.ValidationErrors
		asOf = parseDateField(req.AsOf, "as_of", &errs)
		if err := errs.Err(); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	res, err := h.deps.Leave.ProcessAutomaticAccrual(r.Context(), actorOf(r), leave.AccrualInput{
		AsOf:       asOf,
		DryRun:     req.DryRun,
		EmployeeID: generic.EmployeeID(req.EmployeeID),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccrualResultDTO(res))
}

func (h *Handler) RunCarryOver(w http.ResponseWriter, r *http.Request) {
	var req CarryOverRequest
	if err := decodeOptional(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if req.FromYear == 0 {
		req.FromYear = h.clock().Year() - 1
	}
	res, err := h.deps.Leave.ProcessCarryOver(r.Context(), actorOf(r), req.FromYear, req.DryRun)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCarryOverResultDTO(res))
}

// =============================================================================
// REPORTS
// =============================================================================

// OvertimeReport covers [from, to) in dates; the default is the current
// week. base_rate defaults to zero, which leaves the pay projections at zero.
func (h *Handler) OvertimeReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs generic.ValidationErrors
	from := generic.StartOfWeek(h.clock())
	to := from.AddDate(0, 0, 7)
	if s := q.Get("from"); s != "" {
		from = parseDateField(s, "from", &errs).Time
	}
	if s := q.Get("to"); s != "" {
		to = parseDateField(s, "to", &errs).Time
	}
	baseRate := decimal.Zero
	if s := q.Get("base_rate"); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil {
			errs.Add("base_rate", "must be a decimal number")
		}
		baseRate = v
	}
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	sum, err := h.deps.Reports.OvertimeSummary(r.Context(), actorOf(r),
		generic.EmployeeID(chi.URLParam(r, "employeeID")),
		generic.TimeWindow{From: from, To: to}, baseRate)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	queue, err := h.deps.Reports.PendingApprovals(r.Context(), actorOf(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dto := PendingApprovalsDTO{
		LeaveRequests: toLeaveRequestDTOs(queue.LeaveRequests),
		TimeEntries:   make([]TimeEntryDTO, 0, len(queue.TimeEntries)),
	}
	for _, rec := range queue.TimeEntries {
		dto.TimeEntries = append(dto.TimeEntries, recordToDTO(rec))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Reports.Dashboard(r.Context(), actorOf(r), generic.EmployeeID(chi.URLParam(r, "employeeID")))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		EmployeeID:   string(d.EmployeeID),
		Status:       d.Status,
		Balances:     d.Balances,
		ThisWeek:     d.ThisWeek,
		OpenRequests: toLeaveRequestDTOs(d.OpenRequests),
		GeneratedAt:  d.GeneratedAt,
	})
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r, authz.CapManageEmployees, ""); err != nil {
		h.handleError(w, r, err)
		return
	}
	emps, err := h.deps.Employees.ListEmployees(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]EmployeeDTO, 0, len(emps))
	for _, e := range emps {
		out = append(out, toEmployeeDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	if err := h.authorize(r, authz.CapViewReports, id); err != nil {
		h.handleError(w, r, err)
		return
	}
	e, err := h.deps.Employees.GetEmployee(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(e))
}

// SaveEmployee creates or replaces an employee record.
func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.authorize(r, authz.CapManageEmployees, ""); err != nil {
		h.handleError(w, r, err)
		return
	}
	var errs generic.ValidationErrors
	if req.ID == "" {
		errs.Add("id", "is required")
	}
	hire := parseDateField(req.HireDate, "hire_date", &errs)
	empType := generic.EmploymentType(strings.ToUpper(req.EmploymentType))
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	e := generic.Employee{
		ID:             generic.EmployeeID(req.ID),
		Name:           req.Name,
		Email:          req.Email,
		DepartmentID:   req.DepartmentID,
		EmploymentType: empType,
		JobTitle:       req.JobTitle,
		ManagerID:      generic.EmployeeID(req.ManagerID),
		CompanyID:      req.CompanyID,
		HireDate:       hire,
		CreatedAt:      h.clock(),
	}
	if err := h.deps.Employees.SaveEmployee(r.Context(), e); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

// =============================================================================
// POLICIES
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	recs, err := h.deps.Policies.ListPolicies(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]PolicyDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.toPolicyDTO(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Policies.FindByID(r.Context(), generic.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPolicyDTO(rec))
}

// CreatePolicy stores a policy from its JSON definition. Saving an existing
// ID publishes a new version; earlier decisions keep the version they used.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r, authz.CapManagePolicies, ""); err != nil {
		h.handleError(w, r, err)
		return
	}
	var body factory.PolicyJSON
	if err := decode(r, &body); err != nil {
		h.handleError(w, r, err)
		return
	}
	rec, err := h.factory.FromJSON(body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	stored, err := h.savePolicy(r.Context(), rec)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toPolicyDTO(stored))
}

func (h *Handler) savePolicy(ctx context.Context, rec policy.Record) (policy.Record, error) {
	var (
		id  generic.PolicyID
		err error
	)
	switch rec.Kind {
	case policy.KindLeave:
		id = rec.Leave.ID
		err = h.deps.Policies.SaveLeavePolicy(ctx, *rec.Leave)
	case policy.KindOvertime:
		id = rec.Overtime.ID
		err = h.deps.Policies.SaveOvertimePolicy(ctx, *rec.Overtime)
	default:
		return policy.Record{}, generic.ValidationErrors{{Field: "kind", Message: "must be leave or overtime"}}
	}
	if err != nil {
		return policy.Record{}, err
	}
	if h.deps.PolicyCache != nil {
		h.deps.PolicyCache.Invalidate()
	}
	return h.deps.Policies.FindByID(ctx, id)
}

func (h *Handler) toPolicyDTO(rec policy.Record) PolicyDTO {
	cfg := h.factory.ToJSON(rec)
	return PolicyDTO{
		ID:      cfg.ID,
		Kind:    string(rec.Kind),
		Name:    cfg.Name,
		Version: rec.Version(),
		Config:  cfg,
	}
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	hols, err := h.deps.Holidays.ListHolidays(r.Context(), r.URL.Query().Get("company_id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]HolidayDTO, 0, len(hols))
	for _, hol := range hols {
		out = append(out, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r, authz.CapManagePolicies, ""); err != nil {
		h.handleError(w, r, err)
		return
	}
	var req HolidayDTO
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	var errs generic.ValidationErrors
	date := parseDateField(req.Date, "date", &errs)
	if req.Name == "" {
		errs.Add("name", "is required")
	}
	if err := errs.Err(); err != nil {
		h.handleError(w, r, err)
		return
	}
	hol := generic.Holiday{ID: req.ID, CompanyID: req.CompanyID, Date: date, Name: req.Name, Recurring: req.Recurring}
	if err := h.deps.Holidays.AddHoliday(r.Context(), hol); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

// =============================================================================
// AUTH
// =============================================================================

// IssueToken signs a token for the requested identity. Only mounted when
// DevTokens is set.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if req.UserID == "" {
		h.handleError(w, r, generic.ValidationErrors{{Field: "user_id", Message: "is required"}})
		return
	}
	actor := authz.Actor{ID: req.UserID, EmployeeID: generic.EmployeeID(req.EmployeeID)}
	for _, role := range req.Roles {
		actor.Roles = append(actor.Roles, authz.Role(strings.ToUpper(role)))
	}
	token, err := authz.IssueToken(h.deps.JWT, actor, h.deps.TokenTTL)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: h.clock().Add(h.deps.TokenTTL)})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) authorize(r *http.Request, c authz.Capability, subject generic.EmployeeID) error {
	return h.deps.Authorizer.Authorize(r.Context(), actorOf(r), c, subject)
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return decode(r, v)
}

func parseDateField(s, field string, errs *generic.ValidationErrors) generic.TimePoint {
	if s == "" {
		errs.Add(field, "is required")
		return generic.TimePoint{}
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		errs.Add(field, "must be a date (YYYY-MM-DD)")
	}
	return tp
}

func parseInstantParam(s, field string, errs *generic.ValidationErrors) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		errs.Add(field, "must be an RFC 3339 timestamp")
		return nil
	}
	return &t
}

func parseIntParam(s, field string, errs *generic.ValidationErrors) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		errs.Add(field, "must be an integer")
	}
	return v
}
