/*
Package notify carries domain events to the notification collaborator.

PURPOSE:
  The leave and time-tracking components emit typed events after a state
  transition has committed. Delivery is fire-and-forget: a failure or
  timeout is logged and never turns into a domain error, and never rolls
  back the transition that produced the event.

EVENT PAYLOADS:
  Every event carries stable IDs and the values the engine computed
  (balances after the change, overtime bands, routing tiers). A recipient
  never has to re-derive domain state to render a message.

DISPATCHERS:
  - LogDispatcher:   structured log line per event (default)
  - AsyncDispatcher: bounded queue drained by background workers
  - EmailDispatcher: e-mail via gomail
  - Recorder:        captures events in memory (tests)
  - Multi:           fan-out to several dispatchers

SEE ALSO:
  - dispatch.go: Dispatcher interface and best-effort Send
*/
package notify

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// Kind identifies an event type on the wire.
type Kind string

const (
	KindLeaveRequestSubmitted    Kind = "LEAVE_REQUEST_SUBMITTED"
	KindLeaveRequestApproved     Kind = "LEAVE_REQUEST_APPROVED"
	KindLeaveRequestRejected     Kind = "LEAVE_REQUEST_REJECTED"
	KindLeaveRequestCancelled    Kind = "LEAVE_REQUEST_CANCELLED"
	KindPendingLeaveApproval     Kind = "PENDING_LEAVE_APPROVAL"
	KindTeamLeaveConflict        Kind = "TEAM_LEAVE_CONFLICT"
	KindPolicyViolation          Kind = "POLICY_VIOLATION"
	KindLeaveBalanceLow          Kind = "LEAVE_BALANCE_LOW"
	KindIncompleteTimeEntry      Kind = "INCOMPLETE_TIME_ENTRY"
	KindOvertimeThresholdReached Kind = "OVERTIME_THRESHOLD_REACHED"
)

// Event is implemented by every payload below.
type Event interface {
	Kind() Kind
	// Recipient is the employee the event is addressed to.
	Recipient() generic.EmployeeID
}

// =============================================================================
// LEAVE EVENTS
// =============================================================================

type LeaveRequestSubmitted struct {
	RequestID      string
	EmployeeID     generic.EmployeeID
	LeaveTypeID    generic.LeaveTypeID
	StartDate      generic.TimePoint
	EndDate        generic.TimePoint // exclusive
	TotalDays      decimal.Decimal
	PendingAfter   decimal.Decimal
	AvailableAfter decimal.Decimal
	PolicyID       generic.PolicyID
	PolicyVersion  int
}

type LeaveRequestApproved struct {
	RequestID      string
	EmployeeID     generic.EmployeeID
	ApproverID     generic.EmployeeID
	RequestedDays  decimal.Decimal
	ApprovedDays   decimal.Decimal
	Partial        bool
	EndDate        generic.TimePoint
	UsedAfter      decimal.Decimal
	AvailableAfter decimal.Decimal
}

type LeaveRequestRejected struct {
	RequestID        string
	EmployeeID       generic.EmployeeID
	ApproverID       generic.EmployeeID
	Reason           string
	AlternativeStart *generic.TimePoint
	AlternativeEnd   *generic.TimePoint
	ReleasedDays     decimal.Decimal
}

type LeaveRequestCancelled struct {
	RequestID      string
	EmployeeID     generic.EmployeeID
	CancelledBy    string
	PreviousStatus string
	RestoredDays   decimal.Decimal
	AvailableAfter decimal.Decimal
}

// PendingLeaveApproval asks the first approver in the route to act.
type PendingLeaveApproval struct {
	RequestID   string
	EmployeeID  generic.EmployeeID
	ManagerID   generic.EmployeeID
	Tiers       []string
	TotalDays   decimal.Decimal
	StartDate   generic.TimePoint
	EndDate     generic.TimePoint
	SubmittedAt time.Time
}

// TeamLeaveConflict tells the manager that colleagues are already away.
type TeamLeaveConflict struct {
	RequestID            string
	EmployeeID           generic.EmployeeID
	ManagerID            generic.EmployeeID
	DepartmentID         string
	ConflictingEmployees []generic.EmployeeID
	ConflictingRequests  []string
	StartDate            generic.TimePoint
	EndDate              generic.TimePoint
}

type PolicyViolation struct {
	EmployeeID      generic.EmployeeID
	LeaveTypeID     generic.LeaveTypeID
	PolicyID        generic.PolicyID
	PolicyVersion   int
	Violations      []generic.Violation
	Recommendations []string
}

type LeaveBalanceLow struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Year        int
	Available   decimal.Decimal
	Threshold   decimal.Decimal
}

// =============================================================================
// TIME EVENTS
// =============================================================================

// IncompleteTimeEntry reports an entry force-closed by the stale sweep.
type IncompleteTimeEntry struct {
	EntryID     string
	EmployeeID  generic.EmployeeID
	ClockIn     time.Time
	ClosedAt    time.Time
	HoursWorked decimal.Decimal
}

type OvertimeThresholdReached struct {
	EntryID         string
	EmployeeID      generic.EmployeeID
	Date            generic.TimePoint
	DayHours        decimal.Decimal
	RegularHours    decimal.Decimal
	OvertimeHours   decimal.Decimal
	DoubleTimeHours decimal.Decimal
	WeekHours       decimal.Decimal
	WeeklyOvertime  decimal.Decimal
	PolicyID        generic.PolicyID
	PolicyVersion   int
}

func (LeaveRequestSubmitted) Kind() Kind    { return KindLeaveRequestSubmitted }
func (LeaveRequestApproved) Kind() Kind     { return KindLeaveRequestApproved }
func (LeaveRequestRejected) Kind() Kind     { return KindLeaveRequestRejected }
func (LeaveRequestCancelled) Kind() Kind    { return KindLeaveRequestCancelled }
func (PendingLeaveApproval) Kind() Kind     { return KindPendingLeaveApproval }
func (TeamLeaveConflict) Kind() Kind        { return KindTeamLeaveConflict }
func (PolicyViolation) Kind() Kind          { return KindPolicyViolation }
func (LeaveBalanceLow) Kind() Kind          { return KindLeaveBalanceLow }
func (IncompleteTimeEntry) Kind() Kind      { return KindIncompleteTimeEntry }
func (OvertimeThresholdReached) Kind() Kind { return KindOvertimeThresholdReached }

func (e LeaveRequestSubmitted) Recipient() generic.EmployeeID    { return e.EmployeeID }
func (e LeaveRequestApproved) Recipient() generic.EmployeeID     { return e.EmployeeID }
func (e LeaveRequestRejected) Recipient() generic.EmployeeID     { return e.EmployeeID }
func (e LeaveRequestCancelled) Recipient() generic.EmployeeID    { return e.EmployeeID }
func (e PendingLeaveApproval) Recipient() generic.EmployeeID     { return e.ManagerID }
func (e TeamLeaveConflict) Recipient() generic.EmployeeID        { return e.ManagerID }
func (e PolicyViolation) Recipient() generic.EmployeeID          { return e.EmployeeID }
func (e LeaveBalanceLow) Recipient() generic.EmployeeID          { return e.EmployeeID }
func (e IncompleteTimeEntry) Recipient() generic.EmployeeID      { return e.EmployeeID }
func (e OvertimeThresholdReached) Recipient() generic.EmployeeID { return e.EmployeeID }
