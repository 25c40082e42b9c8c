package timetracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/authz"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/notify"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
)

// State conflict codes.
const (
	CodeDuplicateClockIn = "DUPLICATE_CLOCK_IN"
	CodeNotClockedIn     = "NOT_CLOCKED_IN"
	CodeOnBreak          = "ON_BREAK"
	CodeNotOnBreak       = "NOT_ON_BREAK"
	CodeOverlappingEntry = "OVERLAPPING_ENTRY"
	CodeNotCompleted     = "NOT_COMPLETED"
	CodeNotPending       = "NOT_PENDING_APPROVAL"
)

type Deps struct {
	Store      TxStore
	Policies   policy.Repository
	Directory  generic.Directory
	Notifier   notify.Dispatcher
	Authorizer authz.Authorizer
	Clock      func() time.Time
	NewID      func() string
	Logger     *slog.Logger
}

type Config struct {
	AllowFutureClockIn bool
	// FutureSkew tolerates client clocks running slightly ahead.
	FutureSkew    time.Duration
	MaxDailyHours decimal.Decimal

	ManualEntryMaxAge           time.Duration
	ManualEntryRequiresApproval bool

	// MaxShiftDuration is when the sweep closes a forgotten ACTIVE entry.
	MaxShiftDuration time.Duration

	DefaultOvertime overtime.Policy
}

func DefaultConfig() Config {
	return Config{
		FutureSkew:                  time.Minute,
		MaxDailyHours:               decimal.NewFromInt(16),
		ManualEntryMaxAge:           30 * 24 * time.Hour,
		ManualEntryRequiresApproval: true,
		MaxShiftDuration:            12 * time.Hour,
		DefaultOvertime:             overtime.DefaultPolicy(),
	}
}

type Service struct {
	deps   Deps
	config Config
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Authorizer == nil {
		deps.Authorizer = authz.AllowAll{}
	}
	def := DefaultConfig()
	if cfg.MaxDailyHours.IsZero() {
		cfg.MaxDailyHours = def.MaxDailyHours
	}
	if cfg.MaxShiftDuration == 0 {
		cfg.MaxShiftDuration = def.MaxShiftDuration
	}
	if cfg.ManualEntryMaxAge == 0 {
		cfg.ManualEntryMaxAge = def.ManualEntryMaxAge
	}
	if cfg.DefaultOvertime.ID == "" {
		cfg.DefaultOvertime = def.DefaultOvertime
	}
	return &Service{deps: deps, config: cfg}
}

// =============================================================================
// CLOCK IN / OUT
// =============================================================================

type ClockInInput struct {
	EmployeeID generic.EmployeeID
	At         *time.Time // defaults to now
	Location   *GeoLocation
}

func (s *Service) ClockIn(ctx context.Context, actor authz.Actor, in ClockInInput) (*ActiveEntry, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapClock, in.EmployeeID); err != nil {
		return nil, err
	}
	now := s.deps.Clock()
	at := s.at(in.At, now)
	if err := s.checkNotFuture("clock_in", at, now); err != nil {
		return nil, err
	}

	var entry *ActiveEntry
	err := s.deps.Store.WithEmployeeTx(ctx, in.EmployeeID, func(st Store) error {
		active, err := activeEntry(ctx, st, in.EmployeeID)
		if err != nil {
			return err
		}
		if active != nil {
			return conflict(active.ID, CodeDuplicateClockIn, ClockedIn, "clock in")
		}
		dayStart := generic.StartOfDay(at)
		dayEnd := dayStart.AddDate(0, 0, 1)
		pending, err := st.ListEntries(ctx, EntryFilter{
			EmployeeID: in.EmployeeID,
			From:       &dayStart,
			To:         &dayEnd,
			Statuses:   []EntryStatus{StatusPendingApproval},
		})
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return conflict(pending[0].Header().ID, CodeDuplicateClockIn, string(StatusPendingApproval), "clock in")
		}

		entry = &ActiveEntry{EntryHeader: EntryHeader{
			ID:         s.deps.NewID(),
			EmployeeID: in.EmployeeID,
			ClockIn:    at,
			Location:   in.Location,
			CreatedAt:  now,
			UpdatedAt:  now,
		}}
		return st.SaveEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.InfoContext(ctx, "clocked in",
		slog.String("employee_id", string(in.EmployeeID)),
		slog.String("entry_id", entry.ID))
	return entry, nil
}

type ClockOutInput struct {
	EmployeeID generic.EmployeeID
	At         *time.Time
}

// ClockOutResult pairs the completed entry with the weekly figures, which
// are reported next to the entry's daily split rather than merged into it.
type ClockOutResult struct {
	Entry     *CompletedEntry
	DayHours  decimal.Decimal
	WeekHours decimal.Decimal
	Weekly    overtime.Breakdown
}

func (s *Service) ClockOut(ctx context.Context, actor authz.Actor, in ClockOutInput) (ClockOutResult, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapClock, in.EmployeeID); err != nil {
		return ClockOutResult{}, err
	}
	now := s.deps.Clock()
	at := s.at(in.At, now)
	if err := s.checkNotFuture("clock_out", at, now); err != nil {
		return ClockOutResult{}, err
	}
	pol, err := s.overtimePolicy(ctx, in.EmployeeID)
	if err != nil {
		return ClockOutResult{}, err
	}

	var res ClockOutResult
	err = s.deps.Store.WithEmployeeTx(ctx, in.EmployeeID, func(st Store) error {
		active, err := activeEntry(ctx, st, in.EmployeeID)
		if err != nil {
			return err
		}
		if active == nil {
			return conflict("", CodeNotClockedIn, ClockedOut, "clock out")
		}
		if b := active.OpenBreak(); b != nil {
			return conflict(active.ID, CodeOnBreak, OnBreak, "clock out")
		}
		if !at.After(active.ClockIn) {
			return fieldError("clock_out", "must be after clock-in "+active.ClockIn.Format(time.RFC3339))
		}
		hours := WorkedHours(active.ClockIn, at, active.Breaks)
		if hours.GreaterThan(s.config.MaxDailyHours) {
			return fieldError("clock_out", fmt.Sprintf("%s hours exceeds the %s hour daily maximum", hours, s.config.MaxDailyHours))
		}

		completed := &CompletedEntry{
			EntryHeader: active.EntryHeader,
			ClockOut:    at,
			TotalHours:  hours,
		}
		completed.UpdatedAt = now
		res, err = s.complete(ctx, st, completed, pol)
		if err != nil {
			return err
		}
		return st.SaveEntry(ctx, completed)
	})
	if err != nil {
		return ClockOutResult{}, err
	}

	s.deps.Logger.InfoContext(ctx, "clocked out",
		slog.String("employee_id", string(in.EmployeeID)),
		slog.String("entry_id", res.Entry.ID),
		slog.String("hours", res.Entry.TotalHours.String()))
	s.notifyOvertime(ctx, res, pol)
	return res, nil
}

// =============================================================================
// BREAKS
// =============================================================================

type StartBreakInput struct {
	EmployeeID generic.EmployeeID
	Type       BreakType
	At         *time.Time
	// Paid overrides the type's default.
	Paid *bool
}

func (s *Service) StartBreak(ctx context.Context, actor authz.Actor, in StartBreakInput) (*BreakEntry, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapClock, in.EmployeeID); err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, fieldError("type", fmt.Sprintf("unknown break type %q", in.Type))
	}
	now := s.deps.Clock()
	at := s.at(in.At, now)
	if err := s.checkNotFuture("start", at, now); err != nil {
		return nil, err
	}

	var started BreakEntry
	err := s.deps.Store.WithEmployeeTx(ctx, in.EmployeeID, func(st Store) error {
		active, err := activeEntry(ctx, st, in.EmployeeID)
		if err != nil {
			return err
		}
		if active == nil {
			return conflict("", CodeNotClockedIn, ClockedOut, "start break")
		}
		if b := active.OpenBreak(); b != nil {
			return conflict(active.ID, CodeOnBreak, OnBreak, "start break")
		}
		if !at.After(active.ClockIn) {
			return fieldError("start", "must be after clock-in")
		}
		for _, b := range active.Breaks {
			if b.End != nil && at.Before(*b.End) {
				return fieldError("start", fmt.Sprintf("overlaps break %s", b.ID))
			}
		}

		paid := in.Type.PaidByDefault()
		if in.Paid != nil {
			paid = *in.Paid
		}
		started = BreakEntry{ID: s.deps.NewID(), Type: in.Type, Start: at, Paid: paid}
		active.Breaks = append(active.Breaks, started)
		active.UpdatedAt = now
		return st.SaveEntry(ctx, active)
	})
	if err != nil {
		return nil, err
	}
	return &started, nil
}

type EndBreakInput struct {
	EmployeeID generic.EmployeeID
	At         *time.Time
}

func (s *Service) EndBreak(ctx context.Context, actor authz.Actor, in EndBreakInput) (*BreakEntry, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapClock, in.EmployeeID); err != nil {
		return nil, err
	}
	now := s.deps.Clock()
	at := s.at(in.At, now)
	if err := s.checkNotFuture("end", at, now); err != nil {
		return nil, err
	}

	var ended BreakEntry
	err := s.deps.Store.WithEmployeeTx(ctx, in.EmployeeID, func(st Store) error {
		active, err := activeEntry(ctx, st, in.EmployeeID)
		if err != nil {
			return err
		}
		if active == nil {
			return conflict("", CodeNotClockedIn, ClockedOut, "end break")
		}
		b := active.OpenBreak()
		if b == nil {
			return conflict(active.ID, CodeNotOnBreak, ClockedIn, "end break")
		}
		if !at.After(b.Start) {
			return fieldError("end", "must be after the break start")
		}
		b.close(at)
		ended = *b
		active.UpdatedAt = now
		return st.SaveEntry(ctx, active)
	})
	if err != nil {
		return nil, err
	}
	return &ended, nil
}

// =============================================================================
// MANUAL ENTRIES AND CORRECTIONS
// =============================================================================

type ManualEntryInput struct {
	EmployeeID generic.EmployeeID
	ClockIn    time.Time
	ClockOut   time.Time
	Reason     string
	Breaks     []BreakEntry
}

// SubmitManualEntry records a shift after the fact. It waits for approval
// unless the configuration allows direct entry.
func (s *Service) SubmitManualEntry(ctx context.Context, actor authz.Actor, in ManualEntryInput) (TimeEntry, error) {
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapSubmitManual, in.EmployeeID); err != nil {
		return nil, err
	}
	now := s.deps.Clock()
	if err := s.validateSpan(in.ClockIn, in.ClockOut, now); err != nil {
		return nil, err
	}
	breaks, err := s.normalizeBreaks(in.ClockIn, in.ClockOut, in.Breaks)
	if err != nil {
		return nil, err
	}
	hours := WorkedHours(in.ClockIn, in.ClockOut, breaks)
	if hours.GreaterThan(s.config.MaxDailyHours) {
		return nil, fieldError("clock_out", fmt.Sprintf("%s hours exceeds the %s hour daily maximum", hours, s.config.MaxDailyHours))
	}
	var pol overtime.Policy
	if !s.config.ManualEntryRequiresApproval {
		if pol, err = s.overtimePolicy(ctx, in.EmployeeID); err != nil {
			return nil, err
		}
	}

	header := EntryHeader{
		ID:         s.deps.NewID(),
		EmployeeID: in.EmployeeID,
		ClockIn:    in.ClockIn,
		Manual:     true,
		Breaks:     breaks,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var entry TimeEntry
	var res ClockOutResult
	err = s.deps.Store.WithEmployeeTx(ctx, in.EmployeeID, func(st Store) error {
		if err := checkOverlap(ctx, st, in.EmployeeID, in.ClockIn, in.ClockOut, ""); err != nil {
			return err
		}
		if s.config.ManualEntryRequiresApproval {
			entry = &PendingApprovalEntry{
				EntryHeader: header,
				ClockOut:    in.ClockOut,
				TotalHours:  hours,
				Kind:        PendingManual,
				Reason:      in.Reason,
			}
			return st.SaveEntry(ctx, entry)
		}
		completed := &CompletedEntry{EntryHeader: header, ClockOut: in.ClockOut, TotalHours: hours, Notes: in.Reason}
		if res, err = s.complete(ctx, st, completed, pol); err != nil {
			return err
		}
		entry = completed
		return st.SaveEntry(ctx, completed)
	})
	if err != nil {
		return nil, err
	}
	if res.Entry != nil {
		s.notifyOvertime(ctx, res, pol)
	}
	return entry, nil
}

type CorrectionInput struct {
	EntryID  string
	ClockIn  time.Time
	ClockOut time.Time
	Reason   string
}

// SubmitCorrection proposes new times for a completed entry. The committed
// values stay in Original until a decision is made.
func (s *Service) SubmitCorrection(ctx context.Context, actor authz.Actor, in CorrectionInput) (TimeEntry, error) {
	current, err := s.deps.Store.GetEntry(ctx, in.EntryID)
	if err != nil {
		return nil, err
	}
	employeeID := current.Header().EmployeeID
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapSubmitManual, employeeID); err != nil {
		return nil, err
	}
	if in.Reason == "" {
		return nil, fieldError("reason", "is required")
	}
	now := s.deps.Clock()
	if err := s.validateSpan(in.ClockIn, in.ClockOut, now); err != nil {
		return nil, err
	}
	var pol overtime.Policy
	if !s.config.ManualEntryRequiresApproval {
		if pol, err = s.overtimePolicy(ctx, employeeID); err != nil {
			return nil, err
		}
	}

	var entry TimeEntry
	var res ClockOutResult
	err = s.deps.Store.WithEmployeeTx(ctx, employeeID, func(st Store) error {
		e, err := st.GetEntry(ctx, in.EntryID)
		if err != nil {
			return err
		}
		completed, ok := e.(*CompletedEntry)
		if !ok {
			return conflict(in.EntryID, CodeNotCompleted, string(e.Status()), "correct")
		}
		if err := checkOverlap(ctx, st, employeeID, in.ClockIn, in.ClockOut, in.EntryID); err != nil {
			return err
		}

		header := completed.EntryHeader
		header.ClockIn = in.ClockIn
		header.Breaks = breaksWithin(completed.Breaks, in.ClockIn, in.ClockOut)
		header.UpdatedAt = now
		hours := WorkedHours(in.ClockIn, in.ClockOut, header.Breaks)
		if hours.GreaterThan(s.config.MaxDailyHours) {
			return fieldError("clock_out", fmt.Sprintf("%s hours exceeds the %s hour daily maximum", hours, s.config.MaxDailyHours))
		}

		if s.config.ManualEntryRequiresApproval {
			original := *completed
			entry = &PendingApprovalEntry{
				EntryHeader: header,
				ClockOut:    in.ClockOut,
				TotalHours:  hours,
				Kind:        PendingCorrection,
				Reason:      in.Reason,
				Original:    &original,
			}
			return st.SaveEntry(ctx, entry)
		}
		corrected := &CompletedEntry{EntryHeader: header, ClockOut: in.ClockOut, TotalHours: hours, Notes: in.Reason}
		if res, err = s.complete(ctx, st, corrected, pol); err != nil {
			return err
		}
		entry = corrected
		return st.SaveEntry(ctx, corrected)
	})
	if err != nil {
		return nil, err
	}
	if res.Entry != nil {
		s.notifyOvertime(ctx, res, pol)
	}
	return entry, nil
}

// ApproveTimeEntry completes a pending entry with freshly computed hours.
func (s *Service) ApproveTimeEntry(ctx context.Context, actor authz.Actor, entryID, note string) (*CompletedEntry, error) {
	current, err := s.deps.Store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	employeeID := current.Header().EmployeeID
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapApproveTime, employeeID); err != nil {
		return nil, err
	}
	pol, err := s.overtimePolicy(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock()
	var res ClockOutResult
	err = s.deps.Store.WithEmployeeTx(ctx, employeeID, func(st Store) error {
		e, err := st.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		pending, ok := e.(*PendingApprovalEntry)
		if !ok {
			return conflict(entryID, CodeNotPending, string(e.Status()), "approve")
		}
		approvedAt := now
		completed := &CompletedEntry{
			EntryHeader: pending.EntryHeader,
			ClockOut:    pending.ClockOut,
			TotalHours:  WorkedHours(pending.ClockIn, pending.ClockOut, pending.Breaks),
			Notes:       note,
			ApproverID:  actor.EmployeeID,
			ApprovedAt:  &approvedAt,
		}
		completed.UpdatedAt = now
		if res, err = s.complete(ctx, st, completed, pol); err != nil {
			return err
		}
		return st.SaveEntry(ctx, completed)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.InfoContext(ctx, "time entry approved",
		slog.String("entry_id", entryID),
		slog.String("approver_id", string(actor.EmployeeID)))
	s.notifyOvertime(ctx, res, pol)
	return res.Entry, nil
}

// RejectTimeEntry deletes a rejected manual entry and returns nil; a rejected
// correction restores the original entry, annotated with the reason.
func (s *Service) RejectTimeEntry(ctx context.Context, actor authz.Actor, entryID, reason string) (*CompletedEntry, error) {
	if reason == "" {
		return nil, fieldError("reason", "is required")
	}
	current, err := s.deps.Store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	employeeID := current.Header().EmployeeID
	if err := s.deps.Authorizer.Authorize(ctx, actor, authz.CapApproveTime, employeeID); err != nil {
		return nil, err
	}

	now := s.deps.Clock()
	var restored *CompletedEntry
	err = s.deps.Store.WithEmployeeTx(ctx, employeeID, func(st Store) error {
		e, err := st.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		pending, ok := e.(*PendingApprovalEntry)
		if !ok {
			return conflict(entryID, CodeNotPending, string(e.Status()), "reject")
		}
		if pending.Kind != PendingCorrection || pending.Original == nil {
			return st.DeleteEntry(ctx, entryID)
		}
		original := *pending.Original
		original.Version = pending.Version
		original.RejectionNote = reason
		original.UpdatedAt = now
		restored = &original
		return st.SaveEntry(ctx, restored)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.InfoContext(ctx, "time entry rejected",
		slog.String("entry_id", entryID),
		slog.Bool("restored", restored != nil))
	return restored, nil
}

// =============================================================================
// STALE ENTRY SWEEP
// =============================================================================

type SweepFailure struct {
	EntryID string
	Err     error
}

type SweepResult struct {
	Scanned  int
	Closed   []string
	Failures []SweepFailure
}

// AutoClockOutStaleEntries closes ACTIVE entries older than MaxShiftDuration
// at exactly clockIn + MaxShiftDuration, closing open breaks at the same
// boundary. Entries are processed independently; a second run finds nothing.
func (s *Service) AutoClockOutStaleEntries(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	actives, err := s.deps.Store.ListEntries(ctx, EntryFilter{Statuses: []EntryStatus{StatusActive}})
	if err != nil {
		return result, fmt.Errorf("list active entries: %w", err)
	}

	for _, e := range actives {
		h := e.Header()
		boundary := h.ClockIn.Add(s.config.MaxShiftDuration)
		if boundary.After(now) {
			continue
		}
		result.Scanned++
		closed, err := s.autoClose(ctx, h.EmployeeID, h.ID, now)
		if err != nil {
			s.deps.Logger.ErrorContext(ctx, "auto clock-out failed",
				slog.String("entry_id", h.ID),
				slog.Any("error", err))
			result.Failures = append(result.Failures, SweepFailure{EntryID: h.ID, Err: err})
			continue
		}
		if closed != nil {
			result.Closed = append(result.Closed, closed.ID)
			notify.Send(ctx, s.deps.Notifier, s.deps.Logger, notify.IncompleteTimeEntry{
				EntryID:     closed.ID,
				EmployeeID:  closed.EmployeeID,
				ClockIn:     closed.ClockIn,
				ClosedAt:    closed.ClockOut,
				HoursWorked: closed.TotalHours,
			})
		}
	}

	s.deps.Logger.InfoContext(ctx, "stale entry sweep finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("closed", len(result.Closed)),
		slog.Int("failed", len(result.Failures)))
	return result, nil
}

func (s *Service) autoClose(ctx context.Context, employeeID generic.EmployeeID, entryID string, now time.Time) (*CompletedEntry, error) {
	pol, err := s.overtimePolicy(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	var closed *CompletedEntry
	err = s.deps.Store.WithEmployeeTx(ctx, employeeID, func(st Store) error {
		e, err := st.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		active, ok := e.(*ActiveEntry)
		if !ok {
			return nil
		}
		boundary := active.ClockIn.Add(s.config.MaxShiftDuration)
		if boundary.After(now) {
			return nil
		}
		for i := range active.Breaks {
			if active.Breaks[i].Open() {
				end := boundary
				if end.Before(active.Breaks[i].Start) {
					end = active.Breaks[i].Start
				}
				active.Breaks[i].close(end)
			}
		}
		completed := &CompletedEntry{
			EntryHeader: active.EntryHeader,
			ClockOut:    boundary,
			TotalHours:  WorkedHours(active.ClockIn, boundary, active.Breaks),
			AutoClosed:  true,
			Notes:       "closed automatically after the maximum shift duration",
		}
		completed.UpdatedAt = now
		if _, err := s.complete(ctx, st, completed, pol); err != nil {
			return err
		}
		closed = completed
		return st.SaveEntry(ctx, completed)
	})
	return closed, err
}

// =============================================================================
// QUERIES
// =============================================================================

// Status derives the employee's current presence.
func (s *Service) Status(ctx context.Context, employeeID generic.EmployeeID) (EmployeeTimeStatus, error) {
	entries, err := s.deps.Store.ListEntries(ctx, EntryFilter{EmployeeID: employeeID, Statuses: []EntryStatus{StatusActive}})
	if err != nil {
		return EmployeeTimeStatus{}, err
	}
	return DeriveStatus(employeeID, entries), nil
}

func (s *Service) GetEntry(ctx context.Context, id string) (TimeEntry, error) {
	return s.deps.Store.GetEntry(ctx, id)
}

func (s *Service) ListEntries(ctx context.Context, f EntryFilter) ([]TimeEntry, error) {
	return s.deps.Store.ListEntries(ctx, f)
}

// OvertimePolicyFor returns the overtime policy whose group matches the
// employee, or the configured default.
func (s *Service) OvertimePolicyFor(ctx context.Context, employeeID generic.EmployeeID) (overtime.Policy, error) {
	return s.overtimePolicy(ctx, employeeID)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Service) at(requested *time.Time, now time.Time) time.Time {
	if requested == nil || requested.IsZero() {
		return now
	}
	return *requested
}

func (s *Service) checkNotFuture(field string, at, now time.Time) error {
	if s.config.AllowFutureClockIn || !at.After(now.Add(s.config.FutureSkew)) {
		return nil
	}
	return fieldError(field, "cannot be in the future")
}

func (s *Service) validateSpan(clockIn, clockOut, now time.Time) error {
	var errs generic.ValidationErrors
	if clockIn.IsZero() {
		errs.Add("clock_in", "is required")
	}
	if clockOut.IsZero() {
		errs.Add("clock_out", "is required")
	}
	if len(errs) > 0 {
		return errs.Err()
	}
	if !clockOut.After(clockIn) {
		errs.Add("clock_out", "must be after clock_in")
	}
	if clockIn.Before(now.Add(-s.config.ManualEntryMaxAge)) {
		errs.Add("clock_in", fmt.Sprintf("is older than the %s manual entry window", s.config.ManualEntryMaxAge))
	}
	if clockOut.After(now.Add(s.config.FutureSkew)) {
		errs.Add("clock_out", "cannot be in the future")
	}
	return errs.Err()
}

// normalizeBreaks checks submitted breaks lie inside the shift, do not
// overlap, and fills in IDs, durations and paid defaults.
func (s *Service) normalizeBreaks(clockIn, clockOut time.Time, in []BreakEntry) ([]BreakEntry, error) {
	var errs generic.ValidationErrors
	out := make([]BreakEntry, 0, len(in))
	var lastEnd time.Time
	for i, b := range in {
		field := fmt.Sprintf("breaks[%d]", i)
		switch {
		case !b.Type.Valid():
			errs.Add(field, fmt.Sprintf("unknown break type %q", b.Type))
			continue
		case b.End == nil:
			errs.Add(field, "end is required")
			continue
		case !b.End.After(b.Start):
			errs.Add(field, "end must be after start")
			continue
		case b.Start.Before(clockIn) || b.End.After(clockOut):
			errs.Add(field, "must lie within the shift")
			continue
		case b.Start.Before(lastEnd):
			errs.Add(field, "overlaps the previous break")
			continue
		}
		if b.ID == "" {
			b.ID = s.deps.NewID()
		}
		if b.DurationMinutes == 0 {
			b.close(*b.End)
		}
		lastEnd = *b.End
		out = append(out, b)
	}
	return out, errs.Err()
}

// breaksWithin keeps the breaks that still fit a corrected shift.
func breaksWithin(breaks []BreakEntry, clockIn, clockOut time.Time) []BreakEntry {
	var out []BreakEntry
	for _, b := range breaks {
		if b.End != nil && !b.Start.Before(clockIn) && !b.End.After(clockOut) {
			out = append(out, b)
		}
	}
	return out
}

func (s *Service) overtimePolicy(ctx context.Context, employeeID generic.EmployeeID) (overtime.Policy, error) {
	if s.deps.Policies == nil || s.deps.Directory == nil {
		return s.config.DefaultOvertime, nil
	}
	group, err := s.deps.Directory.GetEmployeeGroupData(ctx, employeeID)
	if err != nil {
		return overtime.Policy{}, fmt.Errorf("load employee %s: %w", employeeID, err)
	}
	policies, err := s.deps.Policies.FindActiveOvertimePolicies(ctx)
	if err != nil {
		return overtime.Policy{}, fmt.Errorf("load overtime policies: %w", err)
	}
	return overtime.Select(policies, group, s.config.DefaultOvertime), nil
}

// complete fills the entry's overtime split from the day's earlier completed
// entries and computes the week's cumulative split.
func (s *Service) complete(ctx context.Context, st Store, e *CompletedEntry, pol overtime.Policy) (ClockOutResult, error) {
	dayStart := generic.StartOfDay(e.ClockIn)
	weekStart := generic.StartOfWeek(e.ClockIn)
	weekEnd := weekStart.AddDate(0, 0, 7)
	earlier, err := st.ListEntries(ctx, EntryFilter{
		EmployeeID: e.EmployeeID,
		From:       &weekStart,
		To:         &weekEnd,
		Statuses:   []EntryStatus{StatusCompleted},
	})
	if err != nil {
		return ClockOutResult{}, err
	}

	dayBefore, weekBefore := decimal.Zero, decimal.Zero
	for _, other := range earlier {
		c := other.(*CompletedEntry)
		if c.ID == e.ID || !c.ClockIn.Before(e.ClockIn) {
			continue
		}
		weekBefore = weekBefore.Add(c.TotalHours)
		if !c.ClockIn.Before(dayStart) {
			dayBefore = dayBefore.Add(c.TotalHours)
		}
	}

	day := dayBefore.Add(e.TotalHours)
	week := weekBefore.Add(e.TotalHours)
	e.Hours = overtime.Incremental(dayBefore, day, func(h decimal.Decimal) overtime.Breakdown {
		return overtime.SplitDaily(h, pol)
	})
	e.OvertimePolicyID = pol.ID
	e.OvertimePolicyVersion = pol.Version
	return ClockOutResult{
		Entry:     e,
		DayHours:  day,
		WeekHours: week,
		Weekly:    overtime.SplitWeekly(week, pol),
	}, nil
}

func (s *Service) notifyOvertime(ctx context.Context, res ClockOutResult, pol overtime.Policy) {
	if !res.Entry.Hours.HasOvertime() && !res.Weekly.HasOvertime() {
		return
	}
	notify.Send(ctx, s.deps.Notifier, s.deps.Logger, notify.OvertimeThresholdReached{
		EntryID:         res.Entry.ID,
		EmployeeID:      res.Entry.EmployeeID,
		Date:            generic.DateOf(res.Entry.ClockIn),
		DayHours:        res.DayHours,
		RegularHours:    res.Entry.Hours.Regular,
		OvertimeHours:   res.Entry.Hours.Overtime,
		DoubleTimeHours: res.Entry.Hours.DoubleTime,
		WeekHours:       res.WeekHours,
		WeeklyOvertime:  res.Weekly.Overtime,
		PolicyID:        pol.ID,
		PolicyVersion:   pol.Version,
	})
}

func activeEntry(ctx context.Context, st Store, employeeID generic.EmployeeID) (*ActiveEntry, error) {
	entries, err := st.ListEntries(ctx, EntryFilter{EmployeeID: employeeID, Statuses: []EntryStatus{StatusActive}})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0].(*ActiveEntry), nil
}

func checkOverlap(ctx context.Context, st Store, employeeID generic.EmployeeID, start, end time.Time, exclude string) error {
	entries, err := st.ListEntries(ctx, EntryFilter{EmployeeID: employeeID})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Header().ID == exclude {
			continue
		}
		if Overlaps(e, start, end) {
			return conflict(e.Header().ID, CodeOverlappingEntry, string(e.Status()), "record overlapping time")
		}
	}
	return nil
}

func conflict[S ~string](id, code string, current S, attempted string) error {
	return &generic.StateConflictError{
		Entity:    "time_entry",
		ID:        id,
		Code:      code,
		Current:   string(current),
		Attempted: attempted,
	}
}

func fieldError(field, message string) error {
	var errs generic.ValidationErrors
	errs.Add(field, message)
	return errs
}
