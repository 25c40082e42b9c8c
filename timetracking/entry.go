/*
Package timetracking records when employees work and take breaks.

PURPOSE:
  The Service turns clock events into time entries and keeps, per employee,
  at most one ACTIVE entry with at most one open break. Completed entries
  carry their worked hours split into regular, overtime and double time.

STATES:
  ACTIVE ──clock out──▶ COMPLETED ──correction──▶ PENDING_APPROVAL
                                                    │
  manual entry ──────────────────────────────────▶ PENDING_APPROVAL
                                                    │
                    approve: COMPLETED  ◀───────────┤
                    reject:  deleted (manual) or original restored (correction)

  An employee's status (CLOCKED_OUT, CLOCKED_IN, ON_BREAK) is derived from
  the entries and never stored.

SEE ALSO:
  - service.go: Operations
  - store.go: Persistence contract
  - overtime/: Hour categories
*/
package timetracking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
)

type EntryStatus string

const (
	StatusActive          EntryStatus = "ACTIVE"
	StatusCompleted       EntryStatus = "COMPLETED"
	StatusPendingApproval EntryStatus = "PENDING_APPROVAL"
)

// PendingKind tells apart a new manual entry from a correction of a
// completed one. Rejection handles them differently.
type PendingKind string

const (
	PendingManual     PendingKind = "manual"
	PendingCorrection PendingKind = "correction"
)

type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// =============================================================================
// BREAKS
// =============================================================================

type BreakType string

const (
	BreakLunch    BreakType = "LUNCH"
	BreakShort    BreakType = "SHORT_BREAK"
	BreakPersonal BreakType = "PERSONAL"
)

func (t BreakType) Valid() bool {
	return t == BreakLunch || t == BreakShort || t == BreakPersonal
}

// PaidByDefault: short breaks are paid, lunch and personal breaks are not.
func (t BreakType) PaidByDefault() bool { return t == BreakShort }

type BreakEntry struct {
	ID              string     `json:"id"`
	Type            BreakType  `json:"type"`
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Paid            bool       `json:"paid"`
}

func (b BreakEntry) Open() bool { return b.End == nil }

// close ends the break and records its length in whole minutes.
func (b *BreakEntry) close(at time.Time) {
	end := at
	b.End = &end
	b.DurationMinutes = int(end.Sub(b.Start).Minutes())
}

// =============================================================================
// ENTRIES
// =============================================================================

// EntryHeader is shared by every entry state.
type EntryHeader struct {
	ID         string
	EmployeeID generic.EmployeeID
	ClockIn    time.Time
	Location   *GeoLocation
	Manual     bool
	Breaks     []BreakEntry
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Version increments on every save; zero means not yet stored.
	Version int
}

// OpenBreak returns the break still running, if any.
func (h *EntryHeader) OpenBreak() *BreakEntry {
	for i := range h.Breaks {
		if h.Breaks[i].Open() {
			return &h.Breaks[i]
		}
	}
	return nil
}

// TimeEntry is one of *ActiveEntry, *CompletedEntry or *PendingApprovalEntry.
type TimeEntry interface {
	Header() *EntryHeader
	Status() EntryStatus
	isTimeEntry()
}

type ActiveEntry struct {
	EntryHeader
}

func (e *ActiveEntry) Header() *EntryHeader { return &e.EntryHeader }
func (e *ActiveEntry) Status() EntryStatus  { return StatusActive }
func (*ActiveEntry) isTimeEntry()           {}

// CompletedEntry has a clock-out and computed hours. Hours is the share of
// the day's regular, overtime and double time attributable to this entry.
type CompletedEntry struct {
	EntryHeader
	ClockOut   time.Time
	TotalHours decimal.Decimal
	Hours      overtime.Breakdown
	Notes      string

	ApproverID    generic.EmployeeID
	ApprovedAt    *time.Time
	AutoClosed    bool
	RejectionNote string

	OvertimePolicyID      generic.PolicyID
	OvertimePolicyVersion int
}

func (e *CompletedEntry) Header() *EntryHeader { return &e.EntryHeader }
func (e *CompletedEntry) Status() EntryStatus  { return StatusCompleted }
func (*CompletedEntry) isTimeEntry()           {}

// PendingApprovalEntry waits for a manager. For corrections Original holds
// the committed values that a rejection restores.
type PendingApprovalEntry struct {
	EntryHeader
	ClockOut   time.Time
	TotalHours decimal.Decimal
	Kind       PendingKind
	Reason     string
	Original   *CompletedEntry
}

func (e *PendingApprovalEntry) Header() *EntryHeader { return &e.EntryHeader }
func (e *PendingApprovalEntry) Status() EntryStatus  { return StatusPendingApproval }
func (*PendingApprovalEntry) isTimeEntry()           {}

// Span returns the entry's clock-in and clock-out. Active entries are open
// ended and report ok=false for the end.
func Span(e TimeEntry) (start, end time.Time, ok bool) {
	switch v := e.(type) {
	case *CompletedEntry:
		return v.ClockIn, v.ClockOut, true
	case *PendingApprovalEntry:
		return v.ClockIn, v.ClockOut, true
	default:
		return e.Header().ClockIn, time.Time{}, false
	}
}

// Overlaps uses newStart < existingEnd && newEnd > existingStart; an active
// entry extends indefinitely.
func Overlaps(e TimeEntry, start, end time.Time) bool {
	s, en, closed := Span(e)
	if !closed {
		return end.After(s)
	}
	return start.Before(en) && end.After(s)
}

// WorkedHours is the elapsed time minus unpaid breaks, in hours rounded to
// two decimals. Open breaks count up to clockOut.
func WorkedHours(clockIn, clockOut time.Time, breaks []BreakEntry) decimal.Decimal {
	elapsed := clockOut.Sub(clockIn)
	for _, b := range breaks {
		if b.Paid {
			continue
		}
		end := clockOut
		if b.End != nil && b.End.Before(clockOut) {
			end = *b.End
		}
		if end.After(b.Start) {
			elapsed -= end.Sub(b.Start)
		}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return decimal.NewFromInt(int64(elapsed / time.Second)).Div(decimal.NewFromInt(3600)).Round(2)
}

// =============================================================================
// DERIVED STATUS
// =============================================================================

type Presence string

const (
	ClockedOut Presence = "CLOCKED_OUT"
	ClockedIn  Presence = "CLOCKED_IN"
	OnBreak    Presence = "ON_BREAK"
)

type EmployeeTimeStatus struct {
	EmployeeID    generic.EmployeeID `json:"employee_id"`
	Status        Presence           `json:"status"`
	ActiveEntryID string             `json:"active_entry_id,omitempty"`
	ActiveBreakID string             `json:"active_break_id,omitempty"`
	Since         *time.Time         `json:"since,omitempty"`
}

// DeriveStatus computes presence from the employee's entries.
func DeriveStatus(employeeID generic.EmployeeID, entries []TimeEntry) EmployeeTimeStatus {
	st := EmployeeTimeStatus{EmployeeID: employeeID, Status: ClockedOut}
	for _, e := range entries {
		active, ok := e.(*ActiveEntry)
		if !ok {
			continue
		}
		st.Status = ClockedIn
		st.ActiveEntryID = active.ID
		since := active.ClockIn
		if b := active.OpenBreak(); b != nil {
			st.Status = OnBreak
			st.ActiveBreakID = b.ID
			since = b.Start
		}
		st.Since = &since
		break
	}
	return st
}

// =============================================================================
// RECORD FORM
// =============================================================================

// EntryRecord is the flat form stores persist. Original is set on
// correction entries only.
type EntryRecord struct {
	ID              string
	EmployeeID      generic.EmployeeID
	Status          EntryStatus
	ClockIn         time.Time
	ClockOut        *time.Time
	Location        *GeoLocation
	Manual          bool
	Breaks          []BreakEntry
	TotalHours      decimal.Decimal
	RegularHours    decimal.Decimal
	OvertimeHours   decimal.Decimal
	DoubleTimeHours decimal.Decimal
	Notes           string

	PendingKind PendingKind
	Reason      string
	Original    *EntryRecord

	ApproverID            generic.EmployeeID
	ApprovedAt            *time.Time
	AutoClosed            bool
	RejectionNote         string
	OvertimePolicyID      generic.PolicyID
	OvertimePolicyVersion int

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

func ToRecord(e TimeEntry) EntryRecord {
	h := e.Header()
	r := EntryRecord{
		ID:              h.ID,
		EmployeeID:      h.EmployeeID,
		Status:          e.Status(),
		ClockIn:         h.ClockIn,
		Location:        h.Location,
		Manual:          h.Manual,
		Breaks:          append([]BreakEntry(nil), h.Breaks...),
		TotalHours:      decimal.Zero,
		RegularHours:    decimal.Zero,
		OvertimeHours:   decimal.Zero,
		DoubleTimeHours: decimal.Zero,
		CreatedAt:       h.CreatedAt,
		UpdatedAt:       h.UpdatedAt,
		Version:         h.Version,
	}
	switch v := e.(type) {
	case *CompletedEntry:
		out := v.ClockOut
		r.ClockOut = &out
		r.TotalHours = v.TotalHours
		r.RegularHours = v.Hours.Regular
		r.OvertimeHours = v.Hours.Overtime
		r.DoubleTimeHours = v.Hours.DoubleTime
		r.Notes = v.Notes
		r.ApproverID = v.ApproverID
		r.ApprovedAt = v.ApprovedAt
		r.AutoClosed = v.AutoClosed
		r.RejectionNote = v.RejectionNote
		r.OvertimePolicyID = v.OvertimePolicyID
		r.OvertimePolicyVersion = v.OvertimePolicyVersion
	case *PendingApprovalEntry:
		out := v.ClockOut
		r.ClockOut = &out
		r.TotalHours = v.TotalHours
		r.PendingKind = v.Kind
		r.Reason = v.Reason
		if v.Original != nil {
			orig := ToRecord(v.Original)
			r.Original = &orig
		}
	}
	return r
}

func FromRecord(r EntryRecord) (TimeEntry, error) {
	h := EntryHeader{
		ID:         r.ID,
		EmployeeID: r.EmployeeID,
		ClockIn:    r.ClockIn,
		Location:   r.Location,
		Manual:     r.Manual,
		Breaks:     append([]BreakEntry(nil), r.Breaks...),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Version:    r.Version,
	}
	switch r.Status {
	case StatusActive:
		return &ActiveEntry{EntryHeader: h}, nil
	case StatusCompleted:
		if r.ClockOut == nil {
			return nil, fmt.Errorf("time entry %s: completed without clock-out", r.ID)
		}
		return &CompletedEntry{
			EntryHeader: h,
			ClockOut:    *r.ClockOut,
			TotalHours:  r.TotalHours,
			Hours: overtime.Breakdown{
				Regular:    r.RegularHours,
				Overtime:   r.OvertimeHours,
				DoubleTime: r.DoubleTimeHours,
			},
			Notes:                 r.Notes,
			ApproverID:            r.ApproverID,
			ApprovedAt:            r.ApprovedAt,
			AutoClosed:            r.AutoClosed,
			RejectionNote:         r.RejectionNote,
			OvertimePolicyID:      r.OvertimePolicyID,
			OvertimePolicyVersion: r.OvertimePolicyVersion,
		}, nil
	case StatusPendingApproval:
		if r.ClockOut == nil {
			return nil, fmt.Errorf("time entry %s: pending without clock-out", r.ID)
		}
		p := &PendingApprovalEntry{
			EntryHeader: h,
			ClockOut:    *r.ClockOut,
			TotalHours:  r.TotalHours,
			Kind:        r.PendingKind,
			Reason:      r.Reason,
		}
		if r.Original != nil {
			orig, err := FromRecord(*r.Original)
			if err != nil {
				return nil, err
			}
			completed, ok := orig.(*CompletedEntry)
			if !ok {
				return nil, fmt.Errorf("time entry %s: original is %s", r.ID, orig.Status())
			}
			p.Original = completed
		}
		return p, nil
	default:
		return nil, fmt.Errorf("time entry %s: unknown status %q", r.ID, r.Status)
	}
}
