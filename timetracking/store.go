package timetracking

import (
	"context"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// EntryFilter narrows ListEntries. From and To bound the clock-in time as
// [From, To). Zero fields match everything.
type EntryFilter struct {
	EmployeeID generic.EmployeeID
	From       *time.Time
	To         *time.Time
	Statuses   []EntryStatus
}

func (f EntryFilter) Matches(r EntryRecord) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.From != nil && r.ClockIn.Before(*f.From) {
		return false
	}
	if f.To != nil && !r.ClockIn.Before(*f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == r.Status {
			return true
		}
	}
	return false
}

// Store persists time entries.
//
// SaveEntry follows the versioning rule: Version 0 inserts and sets Version
// to 1; otherwise the row is replaced only if its stored version equals
// Version, which is then incremented. A state change (ACTIVE to COMPLETED,
// ...) is a save of a different TimeEntry type under the same ID.
type Store interface {
	SaveEntry(ctx context.Context, e TimeEntry) error
	DeleteEntry(ctx context.Context, id string) error
	// GetEntry returns a generic.NotFoundError for unknown IDs.
	GetEntry(ctx context.Context, id string) (TimeEntry, error)
	// ListEntries returns matches ordered by clock-in.
	ListEntries(ctx context.Context, f EntryFilter) ([]TimeEntry, error)
}

// TxStore serializes an employee's mutations: fn runs under a lock on the
// employee and its writes commit together.
type TxStore interface {
	Store
	WithEmployeeTx(ctx context.Context, employeeID generic.EmployeeID, fn func(Store) error) error
}
