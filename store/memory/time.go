package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// TimeStore keeps time entries in their record form so callers never share
// break slices with the store.
type TimeStore struct {
	mu      sync.RWMutex
	entries map[string]timetracking.EntryRecord
}

func NewTimeStore() *TimeStore {
	return &TimeStore{entries: make(map[string]timetracking.EntryRecord)}
}

func (s *TimeStore) SaveEntry(_ context.Context, e timetracking.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEntry(s.entries, e)
}

func (s *TimeStore) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEntry(s.entries, id)
}

func (s *TimeStore) GetEntry(_ context.Context, id string) (timetracking.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(s.entries, id)
}

func (s *TimeStore) ListEntries(_ context.Context, f timetracking.EntryFilter) ([]timetracking.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(s.entries, f)
}

// WithEmployeeTx serializes on the store mutex and rolls back on error.
func (s *TimeStore) WithEmployeeTx(_ context.Context, _ generic.EmployeeID, fn func(timetracking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]timetracking.EntryRecord, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	if err := fn(&timeView{entries: s.entries}); err != nil {
		s.entries = snapshot
		return err
	}
	return nil
}

type timeView struct {
	entries map[string]timetracking.EntryRecord
}

func (v *timeView) SaveEntry(_ context.Context, e timetracking.TimeEntry) error {
	return saveEntry(v.entries, e)
}

func (v *timeView) DeleteEntry(_ context.Context, id string) error {
	return deleteEntry(v.entries, id)
}

func (v *timeView) GetEntry(_ context.Context, id string) (timetracking.TimeEntry, error) {
	return getEntry(v.entries, id)
}

func (v *timeView) ListEntries(_ context.Context, f timetracking.EntryFilter) ([]timetracking.TimeEntry, error) {
	return listEntries(v.entries, f)
}

func saveEntry(entries map[string]timetracking.EntryRecord, e timetracking.TimeEntry) error {
	h := e.Header()
	stored, exists := entries[h.ID]
	if err := checkVersion(exists, stored.Version, h.Version); err != nil {
		return err
	}
	h.Version++
	entries[h.ID] = timetracking.ToRecord(e)
	return nil
}

func deleteEntry(entries map[string]timetracking.EntryRecord, id string) error {
	if _, ok := entries[id]; !ok {
		return generic.NotFound("time_entry", id)
	}
	delete(entries, id)
	return nil
}

func getEntry(entries map[string]timetracking.EntryRecord, id string) (timetracking.TimeEntry, error) {
	r, ok := entries[id]
	if !ok {
		return nil, generic.NotFound("time_entry", id)
	}
	return timetracking.FromRecord(r)
}

func listEntries(entries map[string]timetracking.EntryRecord, f timetracking.EntryFilter) ([]timetracking.TimeEntry, error) {
	var records []timetracking.EntryRecord
	for _, r := range entries {
		if f.Matches(r) {
			records = append(records, r)
		}
	}
	slices.SortFunc(records, func(a, b timetracking.EntryRecord) int {
		if c := a.ClockIn.Compare(b.ClockIn); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	out := make([]timetracking.TimeEntry, 0, len(records))
	for _, r := range records {
		e, err := timetracking.FromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
