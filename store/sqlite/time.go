package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// =============================================================================
// TIME ENTRIES (timetracking.Store)
// =============================================================================

// Entries are stored as their EntryRecord in record_json; the indexed
// columns duplicate what ListEntries filters on.

func (s *Store) SaveEntry(ctx context.Context, e timetracking.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEntry(ctx, e)
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEntry(ctx, id)
}

func (s *Store) GetEntry(ctx context.Context, id string) (timetracking.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntry(ctx, id)
}

func (s *Store) ListEntries(ctx context.Context, f timetracking.EntryFilter) ([]timetracking.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEntries(ctx, f)
}

func (c conn) saveEntry(ctx context.Context, e timetracking.TimeEntry) error {
	rec := timetracking.ToRecord(e)
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode time entry: %w", err)
	}
	args := []any{
		string(rec.EmployeeID),
		string(rec.Status),
		formatTime(rec.ClockIn),
		formatNullTime(rec.ClockOut),
		rec.Manual,
		string(raw),
		rec.ID,
	}

	h := e.Header()
	if rec.Version == 0 {
		const insert = `
			INSERT INTO time_entries (employee_id, status, clock_in, clock_out, manual, record_json, id, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := c.q.ExecContext(ctx, insert, args...); err != nil {
			if isUniqueConstraintError(err) {
				return generic.ErrConcurrentModification
			}
			return fmt.Errorf("insert time entry: %w", err)
		}
		h.Version = 1
		return nil
	}

	const update = `
		UPDATE time_entries SET
			employee_id = ?, status = ?, clock_in = ?, clock_out = ?, manual = ?, record_json = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := c.q.ExecContext(ctx, update, append(args, rec.Version)...)
	if err != nil {
		return fmt.Errorf("update time entry: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	h.Version++
	return nil
}

func (c conn) deleteEntry(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM time_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete time entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.NotFound("time_entry", id)
	}
	return nil
}

func (c conn) getEntry(ctx context.Context, id string) (timetracking.TimeEntry, error) {
	list, err := c.queryEntries(ctx, "SELECT record_json, version FROM time_entries WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, generic.NotFound("time_entry", id)
	}
	return list[0], nil
}

func (c conn) listEntries(ctx context.Context, f timetracking.EntryFilter) ([]timetracking.TimeEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, string(f.EmployeeID))
	}
	if f.From != nil {
		where = append(where, "clock_in >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "clock_in < ?")
		args = append(args, formatTime(*f.To))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	query := "SELECT record_json, version FROM time_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY clock_in ASC, id ASC"
	return c.queryEntries(ctx, query, args...)
}

func (c conn) queryEntries(ctx context.Context, query string, args ...any) ([]timetracking.TimeEntry, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query time entries: %w", err)
	}
	defer rows.Close()

	var out []timetracking.TimeEntry
	for rows.Next() {
		var (
			raw     sql.NullString
			version int
		)
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, fmt.Errorf("scan time entry: %w", err)
		}
		var rec timetracking.EntryRecord
		if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
			return nil, fmt.Errorf("decode time entry: %w", err)
		}
		rec.Version = version
		e, err := timetracking.FromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
