package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (c conn) SaveEntry(ctx context.Context, e timetracking.TimeEntry) error {
	rec := timetracking.ToRecord(e)
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode time entry: %w", err)
	}
	args := []any{rec.ID, string(rec.EmployeeID), string(rec.Status), rec.ClockIn, rec.ClockOut, rec.Manual, raw}

	h := e.Header()
	if rec.Version == 0 {
		const insert = `
			INSERT INTO time_entries (id, employee_id, status, clock_in, clock_out, manual, record, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		`
		if _, err := c.q.Exec(ctx, insert, args...); err != nil {
			if isUniqueViolation(err) {
				return generic.ErrConcurrentModification
			}
			return fmt.Errorf("insert time entry: %w", err)
		}
		h.Version = 1
		return nil
	}

	const update = `
		UPDATE time_entries SET
			employee_id = $2, status = $3, clock_in = $4, clock_out = $5, manual = $6, record = $7,
			version = version + 1
		WHERE id = $1 AND version = $8
	`
	tag, err := c.q.Exec(ctx, update, append(args, rec.Version)...)
	if err != nil {
		return fmt.Errorf("update time entry: %w", err)
	}
	if err := checkAffected(tag); err != nil {
		return err
	}
	h.Version++
	return nil
}

func (c conn) DeleteEntry(ctx context.Context, id string) error {
	tag, err := c.q.Exec(ctx, "DELETE FROM time_entries WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete time entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return generic.NotFound("time_entry", id)
	}
	return nil
}

func (c conn) GetEntry(ctx context.Context, id string) (timetracking.TimeEntry, error) {
	list, err := c.queryEntries(ctx, "SELECT record, version FROM time_entries WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, generic.NotFound("time_entry", id)
	}
	return list[0], nil
}

func (c conn) ListEntries(ctx context.Context, f timetracking.EntryFilter) ([]timetracking.TimeEntry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = "+arg(string(f.EmployeeID)))
	}
	if f.From != nil {
		where = append(where, "clock_in >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "clock_in < "+arg(*f.To))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	query := "SELECT record, version FROM time_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY clock_in ASC, id ASC"
	return c.queryEntries(ctx, query, args...)
}

func (c conn) queryEntries(ctx context.Context, query string, args ...any) ([]timetracking.TimeEntry, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query time entries: %w", err)
	}
	defer rows.Close()

	var out []timetracking.TimeEntry
	for rows.Next() {
		var (
			raw     []byte
			version int
		)
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, fmt.Errorf("scan time entry: %w", err)
		}
		var rec timetracking.EntryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
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
