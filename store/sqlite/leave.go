package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
)

// =============================================================================
// LEDGER (generic.Store)
// =============================================================================

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return s.AppendBatch(ctx, []generic.Transaction{tx})
}

// AppendBatch writes all rows in one transaction.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return s.inTx(ctx, func(t *txStore) error { return t.appendBatch(ctx, txs) })
}

func (s *Store) LoadLedger(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLedger(ctx, key)
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(ctx, idempotencyKey)
}

func (c conn) appendBatch(ctx context.Context, txs []generic.Transaction) error {
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	const query = `
		INSERT INTO ledger_transactions
		(id, employee_id, leave_type_id, year, component, tx_type, delta_value, delta_unit,
		 effective_at, reference_id, reason, idempotency_key, policy_id, policy_version,
		 metadata_json, created_by, created_by_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, tx := range txs {
		var metadata sql.NullString
		if len(tx.Metadata) > 0 {
			raw, err := json.Marshal(tx.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			metadata = sql.NullString{String: string(raw), Valid: true}
		}
		_, err := c.q.ExecContext(ctx, query,
			string(tx.ID),
			string(tx.Key.EmployeeID),
			string(tx.Key.LeaveTypeID),
			tx.Key.Year,
			string(tx.Component),
			string(tx.Type),
			tx.Delta.Value.String(),
			string(tx.Delta.Unit),
			formatDate(tx.EffectiveAt),
			nullString(tx.ReferenceID),
			nullString(tx.Reason),
			nullString(tx.IdempotencyKey),
			nullString(string(tx.PolicyID)),
			tx.PolicyVersion,
			metadata,
			nullString(tx.CreatedBy),
			nullString(tx.CreatedByType),
			formatTime(tx.CreatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return generic.ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("append transaction: %w", err)
		}
	}
	return nil
}

func (c conn) loadLedger(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	const query = `
		SELECT id, employee_id, leave_type_id, year, component, tx_type, delta_value, delta_unit,
		       effective_at, reference_id, reason, idempotency_key, policy_id, policy_version,
		       metadata_json, created_by, created_by_type, created_at
		FROM ledger_transactions
		WHERE employee_id = ? AND leave_type_id = ? AND year = ?
		ORDER BY seq ASC
	`
	rows, err := c.q.QueryContext(ctx, query, string(key.EmployeeID), string(key.LeaveTypeID), key.Year)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx                                    generic.Transaction
		id, employeeID, leaveTypeID           string
		component, txType, value, unit        string
		effectiveAt, createdAt                string
		referenceID, reason, idempotencyKey   sql.NullString
		policyID, metadata, createdBy, byType sql.NullString
	)
	err := rows.Scan(
		&id, &employeeID, &leaveTypeID, &tx.Key.Year, &component, &txType, &value, &unit,
		&effectiveAt, &referenceID, &reason, &idempotencyKey, &policyID, &tx.PolicyVersion,
		&metadata, &createdBy, &byType, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("scan transaction: %w", err)
	}

	tx.ID = generic.TransactionID(id)
	tx.Key.EmployeeID = generic.EmployeeID(employeeID)
	tx.Key.LeaveTypeID = generic.LeaveTypeID(leaveTypeID)
	tx.Component = generic.Component(component)
	tx.Type = generic.TransactionType(txType)
	delta, err := decimal.NewFromString(value)
	if err != nil {
		return tx, fmt.Errorf("transaction %s: %w", id, err)
	}
	tx.Delta = generic.NewAmountFromDecimal(delta, generic.Unit(unit))
	if tx.EffectiveAt, err = parseDate(effectiveAt); err != nil {
		return tx, err
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return tx, err
	}
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.PolicyID = generic.PolicyID(policyID.String)
	tx.CreatedBy = createdBy.String
	tx.CreatedByType = byType.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("transaction %s metadata: %w", id, err)
		}
	}
	return tx, nil
}

func (c conn) exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, r *leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRequests(ctx, f)
}

func (c conn) saveRequest(ctx context.Context, r *leave.Request) error {
	route, err := json.Marshal(r.Route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	args := []any{
		string(r.EmployeeID),
		string(r.LeaveTypeID),
		formatDate(r.StartDate),
		formatDate(r.EndDate),
		r.TotalDays.String(),
		r.RequestedDays.String(),
		string(r.Status),
		nullString(r.Reason),
		nullString(r.EmployeeNotes),
		nullString(r.ManagerNotes),
		nullString(r.RejectionReason),
		nullString(string(r.ApproverID)),
		nullString(string(r.PolicyID)),
		r.PolicyVersion,
		string(route),
		formatTime(r.SubmittedAt),
		formatNullTime(r.DecidedAt),
		formatNullTime(r.CancelledAt),
		formatTime(r.UpdatedAt),
	}

	if r.Version == 0 {
		const insert = `
			INSERT INTO leave_requests
			(employee_id, leave_type_id, start_date, end_date, total_days, requested_days, status,
			 reason, employee_notes, manager_notes, rejection_reason, approver_id, policy_id,
			 policy_version, route_json, submitted_at, decided_at, cancelled_at, updated_at,
			 id, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := c.q.ExecContext(ctx, insert, append(args, r.ID)...); err != nil {
			if isUniqueConstraintError(err) {
				return generic.ErrConcurrentModification
			}
			return fmt.Errorf("insert request: %w", err)
		}
		r.Version = 1
		return nil
	}

	const update = `
		UPDATE leave_requests SET
			employee_id = ?, leave_type_id = ?, start_date = ?, end_date = ?, total_days = ?,
			requested_days = ?, status = ?, reason = ?, employee_notes = ?, manager_notes = ?,
			rejection_reason = ?, approver_id = ?, policy_id = ?, policy_version = ?, route_json = ?,
			submitted_at = ?, decided_at = ?, cancelled_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := c.q.ExecContext(ctx, update, append(args, r.ID, r.Version)...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	r.Version++
	return nil
}

const requestColumns = `
	id, employee_id, leave_type_id, start_date, end_date, total_days, requested_days, status,
	reason, employee_notes, manager_notes, rejection_reason, approver_id, policy_id,
	policy_version, route_json, submitted_at, decided_at, cancelled_at, updated_at, version
`

func (c conn) getRequest(ctx context.Context, id string) (*leave.Request, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, generic.NotFound("leave_request", id)
	}
	r, err := scanRequest(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c conn) listRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	var (
		where []string
		args  []any
	)
	if len(f.EmployeeIDs) > 0 {
		where = append(where, "employee_id IN ("+placeholders(len(f.EmployeeIDs))+")")
		for _, id := range f.EmployeeIDs {
			args = append(args, string(id))
		}
	}
	if f.LeaveTypeID != "" {
		where = append(where, "leave_type_id = ?")
		args = append(args, string(f.LeaveTypeID))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if f.Overlapping != nil {
		// end_date is exclusive, the period is inclusive.
		where = append(where, "start_date <= ? AND end_date > ?")
		args = append(args, formatDate(f.Overlapping.End), formatDate(f.Overlapping.Start))
	}

	query := "SELECT " + requestColumns + " FROM leave_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(rows *sql.Rows) (leave.Request, error) {
	var (
		r                                                 leave.Request
		employeeID, leaveTypeID, start, end, total, asked string
		status, route, submitted, updated                 string
		reason, empNotes, mgrNotes, rejection             sql.NullString
		approver, policyID, decided, cancelled            sql.NullString
	)
	err := rows.Scan(
		&r.ID, &employeeID, &leaveTypeID, &start, &end, &total, &asked, &status,
		&reason, &empNotes, &mgrNotes, &rejection, &approver, &policyID,
		&r.PolicyVersion, &route, &submitted, &decided, &cancelled, &updated, &r.Version,
	)
	if err != nil {
		return r, fmt.Errorf("scan request: %w", err)
	}

	r.EmployeeID = generic.EmployeeID(employeeID)
	r.LeaveTypeID = generic.LeaveTypeID(leaveTypeID)
	r.Status = leave.Status(status)
	r.Reason = reason.String
	r.EmployeeNotes = empNotes.String
	r.ManagerNotes = mgrNotes.String
	r.RejectionReason = rejection.String
	r.ApproverID = generic.EmployeeID(approver.String)
	r.PolicyID = generic.PolicyID(policyID.String)

	if r.StartDate, err = parseDate(start); err != nil {
		return r, err
	}
	if r.EndDate, err = parseDate(end); err != nil {
		return r, err
	}
	if r.TotalDays, err = decimal.NewFromString(total); err != nil {
		return r, fmt.Errorf("request %s total_days: %w", r.ID, err)
	}
	if r.RequestedDays, err = decimal.NewFromString(asked); err != nil {
		return r, fmt.Errorf("request %s requested_days: %w", r.ID, err)
	}
	if route != "" {
		if err := json.Unmarshal([]byte(route), &r.Route); err != nil {
			return r, fmt.Errorf("request %s route: %w", r.ID, err)
		}
	}
	if r.SubmittedAt, err = parseTime(submitted); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return r, err
	}
	if r.DecidedAt, err = parseNullTime(decided); err != nil {
		return r, err
	}
	if r.CancelledAt, err = parseNullTime(cancelled); err != nil {
		return r, err
	}
	return r, nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) SaveBalance(ctx context.Context, b *leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveBalance(ctx, b)
}

func (s *Store) GetBalance(ctx context.Context, key generic.BalanceKey) (*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBalance(ctx, key)
}

func (s *Store) ListBalances(ctx context.Context, f leave.BalanceFilter) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBalances(ctx, f)
}

// Outside a transaction every write is already serialized.
func (s *Store) LockEmployee(context.Context, generic.EmployeeID) error { return nil }
func (s *Store) LockBalance(context.Context, generic.BalanceKey) error  { return nil }

func (c conn) saveBalance(ctx context.Context, b *leave.Balance) error {
	var lastAccrual sql.NullString
	if b.LastAccrualDate != nil {
		lastAccrual = sql.NullString{String: formatDate(*b.LastAccrualDate), Valid: true}
	}
	args := []any{
		b.Entitlement.String(),
		b.Used.String(),
		b.Pending.String(),
		b.CarryOver.String(),
		b.ManualAdjustment.String(),
		b.AccrualRate.String(),
		string(b.AccrualPeriod),
		lastAccrual,
		nullString(string(b.PolicyID)),
		b.PolicyVersion,
		formatTime(b.UpdatedAt),
		string(b.Key.EmployeeID),
		string(b.Key.LeaveTypeID),
		b.Key.Year,
	}

	if b.Version == 0 {
		const insert = `
			INSERT INTO leave_balances
			(entitlement, used, pending, carry_over, manual_adjustment, accrual_rate, accrual_period,
			 last_accrual_date, policy_id, policy_version, updated_at,
			 employee_id, leave_type_id, year, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := c.q.ExecContext(ctx, insert, args...); err != nil {
			if isUniqueConstraintError(err) {
				return generic.ErrConcurrentModification
			}
			return fmt.Errorf("insert balance: %w", err)
		}
		b.Version = 1
		return nil
	}

	const update = `
		UPDATE leave_balances SET
			entitlement = ?, used = ?, pending = ?, carry_over = ?, manual_adjustment = ?,
			accrual_rate = ?, accrual_period = ?, last_accrual_date = ?, policy_id = ?,
			policy_version = ?, updated_at = ?, version = version + 1
		WHERE employee_id = ? AND leave_type_id = ? AND year = ? AND version = ?
	`
	res, err := c.q.ExecContext(ctx, update, append(args, b.Version)...)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	b.Version++
	return nil
}

const balanceColumns = `
	employee_id, leave_type_id, year, entitlement, used, pending, carry_over, manual_adjustment,
	accrual_rate, accrual_period, last_accrual_date, policy_id, policy_version, updated_at, version
`

func (c conn) getBalance(ctx context.Context, key generic.BalanceKey) (*leave.Balance, error) {
	list, err := c.queryBalances(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances WHERE employee_id = ? AND leave_type_id = ? AND year = ?",
		string(key.EmployeeID), string(key.LeaveTypeID), key.Year)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, generic.NotFound("balance", key.String())
	}
	return &list[0], nil
}

func (c conn) listBalances(ctx context.Context, f leave.BalanceFilter) ([]leave.Balance, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, string(f.EmployeeID))
	}
	if f.LeaveTypeID != "" {
		where = append(where, "leave_type_id = ?")
		args = append(args, string(f.LeaveTypeID))
	}
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	query := "SELECT " + balanceColumns + " FROM leave_balances"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY employee_id, leave_type_id, year"
	return c.queryBalances(ctx, query, args...)
}

func (c conn) queryBalances(ctx context.Context, query string, args ...any) ([]leave.Balance, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var out []leave.Balance
	for rows.Next() {
		var (
			b                                 leave.Balance
			employeeID, leaveTypeID, period   string
			entitlement, used, pending, carry string
			adjustment, rate, updated         string
			lastAccrual, policyID             sql.NullString
		)
		err := rows.Scan(
			&employeeID, &leaveTypeID, &b.Key.Year, &entitlement, &used, &pending, &carry, &adjustment,
			&rate, &period, &lastAccrual, &policyID, &b.PolicyVersion, &updated, &b.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		b.Key.EmployeeID = generic.EmployeeID(employeeID)
		b.Key.LeaveTypeID = generic.LeaveTypeID(leaveTypeID)
		b.AccrualPeriod = generic.AccrualPeriod(period)
		b.PolicyID = generic.PolicyID(policyID.String)

		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&b.Entitlement, entitlement},
			{&b.Used, used},
			{&b.Pending, pending},
			{&b.CarryOver, carry},
			{&b.ManualAdjustment, adjustment},
			{&b.AccrualRate, rate},
		} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("balance %s: %w", b.Key, err)
			}
		}
		if lastAccrual.Valid {
			d, err := parseDate(lastAccrual.String)
			if err != nil {
				return nil, err
			}
			b.LastAccrualDate = &d
		}
		if b.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
