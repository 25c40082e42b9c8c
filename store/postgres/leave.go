package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
)

// =============================================================================
// LEDGER
// =============================================================================

func (c conn) Append(ctx context.Context, tx generic.Transaction) error {
	return c.AppendBatch(ctx, []generic.Transaction{tx})
}

func (c conn) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
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
		 metadata, created_by, created_by_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	for _, tx := range txs {
		var metadata []byte
		if len(tx.Metadata) > 0 {
			raw, err := json.Marshal(tx.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			metadata = raw
		}
		_, err := c.q.Exec(ctx, query,
			string(tx.ID),
			string(tx.Key.EmployeeID),
			string(tx.Key.LeaveTypeID),
			tx.Key.Year,
			string(tx.Component),
			string(tx.Type),
			tx.Delta.Value.String(),
			string(tx.Delta.Unit),
			tx.EffectiveAt.Time,
			nullString(tx.ReferenceID),
			nullString(tx.Reason),
			nullString(tx.IdempotencyKey),
			nullString(string(tx.PolicyID)),
			tx.PolicyVersion,
			metadata,
			nullString(tx.CreatedBy),
			nullString(tx.CreatedByType),
			tx.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return generic.ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("append transaction: %w", err)
		}
	}
	return nil
}

func (c conn) LoadLedger(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	const query = `
		SELECT id, employee_id, leave_type_id, year, component, tx_type, delta_value::text, delta_unit,
		       effective_at, reference_id, reason, idempotency_key, policy_id, policy_version,
		       metadata, created_by, created_by_type, created_at
		FROM ledger_transactions
		WHERE employee_id = $1 AND leave_type_id = $2 AND year = $3
		ORDER BY seq ASC
	`
	rows, err := c.q.Query(ctx, query, string(key.EmployeeID), string(key.LeaveTypeID), key.Year)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		var (
			tx                                  generic.Transaction
			id, employeeID, leaveTypeID         string
			component, txType, value, unit      string
			effectiveAt                         time.Time
			referenceID, reason, idempotencyKey *string
			policyID, createdBy, byType         *string
			metadata                            []byte
		)
		err := rows.Scan(
			&id, &employeeID, &leaveTypeID, &tx.Key.Year, &component, &txType, &value, &unit,
			&effectiveAt, &referenceID, &reason, &idempotencyKey, &policyID, &tx.PolicyVersion,
			&metadata, &createdBy, &byType, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.ID = generic.TransactionID(id)
		tx.Key.EmployeeID = generic.EmployeeID(employeeID)
		tx.Key.LeaveTypeID = generic.LeaveTypeID(leaveTypeID)
		tx.Component = generic.Component(component)
		tx.Type = generic.TransactionType(txType)
		delta, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", id, err)
		}
		tx.Delta = generic.NewAmountFromDecimal(delta, generic.Unit(unit))
		tx.EffectiveAt = dateOf(effectiveAt)
		tx.CreatedAt = tx.CreatedAt.UTC()
		tx.ReferenceID = deref(referenceID)
		tx.Reason = deref(reason)
		tx.IdempotencyKey = deref(idempotencyKey)
		tx.PolicyID = generic.PolicyID(deref(policyID))
		tx.CreatedBy = deref(createdBy)
		tx.CreatedByType = deref(byType)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
				return nil, fmt.Errorf("transaction %s metadata: %w", id, err)
			}
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (c conn) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := c.q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM ledger_transactions WHERE idempotency_key = $1)",
		idempotencyKey,
	).Scan(&exists)
	return exists, err
}

// =============================================================================
// REQUESTS
// =============================================================================

func (c conn) SaveRequest(ctx context.Context, r *leave.Request) error {
	route, err := json.Marshal(r.Route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	args := []any{
		r.ID,
		string(r.EmployeeID),
		string(r.LeaveTypeID),
		r.StartDate.Time,
		r.EndDate.Time,
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
		route,
		r.SubmittedAt,
		r.DecidedAt,
		r.CancelledAt,
		r.UpdatedAt,
	}

	if r.Version == 0 {
		const insert = `
			INSERT INTO leave_requests
			(id, employee_id, leave_type_id, start_date, end_date, total_days, requested_days, status,
			 reason, employee_notes, manager_notes, rejection_reason, approver_id, policy_id,
			 policy_version, route, submitted_at, decided_at, cancelled_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 1)
		`
		if _, err := c.q.Exec(ctx, insert, args...); err != nil {
			if isUniqueViolation(err) {
				return generic.ErrConcurrentModification
			}
			return fmt.Errorf("insert request: %w", err)
		}
		r.Version = 1
		return nil
	}

	const update = `
		UPDATE leave_requests SET
			employee_id = $2, leave_type_id = $3, start_date = $4, end_date = $5, total_days = $6,
			requested_days = $7, status = $8, reason = $9, employee_notes = $10, manager_notes = $11,
			rejection_reason = $12, approver_id = $13, policy_id = $14, policy_version = $15,
			route = $16, submitted_at = $17, decided_at = $18, cancelled_at = $19, updated_at = $20,
			version = version + 1
		WHERE id = $1 AND version = $21
	`
	tag, err := c.q.Exec(ctx, update, append(args, r.Version)...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if err := checkAffected(tag); err != nil {
		return err
	}
	r.Version++
	return nil
}

const requestColumns = `
	id, employee_id, leave_type_id, start_date, end_date, total_days::text, requested_days::text,
	status, reason, employee_notes, manager_notes, rejection_reason, approver_id, policy_id,
	policy_version, route, submitted_at, decided_at, cancelled_at, updated_at, version
`

func (c conn) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	list, err := c.queryRequests(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, generic.NotFound("leave_request", id)
	}
	return &list[0], nil
}

func (c conn) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.EmployeeIDs) > 0 {
		ids := make([]string, len(f.EmployeeIDs))
		for i, id := range f.EmployeeIDs {
			ids[i] = string(id)
		}
		where = append(where, "employee_id = ANY("+arg(ids)+")")
	}
	if f.LeaveTypeID != "" {
		where = append(where, "leave_type_id = "+arg(string(f.LeaveTypeID)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if f.Overlapping != nil {
		// end_date is exclusive, the period is inclusive.
		where = append(where, "start_date <= "+arg(f.Overlapping.End.Time)+" AND end_date > "+arg(f.Overlapping.Start.Time))
	}

	query := "SELECT " + requestColumns + " FROM leave_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	return c.queryRequests(ctx, query, args...)
}

func (c conn) queryRequests(ctx context.Context, query string, args ...any) ([]leave.Request, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []leave.Request
	for rows.Next() {
		var (
			r                                     leave.Request
			employeeID, leaveTypeID, status       string
			total, asked                          string
			start, end                            time.Time
			reason, empNotes, mgrNotes, rejection *string
			approver, policyID                    *string
			route                                 []byte
		)
		err := rows.Scan(
			&r.ID, &employeeID, &leaveTypeID, &start, &end, &total, &asked,
			&status, &reason, &empNotes, &mgrNotes, &rejection, &approver, &policyID,
			&r.PolicyVersion, &route, &r.SubmittedAt, &r.DecidedAt, &r.CancelledAt, &r.UpdatedAt, &r.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.EmployeeID = generic.EmployeeID(employeeID)
		r.LeaveTypeID = generic.LeaveTypeID(leaveTypeID)
		r.Status = leave.Status(status)
		r.StartDate = dateOf(start)
		r.EndDate = dateOf(end)
		r.Reason = deref(reason)
		r.EmployeeNotes = deref(empNotes)
		r.ManagerNotes = deref(mgrNotes)
		r.RejectionReason = deref(rejection)
		r.ApproverID = generic.EmployeeID(deref(approver))
		r.PolicyID = generic.PolicyID(deref(policyID))
		r.SubmittedAt = r.SubmittedAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		r.DecidedAt = utc(r.DecidedAt)
		r.CancelledAt = utc(r.CancelledAt)
		if r.TotalDays, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("request %s total_days: %w", r.ID, err)
		}
		if r.RequestedDays, err = decimal.NewFromString(asked); err != nil {
			return nil, fmt.Errorf("request %s requested_days: %w", r.ID, err)
		}
		if len(route) > 0 {
			if err := json.Unmarshal(route, &r.Route); err != nil {
				return nil, fmt.Errorf("request %s route: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// BALANCES
// =============================================================================

func (c conn) SaveBalance(ctx context.Context, b *leave.Balance) error {
	var lastAccrual *time.Time
	if b.LastAccrualDate != nil {
		lastAccrual = &b.LastAccrualDate.Time
	}
	args := []any{
		string(b.Key.EmployeeID),
		string(b.Key.LeaveTypeID),
		b.Key.Year,
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
		b.UpdatedAt,
	}

	if b.Version == 0 {
		const insert = `
			INSERT INTO leave_balances
			(employee_id, leave_type_id, year, entitlement, used, pending, carry_over, manual_adjustment,
			 accrual_rate, accrual_period, last_accrual_date, policy_id, policy_version, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
		`
		if _, err := c.q.Exec(ctx, insert, args...); err != nil {
			if isUniqueViolation(err) {
				return generic.ErrConcurrentModification
			}
			return fmt.Errorf("insert balance: %w", err)
		}
		b.Version = 1
		return nil
	}

	const update = `
		UPDATE leave_balances SET
			entitlement = $4, used = $5, pending = $6, carry_over = $7, manual_adjustment = $8,
			accrual_rate = $9, accrual_period = $10, last_accrual_date = $11, policy_id = $12,
			policy_version = $13, updated_at = $14, version = version + 1
		WHERE employee_id = $1 AND leave_type_id = $2 AND year = $3 AND version = $15
	`
	tag, err := c.q.Exec(ctx, update, append(args, b.Version)...)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if err := checkAffected(tag); err != nil {
		return err
	}
	b.Version++
	return nil
}

const balanceColumns = `
	employee_id, leave_type_id, year, entitlement::text, used::text, pending::text,
	carry_over::text, manual_adjustment::text, accrual_rate::text, accrual_period,
	last_accrual_date, policy_id, policy_version, updated_at, version
`

func (c conn) GetBalance(ctx context.Context, key generic.BalanceKey) (*leave.Balance, error) {
	list, err := c.queryBalances(ctx,
		"SELECT "+balanceColumns+" FROM leave_balances WHERE employee_id = $1 AND leave_type_id = $2 AND year = $3",
		string(key.EmployeeID), string(key.LeaveTypeID), key.Year)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, generic.NotFound("balance", key.String())
	}
	return &list[0], nil
}

func (c conn) ListBalances(ctx context.Context, f leave.BalanceFilter) ([]leave.Balance, error) {
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
	if f.LeaveTypeID != "" {
		where = append(where, "leave_type_id = "+arg(string(f.LeaveTypeID)))
	}
	if f.Year != 0 {
		where = append(where, "year = "+arg(f.Year))
	}
	query := "SELECT " + balanceColumns + " FROM leave_balances"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY employee_id, leave_type_id, year"
	return c.queryBalances(ctx, query, args...)
}

func (c conn) queryBalances(ctx context.Context, query string, args ...any) ([]leave.Balance, error) {
	rows, err := c.q.Query(ctx, query, args...)
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
			adjustment, rate                  string
			lastAccrual                       *time.Time
			policyID                          *string
		)
		err := rows.Scan(
			&employeeID, &leaveTypeID, &b.Key.Year, &entitlement, &used, &pending,
			&carry, &adjustment, &rate, &period,
			&lastAccrual, &policyID, &b.PolicyVersion, &b.UpdatedAt, &b.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		b.Key.EmployeeID = generic.EmployeeID(employeeID)
		b.Key.LeaveTypeID = generic.LeaveTypeID(leaveTypeID)
		b.AccrualPeriod = generic.AccrualPeriod(period)
		b.PolicyID = generic.PolicyID(deref(policyID))
		b.UpdatedAt = b.UpdatedAt.UTC()
		if lastAccrual != nil {
			d := dateOf(*lastAccrual)
			b.LastAccrualDate = &d
		}
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
		out = append(out, b)
	}
	return out, rows.Err()
}

// scanOne maps pgx.ErrNoRows to a NotFoundError.
func scanOne(row pgx.Row, entity, id string, dest ...any) error {
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.NotFound(entity, id)
	}
	return err
}
