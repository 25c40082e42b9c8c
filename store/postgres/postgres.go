/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces for deployments that run more than one engine process.

PURPOSE:
  Store implements the same contracts as store/sqlite:

  leave.TxStore:          Requests, balances and the leave ledger
  timetracking.TxStore:   Time entries
  policy.Repository:      Leave and overtime policies (versioned)
  generic.Directory:      Employees
  generic.HolidayCalendar Holidays

CONCURRENCY:
  Nothing is serialized in process. Inside a transaction LockEmployee and
  LockBalance take transaction-scoped advisory locks
  (pg_advisory_xact_lock) so two processes mutating the same employee or
  balance queue behind each other. WithEmployeeTx takes the employee lock
  before running fn. Versioned updates still guard against writers that
  skip the locks.

AMOUNTS:
  Day and hour amounts are NUMERIC columns. They are written as decimal
  strings and read back through a ::text cast so no float conversion ever
  happens.

USAGE:
  store, err := postgres.Open(ctx, "postgres://hr:hr@localhost:5432/hr")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlite: Single-node implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// Store implements all storage interfaces on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
	conn
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool, now: time.Now, conn: conn{q: pool}}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS ledger_transactions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		component TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		delta_value NUMERIC(12, 4) NOT NULL,
		delta_unit TEXT NOT NULL,
		effective_at DATE NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		metadata JSONB,
		created_by TEXT,
		created_by_type TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_balance
		ON ledger_transactions(employee_id, leave_type_id, year, seq);

	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		entitlement NUMERIC(12, 4) NOT NULL,
		used NUMERIC(12, 4) NOT NULL,
		pending NUMERIC(12, 4) NOT NULL,
		carry_over NUMERIC(12, 4) NOT NULL,
		manual_adjustment NUMERIC(12, 4) NOT NULL,
		accrual_rate NUMERIC(12, 4) NOT NULL,
		accrual_period TEXT NOT NULL,
		last_accrual_date DATE,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id, year)
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		total_days NUMERIC(12, 4) NOT NULL,
		requested_days NUMERIC(12, 4) NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		employee_notes TEXT,
		manager_notes TEXT,
		rejection_reason TEXT,
		approver_id TEXT,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		route JSONB,
		submitted_at TIMESTAMPTZ NOT NULL,
		decided_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
		ON leave_requests(employee_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		status TEXT NOT NULL,
		clock_in TIMESTAMPTZ NOT NULL,
		clock_out TIMESTAMPTZ,
		manual BOOLEAN NOT NULL DEFAULT FALSE,
		record JSONB NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_employee
		ON time_entries(employee_id, clock_in);
	CREATE INDEX IF NOT EXISTS idx_time_entries_status
		ON time_entries(status);

	CREATE TABLE IF NOT EXISTS policies (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		leave_type_id TEXT,
		active BOOLEAN NOT NULL,
		config JSONB NOT NULL,
		version INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT,
		department_id TEXT,
		employment_type TEXT,
		job_title TEXT,
		manager_id TEXT,
		company_id TEXT NOT NULL DEFAULT '',
		hire_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_department
		ON employees(department_id);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL DEFAULT '',
		date DATE NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (company_id, date, name)
	);
`

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	return s.withTransaction(ctx, func(t *txStore) error { return fn(t) })
}

// WithEmployeeTx holds the employee's advisory lock for the whole of fn.
func (s *Store) WithEmployeeTx(ctx context.Context, employeeID generic.EmployeeID, fn func(timetracking.Store) error) error {
	return s.withTransaction(ctx, func(t *txStore) error {
		if err := t.advisoryLock(ctx, lockTimeEntries, string(employeeID)); err != nil {
			return err
		}
		return fn(t)
	})
}

// withTransaction commits when fn returns nil and rolls back on error or panic.
func (s *Store) withTransaction(ctx context.Context, fn func(*txStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&txStore{conn: conn{q: tx}}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the view handed to transactional callbacks. Every method of
// conn runs on the transaction.
type txStore struct {
	conn
}

// Advisory lock namespaces.
const (
	lockLeaveEmployee int32 = iota + 1
	lockLeaveBalance
	lockTimeEntries
)

func (t *txStore) LockEmployee(ctx context.Context, id generic.EmployeeID) error {
	return t.advisoryLock(ctx, lockLeaveEmployee, string(id))
}

func (t *txStore) LockBalance(ctx context.Context, key generic.BalanceKey) error {
	return t.advisoryLock(ctx, lockLeaveBalance, key.String())
}

func (t *txStore) advisoryLock(ctx context.Context, namespace int32, key string) error {
	if _, err := t.q.Exec(ctx, "SELECT pg_advisory_xact_lock($1, $2)", namespace, lockKey(key)); err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}

func lockKey(s string) int32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int32(h.Sum32())
}

// Outside a transaction there is nothing to hold a lock for.
func (s *Store) LockEmployee(context.Context, generic.EmployeeID) error { return nil }
func (s *Store) LockBalance(context.Context, generic.BalanceKey) error  { return nil }

// AppendBatch writes all rows in one transaction.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return s.withTransaction(ctx, func(t *txStore) error { return t.AppendBatch(ctx, txs) })
}

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return s.AppendBatch(ctx, []generic.Transaction{tx})
}

// =============================================================================
// HELPERS
// =============================================================================

// Querier is satisfied by both the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn holds the queries shared by the Store and its transaction view.
type conn struct {
	q Querier
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func checkAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return generic.ErrConcurrentModification
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateOf(t time.Time) generic.TimePoint {
	return generic.NewTimePoint(t.Year(), t.Month(), t.Day())
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
