/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One Store implements every persistence contract of the engine so a
  single-node deployment runs on one file:

  leave.TxStore:          Requests, balances and the leave ledger
  timetracking.TxStore:   Time entries
  policy.Repository:      Leave and overtime policies (versioned)
  generic.Directory:      Employees
  generic.HolidayCalendar Holidays

APPEND-ONLY LEDGER:
  The ledger_transactions table is only ever inserted into. The
  idempotency_key column is UNIQUE; a duplicate surfaces as
  generic.ErrDuplicateIdempotencyKey.

VERSIONING:
  Requests, balances and time entries carry a version column. Inserts use
  version 1; updates run "UPDATE ... WHERE id = ? AND version = ?" and a miss
  is generic.ErrConcurrentModification.

CONCURRENCY:
  Writers are serialized by a mutex and open their transactions with
  BEGIN IMMEDIATE, so the Lock* methods of the transaction view have
  nothing to do. Ledger, request, balance and entry reads take the read
  side of the mutex. Reference data (policies, employees, holidays) is read
  without it so services can consult it while a transaction is open.

WAL MODE:
  File databases are opened in WAL mode: readers do not block the writer.
  ":memory:" opens a named shared-cache database so every pooled connection
  sees the same data.

USAGE:
  store, err := sqlite.Open("./data/hr.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/memory: In-process implementation for tests
  - store/postgres: Multi-node implementation with row locks
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
	"github.com/solomon-wilson/hrmis-sub002/timetracking"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
	conn
}

// Open opens (and migrates) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", uuid.NewString())
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A shared-cache memory database lives as long as one connection does.
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now, conn: conn{q: db}}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		component TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT,
		created_by TEXT,
		created_by_type TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_balance
		ON ledger_transactions(employee_id, leave_type_id, year, seq);
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Leave balances, one per employee, leave type and year
	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		entitlement TEXT NOT NULL,
		used TEXT NOT NULL,
		pending TEXT NOT NULL,
		carry_over TEXT NOT NULL,
		manual_adjustment TEXT NOT NULL,
		accrual_rate TEXT NOT NULL,
		accrual_period TEXT NOT NULL,
		last_accrual_date TEXT,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id, year)
	);

	-- Leave requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		requested_days TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		employee_notes TEXT,
		manager_notes TEXT,
		rejection_reason TEXT,
		approver_id TEXT,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		route_json TEXT,
		submitted_at TEXT NOT NULL,
		decided_at TEXT,
		cancelled_at TEXT,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
		ON leave_requests(employee_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	-- Time entries
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		status TEXT NOT NULL,
		clock_in TEXT NOT NULL,
		clock_out TEXT,
		manual BOOLEAN NOT NULL DEFAULT FALSE,
		record_json TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_employee
		ON time_entries(employee_id, clock_in);
	CREATE INDEX IF NOT EXISTS idx_time_entries_status
		ON time_entries(status);

	-- Policies (leave and overtime, versioned)
	CREATE TABLE IF NOT EXISTS policies (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		leave_type_id TEXT,
		active BOOLEAN NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_leave_type
		ON policies(kind, leave_type_id);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT,
		department_id TEXT,
		employment_type TEXT,
		job_title TEXT,
		manager_id TEXT,
		company_id TEXT NOT NULL DEFAULT '',
		hire_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_department
		ON employees(department_id);

	-- Holidays (company-specific and global)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_company_date
		ON holidays(company_id, date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(company_id, date, name);
`

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one database transaction (leave.TxStore).
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	return s.inTx(ctx, func(tx *txStore) error { return fn(tx) })
}

// WithEmployeeTx runs fn inside one database transaction (timetracking.TxStore).
// The writer mutex already serializes every employee.
func (s *Store) WithEmployeeTx(ctx context.Context, _ generic.EmployeeID, fn func(timetracking.Store) error) error {
	return s.inTx(ctx, func(tx *txStore) error { return fn(tx) })
}

func (s *Store) inTx(ctx context.Context, fn func(*txStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn: conn{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the view handed to transaction callbacks. It talks to the
// sql.Tx directly and never touches the Store mutex.
type txStore struct {
	conn
}

func (t *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return t.appendBatch(ctx, []generic.Transaction{tx})
}

func (t *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return t.appendBatch(ctx, txs)
}

func (t *txStore) LoadLedger(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return t.loadLedger(ctx, key)
}

func (t *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return t.exists(ctx, idempotencyKey)
}

func (t *txStore) SaveRequest(ctx context.Context, r *leave.Request) error {
	return t.saveRequest(ctx, r)
}

func (t *txStore) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	return t.getRequest(ctx, id)
}

func (t *txStore) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	return t.listRequests(ctx, f)
}

func (t *txStore) SaveBalance(ctx context.Context, b *leave.Balance) error {
	return t.saveBalance(ctx, b)
}

func (t *txStore) GetBalance(ctx context.Context, key generic.BalanceKey) (*leave.Balance, error) {
	return t.getBalance(ctx, key)
}

func (t *txStore) ListBalances(ctx context.Context, f leave.BalanceFilter) ([]leave.Balance, error) {
	return t.listBalances(ctx, f)
}

func (t *txStore) LockEmployee(context.Context, generic.EmployeeID) error { return nil }
func (t *txStore) LockBalance(context.Context, generic.BalanceKey) error  { return nil }

func (t *txStore) SaveEntry(ctx context.Context, e timetracking.TimeEntry) error {
	return t.saveEntry(ctx, e)
}

func (t *txStore) DeleteEntry(ctx context.Context, id string) error {
	return t.deleteEntry(ctx, id)
}

func (t *txStore) GetEntry(ctx context.Context, id string) (timetracking.TimeEntry, error) {
	return t.getEntry(ctx, id)
}

func (t *txStore) ListEntries(ctx context.Context, f timetracking.EntryFilter) ([]timetracking.TimeEntry, error) {
	return t.listEntries(ctx, f)
}

// =============================================================================
// CONNECTION - queries shared by Store and txStore
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q querier
}

// =============================================================================
// HELPERS
// =============================================================================

// Timestamps are stored in UTC with a fixed-width layout so that text
// comparison orders them chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(d generic.TimePoint) string { return d.Time.Format(generic.DateLayout) }

func parseDate(s string) (generic.TimePoint, error) {
	return generic.ParseDate(s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// checkAffected turns a versioned UPDATE that matched no row into a
// concurrent modification.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.ErrConcurrentModification
	}
	return nil
}
