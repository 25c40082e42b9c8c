package leave

import (
	"context"

	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	EmployeeIDs []generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Statuses    []Status

	// Overlapping keeps requests sharing at least one day with the period.
	Overlapping *generic.Period
}

// BalanceFilter narrows ListBalances. Zero fields match everything.
type BalanceFilter struct {
	EmployeeID  generic.EmployeeID
	LeaveTypeID generic.LeaveTypeID
	Year        int
}

// Store persists requests, balances and their ledger rows.
//
// Save methods follow one versioning rule: Version 0 inserts and sets
// Version to 1; otherwise the row is updated only if its stored version
// equals Version, which is then incremented. A mismatch returns
// generic.ErrConcurrentModification.
type Store interface {
	generic.Store

	SaveRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]Request, error)

	SaveBalance(ctx context.Context, b *Balance) error
	// GetBalance returns a generic.NotFoundError when the balance was never opened.
	GetBalance(ctx context.Context, key generic.BalanceKey) (*Balance, error)
	ListBalances(ctx context.Context, f BalanceFilter) ([]Balance, error)

	// LockEmployee serializes request mutations for one employee until the
	// enclosing transaction ends. Outside a transaction it is a no-op.
	LockEmployee(ctx context.Context, id generic.EmployeeID) error

	// LockBalance serializes mutations of one balance row until the
	// enclosing transaction ends. Outside a transaction it is a no-op.
	LockBalance(ctx context.Context, key generic.BalanceKey) error
}

// TxStore runs fn atomically: every write made through the Store passed to
// fn commits together, or none does when fn returns an error.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
