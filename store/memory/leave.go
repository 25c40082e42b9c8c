// Package memory provides in-process implementations of every store
// contract. They back the tests and the "memory" driver.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/leave"
)

// =============================================================================
// LEAVE STORE
// =============================================================================

// LeaveStore keeps requests, balances and the ledger in maps. WithTx holds
// the store mutex for the whole callback and restores a snapshot when it
// fails, so the lock methods have nothing left to do.
type LeaveStore struct {
	mu    sync.RWMutex
	state leaveState
}

type leaveState struct {
	ledger      map[generic.BalanceKey][]generic.Transaction
	idempotency map[string]bool
	requests    map[string]leave.Request
	order       []string
	balances    map[generic.BalanceKey]leave.Balance
}

func NewLeaveStore() *LeaveStore {
	return &LeaveStore{state: leaveState{
		ledger:      make(map[generic.BalanceKey][]generic.Transaction),
		idempotency: make(map[string]bool),
		requests:    make(map[string]leave.Request),
		balances:    make(map[generic.BalanceKey]leave.Balance),
	}}
}

func (s *LeaveStore) Append(_ context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.appendBatch([]generic.Transaction{tx})
}

func (s *LeaveStore) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.appendBatch(txs)
}

func (s *LeaveStore) LoadLedger(_ context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.loadLedger(key), nil
}

func (s *LeaveStore) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.idempotency[idempotencyKey], nil
}

func (s *LeaveStore) SaveRequest(_ context.Context, r *leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.saveRequest(r)
}

func (s *LeaveStore) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getRequest(id)
}

func (s *LeaveStore) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listRequests(f), nil
}

func (s *LeaveStore) SaveBalance(_ context.Context, b *leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.saveBalance(b)
}

func (s *LeaveStore) GetBalance(_ context.Context, key generic.BalanceKey) (*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getBalance(key)
}

func (s *LeaveStore) ListBalances(_ context.Context, f leave.BalanceFilter) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listBalances(f), nil
}

func (s *LeaveStore) LockEmployee(context.Context, generic.EmployeeID) error { return nil }
func (s *LeaveStore) LockBalance(context.Context, generic.BalanceKey) error  { return nil }

// WithTx runs fn against a view that writes straight into the state.
func (s *LeaveStore) WithTx(_ context.Context, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&leaveView{state: &s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// =============================================================================
// STATE - callers hold the mutex
// =============================================================================

func (st *leaveState) clone() leaveState {
	c := leaveState{
		ledger:      make(map[generic.BalanceKey][]generic.Transaction, len(st.ledger)),
		idempotency: make(map[string]bool, len(st.idempotency)),
		requests:    make(map[string]leave.Request, len(st.requests)),
		order:       append([]string(nil), st.order...),
		balances:    make(map[generic.BalanceKey]leave.Balance, len(st.balances)),
	}
	for k, v := range st.ledger {
		c.ledger[k] = append([]generic.Transaction(nil), v...)
	}
	for k, v := range st.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range st.requests {
		c.requests[k] = v
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	return c
}

func (st *leaveState) appendBatch(txs []generic.Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" && st.idempotency[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
	}
	for _, tx := range txs {
		st.ledger[tx.Key] = append(st.ledger[tx.Key], tx)
		if tx.IdempotencyKey != "" {
			st.idempotency[tx.IdempotencyKey] = true
		}
	}
	return nil
}

func (st *leaveState) loadLedger(key generic.BalanceKey) []generic.Transaction {
	return append([]generic.Transaction(nil), st.ledger[key]...)
}

func (st *leaveState) saveRequest(r *leave.Request) error {
	stored, exists := st.requests[r.ID]
	if err := checkVersion(exists, stored.Version, r.Version); err != nil {
		return err
	}
	if !exists {
		st.order = append(st.order, r.ID)
	}
	r.Version++
	st.requests[r.ID] = *r
	return nil
}

func (st *leaveState) getRequest(id string) (*leave.Request, error) {
	r, ok := st.requests[id]
	if !ok {
		return nil, generic.NotFound("leave_request", id)
	}
	return &r, nil
}

func (st *leaveState) listRequests(f leave.RequestFilter) []leave.Request {
	var out []leave.Request
	for _, id := range st.order {
		r := st.requests[id]
		if matchRequest(f, r) {
			out = append(out, r)
		}
	}
	return out
}

func (st *leaveState) saveBalance(b *leave.Balance) error {
	stored, exists := st.balances[b.Key]
	if err := checkVersion(exists, stored.Version, b.Version); err != nil {
		return err
	}
	b.Version++
	st.balances[b.Key] = *b
	return nil
}

func (st *leaveState) getBalance(key generic.BalanceKey) (*leave.Balance, error) {
	b, ok := st.balances[key]
	if !ok {
		return nil, generic.NotFound("balance", key.String())
	}
	return &b, nil
}

func (st *leaveState) listBalances(f leave.BalanceFilter) []leave.Balance {
	var out []leave.Balance
	for _, b := range st.balances {
		if f.EmployeeID != "" && b.Key.EmployeeID != f.EmployeeID {
			continue
		}
		if f.LeaveTypeID != "" && b.Key.LeaveTypeID != f.LeaveTypeID {
			continue
		}
		if f.Year != 0 && b.Key.Year != f.Year {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b leave.Balance) int {
		return compareKeys(a.Key, b.Key)
	})
	return out
}

func matchRequest(f leave.RequestFilter, r leave.Request) bool {
	if len(f.EmployeeIDs) > 0 && !slices.Contains(f.EmployeeIDs, r.EmployeeID) {
		return false
	}
	if f.LeaveTypeID != "" && r.LeaveTypeID != f.LeaveTypeID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
		return false
	}
	if f.Overlapping != nil && !r.Period().Overlaps(*f.Overlapping) {
		return false
	}
	return true
}

func compareKeys(a, b generic.BalanceKey) int {
	switch {
	case a.EmployeeID != b.EmployeeID:
		if a.EmployeeID < b.EmployeeID {
			return -1
		}
		return 1
	case a.LeaveTypeID != b.LeaveTypeID:
		if a.LeaveTypeID < b.LeaveTypeID {
			return -1
		}
		return 1
	default:
		return a.Year - b.Year
	}
}

// checkVersion applies the optimistic versioning rule shared by all saves.
func checkVersion(exists bool, stored, given int) error {
	switch {
	case given == 0 && !exists:
		return nil
	case given == 0 && exists:
		return generic.ErrConcurrentModification
	case !exists || stored != given:
		return generic.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

type leaveView struct {
	state *leaveState
}

func (v *leaveView) Append(_ context.Context, tx generic.Transaction) error {
	return v.state.appendBatch([]generic.Transaction{tx})
}

func (v *leaveView) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	return v.state.appendBatch(txs)
}

func (v *leaveView) LoadLedger(_ context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return v.state.loadLedger(key), nil
}

func (v *leaveView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return v.state.idempotency[idempotencyKey], nil
}

func (v *leaveView) SaveRequest(_ context.Context, r *leave.Request) error {
	return v.state.saveRequest(r)
}

func (v *leaveView) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	return v.state.getRequest(id)
}

func (v *leaveView) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	return v.state.listRequests(f), nil
}

func (v *leaveView) SaveBalance(_ context.Context, b *leave.Balance) error {
	return v.state.saveBalance(b)
}

func (v *leaveView) GetBalance(_ context.Context, key generic.BalanceKey) (*leave.Balance, error) {
	return v.state.getBalance(key)
}

func (v *leaveView) ListBalances(_ context.Context, f leave.BalanceFilter) ([]leave.Balance, error) {
	return v.state.listBalances(f), nil
}

func (v *leaveView) LockEmployee(context.Context, generic.EmployeeID) error { return nil }
func (v *leaveView) LockBalance(context.Context, generic.BalanceKey) error  { return nil }
