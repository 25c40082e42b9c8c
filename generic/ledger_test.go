package generic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceStore is the smallest Store that honours the append-only contract.
type sliceStore struct {
	txs  []generic.Transaction
	keys map[string]bool
	fail error
}

func newSliceStore() *sliceStore {
	return &sliceStore{keys: map[string]bool{}}
}

func (s *sliceStore) Append(ctx context.Context, tx generic.Transaction) error {
	return s.AppendBatch(ctx, []generic.Transaction{tx})
}

func (s *sliceStore) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	if s.fail != nil {
		return s.fail
	}
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			s.keys[tx.IdempotencyKey] = true
		}
	}
	s.txs = append(s.txs, txs...)
	return nil
}

func (s *sliceStore) LoadLedger(_ context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	var out []generic.Transaction
	for _, tx := range s.txs {
		if tx.Key == key {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *sliceStore) Exists(_ context.Context, key string) (bool, error) {
	return s.keys[key], nil
}

var annual2025 = generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025}

func tx(c generic.Component, typ generic.TransactionType, days float64, key string) generic.Transaction {
	return generic.Transaction{
		Key:            annual2025,
		Component:      c,
		Type:           typ,
		Delta:          generic.Days(days),
		EffectiveAt:    generic.NewTimePoint(2025, 3, 1),
		IdempotencyKey: key,
	}
}

func TestLedger_ReplayFollowsRequestLifecycle(t *testing.T) {
	// GIVEN: 20 days granted, a 5-day request submitted, approved, then cancelled
	ctx := context.Background()
	ledger := generic.NewLedger(newSliceStore())
	require.NoError(t, ledger.AppendBatch(ctx, []generic.Transaction{
		tx(generic.ComponentEntitlement, generic.TxGrant, 20, "grant"),
		tx(generic.ComponentPending, generic.TxPending, 5, "req-1:pending"),
	}))

	mid, err := ledger.Replay(ctx, annual2025, generic.UnitDays)
	require.NoError(t, err)
	assert.True(t, mid.Available().Equal(generic.Days(15)), "pending is reserved")

	require.NoError(t, ledger.AppendBatch(ctx, []generic.Transaction{
		tx(generic.ComponentPending, generic.TxPendingRelease, -5, "req-1:release"),
		tx(generic.ComponentUsed, generic.TxConsumption, 5, "req-1:used"),
	}))
	require.NoError(t, ledger.Append(ctx, tx(generic.ComponentUsed, generic.TxReversal, -5, "req-1:reversal")))

	// WHEN: The ledger is replayed
	c, err := ledger.Replay(ctx, annual2025, generic.UnitDays)
	require.NoError(t, err)

	// THEN: Every reservation and consumption nets to zero
	assert.True(t, c.Pending.IsZero())
	assert.True(t, c.Used.IsZero())
	assert.True(t, c.Available().Equal(generic.Days(20)))

	txs, err := ledger.Transactions(ctx, annual2025)
	require.NoError(t, err)
	assert.Len(t, txs, 5)
}

func TestLedger_DuplicateIdempotencyKeyRejected(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(newSliceStore())
	require.NoError(t, ledger.Append(ctx, tx(generic.ComponentEntitlement, generic.TxAccrual, 1.67, "accrual:2025-02-01")))

	err := ledger.Append(ctx, tx(generic.ComponentEntitlement, generic.TxAccrual, 1.67, "accrual:2025-02-01"))

	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.Equal(t, generic.CodeConflict, generic.CodeOf(err))
}

func TestLedger_BatchWithRepeatedKeyWritesNothing(t *testing.T) {
	// GIVEN: A batch that repeats a key inside itself
	ctx := context.Background()
	store := newSliceStore()
	ledger := generic.NewLedger(store)

	// WHEN: Appended
	err := ledger.AppendBatch(ctx, []generic.Transaction{
		tx(generic.ComponentCarryOver, generic.TxCarryOver, 5, "co:2024"),
		tx(generic.ComponentCarryOver, generic.TxCarryOver, 5, "co:2024"),
	})

	// THEN: The batch is refused as a whole
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.Empty(t, store.txs)
}

func TestLedger_StoreErrorPropagates(t *testing.T) {
	store := newSliceStore()
	store.fail = errors.New("disk full")
	ledger := generic.NewLedger(store)

	err := ledger.Append(context.Background(), tx(generic.ComponentAdjustment, generic.TxAdjustment, 2, ""))

	assert.EqualError(t, err, "disk full")
}

func TestReplayTransactions_Adjustments(t *testing.T) {
	c := generic.ReplayTransactions([]generic.Transaction{
		tx(generic.ComponentEntitlement, generic.TxGrant, 10, ""),
		tx(generic.ComponentCarryOver, generic.TxCarryOver, 3, ""),
		tx(generic.ComponentAdjustment, generic.TxAdjustment, -1.5, ""),
		tx(generic.ComponentUsed, generic.TxConsumption, 2, ""),
	}, generic.UnitDays)

	assert.Equal(t, "9.5", c.Available().Value.String())
	assert.Equal(t, generic.UnitDays, c.Available().Unit)
}
