/*
ledger.go - Append-only balance transaction log

PURPOSE:
  The Ledger records every change to a leave balance: accruals, pending
  reservations and their release, consumption, reversals, carry-over and
  manual adjustments. Leave balances are stored as rows for locking, but the
  ledger is the audit trail that explains them: replaying a balance's
  transactions reproduces the row exactly.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. AUDITABLE: Every balance change carries actor, reason and policy version
  4. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  A mistake is never edited. Instead:
  1. Create a Reversal or Adjustment transaction (opposite sign)
  2. Both original and correction remain in the ledger

EXAMPLE FLOW (5-day request, approved, then cancelled):
  pending      +5   (submit)
  pending      -5   (approve, release reservation)
  used         +5   (approve, consumption)
  used         -5   (cancel, reversal)

SEE ALSO:
  - store.go: Persistence interface
  - leave/manager.go: Writes ledger rows in the same transaction as balance rows
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the audit source for balance changes.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for a balance, chronologically.
	Transactions(ctx context.Context, key BalanceKey) ([]Transaction, error)

	// Replay computes the balance components from the transactions.
	Replay(ctx context.Context, key BalanceKey, unit Unit) (Components, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, key BalanceKey) ([]Transaction, error) {
	return l.Store.LoadLedger(ctx, key)
}

func (l *DefaultLedger) Replay(ctx context.Context, key BalanceKey, unit Unit) (Components, error) {
	txs, err := l.Store.LoadLedger(ctx, key)
	if err != nil {
		return Components{}, err
	}
	return ReplayTransactions(txs, unit), nil
}

// ReplayTransactions folds transactions into balance components.
func ReplayTransactions(txs []Transaction, unit Unit) Components {
	c := ZeroComponents(unit)
	for _, tx := range txs {
		c = c.Apply(tx)
	}
	return c
}
