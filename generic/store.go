/*
store.go - Persistence interface for ledger transactions

PURPOSE:
  Defines the contract between the ledger and the database. Domain stores
  (leave.Store) embed it so ledger rows are written through the same
  database transaction as the rows they explain.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  A write carrying an idempotency key that already exists is rejected with
  ErrDuplicateIdempotencyKey. Accrual sweeps rely on this to be safely
  re-runnable.

IMPLEMENTATIONS:
  - store/memory:   In-memory, snapshot + rollback transactions
  - store/sqlite:   Embedded SQLite
  - store/postgres: PostgreSQL via pgx with row-level locking

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import "context"

// Store handles persistence of ledger transactions. Append-only.
type Store interface {
	// Append persists a transaction. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// LoadLedger returns all transactions for a balance, ordered by creation.
	LoadLedger(ctx context.Context, key BalanceKey) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
