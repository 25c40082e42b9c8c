/*
Package generic provides the shared vocabulary of the attendance and leave engine.

PURPOSE:
  Domain-neutral types used by every component: decimal amounts of days or
  hours, identifiers, calendar dates, employee group data, the error taxonomy
  and the append-only balance ledger. Nothing in this package knows about
  clock events, leave requests or overtime bands.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 days, 7.5 hours)
  - Transaction: An immutable ledger row recording one balance component change
  - BalanceKey: (employee, leave type, year), the unit of balance ownership
  - Typed identifiers for employees, leave types and policies

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point drift in hours/days
  3. Type Safety: Distinct ID types keep employee and policy IDs apart
  4. Auditability: Every transaction carries actor, reason, idempotency key
     and the policy version that produced it

USAGE:
  tx := generic.Transaction{
      Key:       generic.BalanceKey{EmployeeID: "emp-1", LeaveTypeID: "annual", Year: 2025},
      Component: generic.ComponentPending,
      Type:      generic.TxPending,
      Delta:     generic.Days(5),
  }

SEE ALSO:
  - ledger.go: Transaction persistence and replay
  - errors.go: Error taxonomy
  - employee.go: Employee group data and the directory collaborator
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays    Unit = "days"
	UnitHours   Unit = "hours"
	UnitMinutes Unit = "minutes"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

// Days is shorthand for a day amount.
func Days(value float64) Amount { return NewAmount(value, UnitDays) }

// Hours is shorthand for an hour amount.
func Hours(value float64) Amount { return NewAmount(value, UnitHours) }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type PolicyID string
type TransactionID string

// BalanceKey identifies a leave balance: one per employee, leave type and year.
type BalanceKey struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Year        int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.EmployeeID, k.LeaveTypeID, k.Year)
}

// =============================================================================
// TRANSACTION - Atomic change to one balance component
// =============================================================================

type TransactionType string

const (
	TxGrant          TransactionType = "grant"           // Entitlement opened for the year
	TxAccrual        TransactionType = "accrual"         // Periodic accrual credit
	TxPending        TransactionType = "pending"         // Days reserved by a submitted request
	TxPendingRelease TransactionType = "pending_release" // Reservation released (approve/reject/cancel)
	TxConsumption    TransactionType = "consumption"     // Days used by an approved request
	TxReversal       TransactionType = "reversal"        // Undo of a consumption (cancelled approval)
	TxAdjustment     TransactionType = "adjustment"      // Manual admin correction
	TxCarryOver      TransactionType = "carry_over"      // Unused days rolled from the prior year
)

// Component names the balance field a transaction mutates.
type Component string

const (
	ComponentEntitlement Component = "entitlement"
	ComponentPending     Component = "pending"
	ComponentUsed        Component = "used"
	ComponentCarryOver   Component = "carry_over"
	ComponentAdjustment  Component = "adjustment"
)

type Transaction struct {
	ID             TransactionID
	Key            BalanceKey
	Component      Component
	Type           TransactionType
	Delta          Amount
	EffectiveAt    TimePoint
	ReferenceID    string // request ID, accrual period, etc.
	Reason         string
	IdempotencyKey string
	PolicyID       PolicyID
	PolicyVersion  int
	Metadata       map[string]string

	// Audit fields
	CreatedBy     string // Actor who created this transaction
	CreatedByType string // "employee", "manager", "hr", "admin", "system"
	CreatedAt     time.Time
}

// =============================================================================
// BALANCE COMPONENTS - Ledger replay result
// =============================================================================

// Components is the sum of ledger deltas per balance component.
type Components struct {
	Entitlement Amount
	Pending     Amount
	Used        Amount
	CarryOver   Amount
	Adjustment  Amount
}

// ZeroComponents returns all components at zero in the given unit.
func ZeroComponents(unit Unit) Components {
	z := NewAmount(0, unit)
	return Components{Entitlement: z, Pending: z, Used: z, CarryOver: z, Adjustment: z}
}

// Available = entitlement + carry-over + adjustment - used - pending.
func (c Components) Available() Amount {
	return c.Entitlement.Add(c.CarryOver).Add(c.Adjustment).Sub(c.Used).Sub(c.Pending)
}

// Apply adds a transaction's delta to its component.
func (c Components) Apply(tx Transaction) Components {
	switch tx.Component {
	case ComponentEntitlement:
		c.Entitlement = c.Entitlement.Add(tx.Delta)
	case ComponentPending:
		c.Pending = c.Pending.Add(tx.Delta)
	case ComponentUsed:
		c.Used = c.Used.Add(tx.Delta)
	case ComponentCarryOver:
		c.CarryOver = c.CarryOver.Add(tx.Delta)
	case ComponentAdjustment:
		c.Adjustment = c.Adjustment.Add(tx.Delta)
	}
	return c
}
