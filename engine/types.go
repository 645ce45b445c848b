/*
Package engine provides the application lifecycle and budget-constrained
approval core of the crisis-assistance portal.

PURPOSE:
  This package contains the domain types and algorithms for managing aid
  applications against a capped monthly budget. The defining invariant is
  that the sum of released amounts in any budget period never exceeds the
  administrator-set allocation for that period, even under concurrent
  approval attempts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal-exact monetary value (single currency)
  - Application/Citizen IDs: Type-safe identifiers
  - Actor: Who performed a state-changing action

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift
  2. Derived balances: committed spend is always recomputed from approved
     rows, never stored as a running counter
  3. Type Safety: Strong typing for IDs prevents mixing identifiers
  4. Auditability: Every state change produces an audit entry in the same
     transaction

USAGE:
  amount := engine.MustParseAmount("1500.00")
  app, err := eng.Approve(ctx, id, amount, actor, origin)

SEE ALSO:
  - application.go: Application entity and state machine
  - approval.go: Decision orchestration
  - period.go: Budget period (month, year) math
*/
package engine

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Decimal-exact monetary value
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

// ParseAmount is the only construction path for amounts. There is no float
// constructor; money enters the system as decimal strings.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

// MustParseAmount panics on a malformed literal. For tests and constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic("engine: invalid amount literal " + strconv.Quote(s) + ": " + err.Error())
	}
	return a
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }

// String renders the amount with two decimal places, the display convention
// for peso amounts throughout the portal.
func (a Amount) String() string { return a.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ApplicationID is assigned by the store at creation time and is monotonic.
type ApplicationID int64

type CitizenID string

// =============================================================================
// ACTOR - Who performed a state-changing action
// =============================================================================

type ActorRole string

const (
	RoleCitizen ActorRole = "citizen"
	RoleStaff   ActorRole = "staff"
	RoleAdmin   ActorRole = "admin"
	RoleSystem  ActorRole = "system"
)

type Actor struct {
	ID   string
	Role ActorRole
}
