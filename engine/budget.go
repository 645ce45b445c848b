package engine

import "time"

// =============================================================================
// MONTHLY BUDGET - Administrator-set spend cap per period
// =============================================================================

// MonthlyBudget is the allocated cap for one (month, year) pair. There is at
// most one record per period; updates amend in place. The audit trail is the
// only history of budget changes.
type MonthlyBudget struct {
	Period    Period
	Allocated Amount
	UpdatedAt time.Time
}

// BudgetStatus is a read-only snapshot of a period's allocation, the
// committed total derived from approved applications, and the remaining
// balance. Consumed by the report surface; never stored.
type BudgetStatus struct {
	Period    Period
	Allocated Amount
	Committed Amount
	Remaining Amount
}
