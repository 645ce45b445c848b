/*
store.go - Persistence interfaces for applications, budgets, and audit

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations use SQLite (production) or in-memory maps
  (tests/dev).

KEY INTERFACES:
  ApplicationStore: Application rows, admission control, committed sums
  BudgetStore:      (month, year) → allocated amount mapping
  AuditLog:         Append-only record of state-changing actions
  Store:            All of the above, the unit WithTx operates on
  TxStore:          Store plus transaction support

ADMISSION CONTROL:
  CreateApplication enforces "at most one Pending application per citizen"
  at commit time, not as a pre-check. Two same-millisecond submissions from
  one citizen must not both succeed; the loser gets ErrConflict.

GUARDED DECISIONS:
  UpdateDecision persists a transition away from Pending and fails with
  ErrConflict if the row is no longer Pending. This closes the window
  between loading an application and committing a decision.

DERIVED COMMITTED AMOUNT:
  CommittedAmount sums AmountReleased over Approved applications whose
  ApprovedAt falls in the period. It is recomputed inside the same
  transaction as the balance check - there is no stored running total to
  drift.

AUDIT:
  AppendAudit is called within the same transaction as the state change it
  records. If the audit write fails the whole decision rolls back: a
  money-moving action without a matching audit record is not an acceptable
  state.

SEE ALSO:
  - approval.go: Uses these interfaces inside WithTx
  - store/sqlite: Production implementation
  - engine/store: In-memory implementation
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// APPLICATION STORE
// =============================================================================

// ApplicationFilter narrows ListApplications.
type ApplicationFilter struct {
	CitizenID *CitizenID
	Status    *Status
	Program   *string
}

type ApplicationStore interface {
	// CreateApplication persists a new Pending application and assigns its
	// monotonic ID. Fails with ErrConflict if the citizen already has a
	// Pending application; the check is atomic with the insert.
	CreateApplication(ctx context.Context, app *Application) error

	// GetApplication returns the application or ErrApplicationNotFound.
	GetApplication(ctx context.Context, id ApplicationID) (*Application, error)

	// ListApplications returns applications matching the filter, newest first.
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]*Application, error)

	// UpdateDecision persists a transition out of Pending (approve/reject).
	// Fails with ErrConflict if the stored row is no longer Pending.
	UpdateDecision(ctx context.Context, app *Application) error

	// UpdateResubmission persists a Rejected → Pending resubmission.
	// Fails with ErrConflict if the stored row is no longer Rejected, or if
	// the citizen already holds another Pending application (a resubmission
	// re-enters admission control).
	UpdateResubmission(ctx context.Context, app *Application) error

	// CommittedAmount sums AmountReleased over Approved applications whose
	// ApprovedAt falls within the period. Always derived, never stored.
	CommittedAmount(ctx context.Context, period Period) (Amount, error)
}

// =============================================================================
// BUDGET STORE
// =============================================================================

type BudgetStore interface {
	// GetBudget returns the budget for the period, or nil if unset.
	GetBudget(ctx context.Context, period Period) (*MonthlyBudget, error)

	// SetBudget creates or replaces the allocation for the period.
	SetBudget(ctx context.Context, budget MonthlyBudget) error

	// ListBudgets returns all configured budgets, most recent period first.
	ListBudgets(ctx context.Context) ([]MonthlyBudget, error)
}

// =============================================================================
// AUDIT LOG - Append-only, never updated or deleted
// =============================================================================

type AuditAction string

const (
	AuditSubmitted   AuditAction = "submitted"
	AuditResubmitted AuditAction = "resubmitted"
	AuditApproved    AuditAction = "approved"
	AuditRejected    AuditAction = "rejected"
	AuditBudgetSet   AuditAction = "budget_set"
)

// AuditEntry records who did what, when, and from where. Created
// synchronously within the same action that causes the state change it
// records; never created speculatively.
type AuditEntry struct {
	ID            string
	ActorID       string
	ActorRole     ActorRole
	Action        AuditAction
	ApplicationID ApplicationID // zero for non-application actions (budget_set)
	Details       string
	Origin        string // network origin of the request
	CreatedAt     time.Time
}

type AuditFilter struct {
	ApplicationID *ApplicationID
	ActorID       *string
	Actions       []AuditAction
	From          *time.Time
	To            *time.Time
}

type AuditLog interface {
	// AppendAudit persists an entry. Append-only: no update, no delete.
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// QueryAudit returns entries matching the filter, oldest first.
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// STORE - The unit a decision transaction operates on
// =============================================================================

type Store interface {
	ApplicationStore
	BudgetStore
	AuditLog
}

// TxStore wraps Store with transaction support. WithTx is the serialization
// boundary for decisions: the committed-amount read and the status write for
// an approval happen inside one call, serialized against concurrent callers.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
