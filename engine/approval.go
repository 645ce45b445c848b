/*
approval.go - Decision orchestration for aid applications

PURPOSE:
  Orchestrates the read-check-commit sequence that validates a requested
  disbursement against the remaining period budget and atomically
  transitions the application.

APPROVE DECISION FLOW:

  load application ──▶ resolve period ──▶ load budget ──▶ sum committed
        │                 (decision time)      │               │
        ▼                                      ▼               ▼
   NotFound /                              NoBudget     remaining = cap - sum
   InvalidState                                                │
                                                               ▼
                                     requested > remaining? ──▶ InsufficientFunds
                                                               │    (no mutation)
                                                               ▼
                                              guarded commit + audit (one tx)
                                                               │
                                                               ▼
                                               notify (after commit, decoupled)

SERIALIZATION:
  Every step from the committed-amount read to the status write runs inside
  store.WithTx, so two concurrent approvals against the same period cannot
  both pass the check on a stale remaining balance. The status write is
  additionally guarded (UPDATE ... only while still Pending); a guard miss
  surfaces as ErrConflict and is retried once with a fresh read before
  being returned to the caller.

NOTIFICATIONS:
  Dispatched after the transaction commits. A notification failure never
  rolls back a decision; an audit failure always does.

SEE ALSO:
  - application.go: The transitions themselves
  - store.go: WithTx contract
  - notify: Dispatcher implementation
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine coordinates application lifecycle operations against a TxStore.
type Engine struct {
	store    TxStore
	notifier Notifier
	logger   *slog.Logger

	// clock supplies decision time; tests pin it.
	clock func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the post-commit notification dispatcher.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the decision-time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: NopNotifier{},
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitInput carries the applicant data the core needs. File handling is
// external; DocumentRefs are opaque.
type SubmitInput struct {
	CitizenID    CitizenID
	Program      string
	Details      map[string]string
	DocumentRefs []string
	Origin       string
}

// Submit creates a new Pending application. Fails with ErrConflict if the
// citizen already has a Pending application; the check is re-validated at
// commit time by the store, so concurrent submissions cannot both succeed.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*Application, error) {
	if in.CitizenID == "" {
		return nil, fmt.Errorf("citizen id is required")
	}
	if in.Program == "" {
		return nil, fmt.Errorf("program is required")
	}

	now := e.clock().UTC()
	app := NewApplication(in.CitizenID, in.Program, in.Details, in.DocumentRefs, now)

	err := e.store.WithTx(ctx, func(s Store) error {
		if err := s.CreateApplication(ctx, app); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ActorID:       string(in.CitizenID),
			ActorRole:     RoleCitizen,
			Action:        AuditSubmitted,
			ApplicationID: app.ID,
			Details:       fmt.Sprintf("application submitted for program %q", in.Program),
			Origin:        in.Origin,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ResubmitInput overwrites the prior request fields and documents.
type ResubmitInput struct {
	Details      map[string]string
	DocumentRefs []string
	Origin       string
}

// Resubmit returns a Rejected application to Pending, clearing its remarks.
// The same row/id is reused; there is no separate appeal concept.
func (e *Engine) Resubmit(ctx context.Context, id ApplicationID, in ResubmitInput) (*Application, error) {
	now := e.clock().UTC()

	var app *Application
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		app, err = s.GetApplication(ctx, id)
		if err != nil {
			return err
		}
		if err := app.Resubmit(in.Details, in.DocumentRefs, now); err != nil {
			return err
		}
		if err := s.UpdateResubmission(ctx, app); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ActorID:       string(app.CitizenID),
			ActorRole:     RoleCitizen,
			Action:        AuditResubmitted,
			ApplicationID: app.ID,
			Details:       "Resubmitted",
			Origin:        in.Origin,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// =============================================================================
// APPROVE DECISION
// =============================================================================

// Approve validates the requested disbursement against the remaining budget
// for the current period and atomically transitions the application to
// Approved. On a serialization conflict the decision is retried once with a
// fresh read before the conflict is surfaced.
func (e *Engine) Approve(ctx context.Context, id ApplicationID, requested Amount, actor Actor, origin string) (*Application, error) {
	if !requested.IsPositive() {
		return nil, fmt.Errorf("%w: requested disbursement must be positive, got %s", ErrInvalidAmount, requested)
	}

	app, err := e.approveOnce(ctx, id, requested, actor, origin)
	if errors.Is(err, ErrConflict) {
		e.logger.Warn("approval conflict, retrying once",
			"application_id", id, "actor", actor.ID)
		app, err = e.approveOnce(ctx, id, requested, actor, origin)
	}
	if err != nil {
		return nil, err
	}

	e.notifier.Dispatch(Event{
		Type:          EventApproved,
		ApplicationID: app.ID,
		CitizenID:     app.CitizenID,
		Program:       app.Program,
		Amount:        app.AmountReleased,
		At:            *app.ApprovedAt,
	})
	return app, nil
}

func (e *Engine) approveOnce(ctx context.Context, id ApplicationID, requested Amount, actor Actor, origin string) (*Application, error) {
	now := e.clock().UTC()
	period := PeriodOf(now)

	var app *Application
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		app, err = s.GetApplication(ctx, id)
		if err != nil {
			return err
		}
		if app.Status != StatusPending {
			return &InvalidStateError{ApplicationID: app.ID, Status: app.Status, Attempted: "approve"}
		}

		budget, err := s.GetBudget(ctx, period)
		if err != nil {
			return err
		}
		if budget == nil {
			return fmt.Errorf("%w: %s", ErrNoBudget, period)
		}

		committed, err := s.CommittedAmount(ctx, period)
		if err != nil {
			return err
		}
		remaining := budget.Allocated.Sub(committed)
		if requested.GreaterThan(remaining) {
			return &InsufficientFundsError{Period: period, Requested: requested, Remaining: remaining}
		}

		if err := app.Approve(requested, now); err != nil {
			return err
		}
		if err := s.UpdateDecision(ctx, app); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			Action:        AuditApproved,
			ApplicationID: app.ID,
			Details:       fmt.Sprintf("approved for %s (remaining %s of %s for %s)", requested, remaining.Sub(requested), budget.Allocated, period),
			Origin:        origin,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// =============================================================================
// REJECT DECISION
// =============================================================================

// Reject transitions a Pending application to Rejected with the given
// reason. No budget interaction.
func (e *Engine) Reject(ctx context.Context, id ApplicationID, reason string, actor Actor, origin string) (*Application, error) {
	if reason == "" {
		return nil, fmt.Errorf("rejection reason is required")
	}
	now := e.clock().UTC()

	var app *Application
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		app, err = s.GetApplication(ctx, id)
		if err != nil {
			return err
		}
		if err := app.Reject(reason, now); err != nil {
			return err
		}
		if err := s.UpdateDecision(ctx, app); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ActorID:       actor.ID,
			ActorRole:     actor.Role,
			Action:        AuditRejected,
			ApplicationID: app.ID,
			Details:       fmt.Sprintf("rejected: %s", reason),
			Origin:        origin,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Dispatch(Event{
		Type:          EventRejected,
		ApplicationID: app.ID,
		CitizenID:     app.CitizenID,
		Program:       app.Program,
		Reason:        reason,
		At:            now,
	})
	return app, nil
}

// =============================================================================
// BUDGET ADMINISTRATION
// =============================================================================

// SetBudget creates or amends the allocation for a period. Amend-in-place:
// the audit trail is the only history of budget changes. Lowering a budget
// below the committed sum is allowed; it only blocks future approvals.
func (e *Engine) SetBudget(ctx context.Context, period Period, allocated Amount, actor Actor, origin string) (*MonthlyBudget, error) {
	if !period.IsValid() {
		return nil, fmt.Errorf("invalid period: %s", period)
	}
	if allocated.IsNegative() {
		return nil, fmt.Errorf("%w: budget allocation must be non-negative, got %s", ErrInvalidAmount, allocated)
	}
	now := e.clock().UTC()
	budget := MonthlyBudget{Period: period, Allocated: allocated, UpdatedAt: now}

	err := e.store.WithTx(ctx, func(s Store) error {
		if err := s.SetBudget(ctx, budget); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Action:    AuditBudgetSet,
			Details:   fmt.Sprintf("budget for %s set to %s", period, allocated),
			Origin:    origin,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// BudgetStatus returns the allocation, committed total, and remaining
// balance for a period. Read-only; returns ErrNoBudget if no allocation
// exists.
func (e *Engine) BudgetStatus(ctx context.Context, period Period) (*BudgetStatus, error) {
	budget, err := e.store.GetBudget(ctx, period)
	if err != nil {
		return nil, err
	}
	if budget == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBudget, period)
	}
	committed, err := e.store.CommittedAmount(ctx, period)
	if err != nil {
		return nil, err
	}
	return &BudgetStatus{
		Period:    period,
		Allocated: budget.Allocated,
		Committed: committed,
		Remaining: budget.Allocated.Sub(committed),
	}, nil
}

// =============================================================================
// READ SURFACE
// =============================================================================

// Get returns a single application.
func (e *Engine) Get(ctx context.Context, id ApplicationID) (*Application, error) {
	return e.store.GetApplication(ctx, id)
}

// List returns applications matching the filter.
func (e *Engine) List(ctx context.Context, filter ApplicationFilter) ([]*Application, error) {
	return e.store.ListApplications(ctx, filter)
}

// Audit returns audit entries matching the filter.
func (e *Engine) Audit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return e.store.QueryAudit(ctx, filter)
}
