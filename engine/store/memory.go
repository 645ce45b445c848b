// Package store provides an in-memory TxStore implementation (for
// testing/dev). The SQLite-backed production store lives in store/sqlite.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/aid-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.Mutex

	nextID       engine.ApplicationID
	applications map[engine.ApplicationID]*engine.Application
	budgets      map[engine.Period]engine.MonthlyBudget
	audit        []engine.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		nextID:       1,
		applications: make(map[engine.ApplicationID]*engine.Application),
		budgets:      make(map[engine.Period]engine.MonthlyBudget),
	}
}

// =============================================================================
// APPLICATION STORE
// =============================================================================

func (m *Memory) CreateApplication(ctx context.Context, app *engine.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(app)
}

func (m *Memory) createLocked(app *engine.Application) error {
	// Admission control under the lock: the check and the insert are atomic.
	for _, existing := range m.applications {
		if existing.CitizenID == app.CitizenID && existing.Status == engine.StatusPending {
			return &engine.ConflictError{
				CitizenID: app.CitizenID,
				Detail:    "citizen already has a pending application",
			}
		}
	}

	app.ID = m.nextID
	m.nextID++
	m.applications[app.ID] = cloneApplication(app)
	return nil
}

func (m *Memory) GetApplication(ctx context.Context, id engine.ApplicationID) (*engine.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id engine.ApplicationID) (*engine.Application, error) {
	app, ok := m.applications[id]
	if !ok {
		return nil, engine.ErrApplicationNotFound
	}
	return cloneApplication(app), nil
}

func (m *Memory) ListApplications(ctx context.Context, filter engine.ApplicationFilter) ([]*engine.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*engine.Application
	for _, app := range m.applications {
		if filter.CitizenID != nil && app.CitizenID != *filter.CitizenID {
			continue
		}
		if filter.Status != nil && app.Status != *filter.Status {
			continue
		}
		if filter.Program != nil && app.Program != *filter.Program {
			continue
		}
		result = append(result, cloneApplication(app))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *Memory) UpdateDecision(ctx context.Context, app *engine.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateGuardedLocked(app, engine.StatusPending)
}

func (m *Memory) UpdateResubmission(ctx context.Context, app *engine.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateGuardedLocked(app, engine.StatusRejected)
}

func (m *Memory) updateGuardedLocked(app *engine.Application, expect engine.Status) error {
	stored, ok := m.applications[app.ID]
	if !ok {
		return engine.ErrApplicationNotFound
	}
	if stored.Status != expect {
		return &engine.ConflictError{
			ApplicationID: app.ID,
			Detail:        "application status changed concurrently",
		}
	}
	if !app.CheckInvariant() {
		return &engine.ConflictError{
			ApplicationID: app.ID,
			Detail:        "released amount and approval date out of sync with status",
		}
	}
	// A resubmission returns the row to Pending, so it re-enters admission
	// control: the citizen must not hold another Pending application.
	if app.Status == engine.StatusPending {
		for id, other := range m.applications {
			if id != app.ID && other.CitizenID == app.CitizenID && other.Status == engine.StatusPending {
				return &engine.ConflictError{
					CitizenID:     app.CitizenID,
					ApplicationID: app.ID,
					Detail:        "citizen already has a pending application",
				}
			}
		}
	}
	m.applications[app.ID] = cloneApplication(app)
	return nil
}

func (m *Memory) CommittedAmount(ctx context.Context, period engine.Period) (engine.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committedLocked(period), nil
}

func (m *Memory) committedLocked(period engine.Period) engine.Amount {
	total := engine.ZeroAmount()
	for _, app := range m.applications {
		if app.Status != engine.StatusApproved || app.ApprovedAt == nil || app.AmountReleased == nil {
			continue
		}
		if period.Contains(*app.ApprovedAt) {
			total = total.Add(*app.AmountReleased)
		}
	}
	return total
}

// =============================================================================
// BUDGET STORE
// =============================================================================

func (m *Memory) GetBudget(ctx context.Context, period engine.Period) (*engine.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.budgets[period]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) SetBudget(ctx context.Context, budget engine.MonthlyBudget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budgets[budget.Period] = budget
	return nil
}

func (m *Memory) ListBudgets(ctx context.Context) ([]engine.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]engine.MonthlyBudget, 0, len(m.budgets))
	for _, b := range m.budgets {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.Start().After(result[j].Period.Start())
	})
	return result, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(ctx context.Context, entry engine.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(entry)
}

func (m *Memory) appendAuditLocked(entry engine.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(ctx context.Context, filter engine.AuditFilter) ([]engine.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterAudit(m.audit, filter), nil
}

func filterAudit(entries []engine.AuditEntry, filter engine.AuditFilter) []engine.AuditEntry {
	var result []engine.AuditEntry
	for _, e := range entries {
		if filter.ApplicationID != nil && e.ApplicationID != *filter.ApplicationID {
			continue
		}
		if filter.ActorID != nil && e.ActorID != *filter.ActorID {
			continue
		}
		if len(filter.Actions) > 0 && !containsAction(filter.Actions, e.Action) {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		result = append(result, e)
	}
	return result
}

func containsAction(actions []engine.AuditAction, a engine.AuditAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. The store lock is held for the
// whole call, which serializes concurrent decisions the same way the SQLite
// store's immediate transactions do. Rollback is simulated with a snapshot.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	apps := make(map[engine.ApplicationID]*engine.Application, len(tm.applications))
	for id, app := range tm.applications {
		apps[id] = cloneApplication(app)
	}
	budgets := make(map[engine.Period]engine.MonthlyBudget, len(tm.budgets))
	for p, b := range tm.budgets {
		budgets[p] = b
	}
	audit := append([]engine.AuditEntry{}, tm.audit...)
	return memorySnapshot{nextID: tm.nextID, applications: apps, budgets: budgets, audit: audit}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.nextID = s.nextID
	tm.applications = s.applications
	tm.budgets = s.budgets
	tm.audit = s.audit
}

type memorySnapshot struct {
	nextID       engine.ApplicationID
	applications map[engine.ApplicationID]*engine.Application
	budgets      map[engine.Period]engine.MonthlyBudget
	audit        []engine.AuditEntry
}

// txMemoryView routes store calls to the locked parent without re-locking.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) CreateApplication(ctx context.Context, app *engine.Application) error {
	return tv.parent.createLocked(app)
}

func (tv *txMemoryView) GetApplication(ctx context.Context, id engine.ApplicationID) (*engine.Application, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) ListApplications(ctx context.Context, filter engine.ApplicationFilter) ([]*engine.Application, error) {
	var result []*engine.Application
	for _, app := range tv.parent.applications {
		if filter.CitizenID != nil && app.CitizenID != *filter.CitizenID {
			continue
		}
		if filter.Status != nil && app.Status != *filter.Status {
			continue
		}
		if filter.Program != nil && app.Program != *filter.Program {
			continue
		}
		result = append(result, cloneApplication(app))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (tv *txMemoryView) UpdateDecision(ctx context.Context, app *engine.Application) error {
	return tv.parent.updateGuardedLocked(app, engine.StatusPending)
}

func (tv *txMemoryView) UpdateResubmission(ctx context.Context, app *engine.Application) error {
	return tv.parent.updateGuardedLocked(app, engine.StatusRejected)
}

func (tv *txMemoryView) CommittedAmount(ctx context.Context, period engine.Period) (engine.Amount, error) {
	return tv.parent.committedLocked(period), nil
}

func (tv *txMemoryView) GetBudget(ctx context.Context, period engine.Period) (*engine.MonthlyBudget, error) {
	b, ok := tv.parent.budgets[period]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (tv *txMemoryView) SetBudget(ctx context.Context, budget engine.MonthlyBudget) error {
	tv.parent.budgets[budget.Period] = budget
	return nil
}

func (tv *txMemoryView) ListBudgets(ctx context.Context) ([]engine.MonthlyBudget, error) {
	result := make([]engine.MonthlyBudget, 0, len(tv.parent.budgets))
	for _, b := range tv.parent.budgets {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.Start().After(result[j].Period.Start())
	})
	return result, nil
}

func (tv *txMemoryView) AppendAudit(ctx context.Context, entry engine.AuditEntry) error {
	return tv.parent.appendAuditLocked(entry)
}

func (tv *txMemoryView) QueryAudit(ctx context.Context, filter engine.AuditFilter) ([]engine.AuditEntry, error) {
	return filterAudit(tv.parent.audit, filter), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneApplication(app *engine.Application) *engine.Application {
	c := *app
	if app.AmountReleased != nil {
		v := *app.AmountReleased
		c.AmountReleased = &v
	}
	if app.ApprovedAt != nil {
		t := *app.ApprovedAt
		c.ApprovedAt = &t
	}
	if app.Details != nil {
		c.Details = make(map[string]string, len(app.Details))
		for k, v := range app.Details {
			c.Details[k] = v
		}
	}
	if app.DocumentRefs != nil {
		c.DocumentRefs = append([]string{}, app.DocumentRefs...)
	}
	return &c
}
