package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/aid-engine/engine"
	"github.com/warp/aid-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	decisionTime = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	march        = engine.Period{Year: 2026, Month: time.March}
	admin        = engine.Actor{ID: "adm-1", Role: engine.RoleAdmin}
)

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	opts = append([]engine.Option{
		engine.WithClock(func() time.Time { return decisionTime }),
	}, opts...)
	return engine.New(mem, opts...), mem
}

func submit(t *testing.T, eng *engine.Engine, citizenID string) *engine.Application {
	t.Helper()
	app, err := eng.Submit(context.Background(), engine.SubmitInput{
		CitizenID: engine.CitizenID(citizenID),
		Program:   "medical",
	})
	require.NoError(t, err)
	return app
}

func setBudget(t *testing.T, eng *engine.Engine, allocated string) {
	t.Helper()
	_, err := eng.SetBudget(context.Background(), march, engine.MustParseAmount(allocated), admin, "test")
	require.NoError(t, err)
}

// recordingNotifier captures dispatched events synchronously.
type recordingNotifier struct {
	mu     sync.Mutex
	events []engine.Event
}

func (r *recordingNotifier) Dispatch(event engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) Events() []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Event{}, r.events...)
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmit_CreatesPendingWithAudit(t *testing.T) {
	// GIVEN: A citizen with no applications
	// WHEN: Submitting
	// THEN: A pending application exists and a submission audit entry is written

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	app := submit(t, eng, "ctz-1")
	assert.Equal(t, engine.StatusPending, app.Status)
	assert.NotZero(t, app.ID)

	entries, err := eng.Audit(ctx, engine.AuditFilter{ApplicationID: &app.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, engine.AuditSubmitted, entries[0].Action)
	assert.Equal(t, "ctz-1", entries[0].ActorID)
}

func TestSubmit_SecondPendingRejected(t *testing.T) {
	// GIVEN: A citizen with a pending application
	// WHEN: Submitting again
	// THEN: The second submission fails with a conflict

	eng, _ := newTestEngine(t)
	submit(t, eng, "ctz-1")

	_, err := eng.Submit(context.Background(), engine.SubmitInput{
		CitizenID: "ctz-1", Program: "burial",
	})
	assert.ErrorIs(t, err, engine.ErrConflict)

	// A different citizen is unaffected.
	submit(t, eng, "ctz-2")
}

func TestSubmit_AllowedAgainAfterDecision(t *testing.T) {
	// GIVEN: A citizen whose prior application was approved
	// WHEN: Submitting a new application
	// THEN: It succeeds; only pending applications block new submissions

	eng, _ := newTestEngine(t)
	setBudget(t, eng, "10000")
	app := submit(t, eng, "ctz-1")

	_, err := eng.Approve(context.Background(), app.ID, engine.MustParseAmount("100"), admin, "test")
	require.NoError(t, err)

	submit(t, eng, "ctz-1")
}

// =============================================================================
// APPROVE DECISION TESTS
// =============================================================================

func TestApprove_HappyPath(t *testing.T) {
	// GIVEN: A pending application and a budget with room
	// WHEN: Approving for 1500.00
	// THEN: The application is approved, the budget status reflects the spend,
	//       an audit entry exists, and an approval event is dispatched

	notifier := &recordingNotifier{}
	eng, _ := newTestEngine(t, engine.WithNotifier(notifier))
	ctx := context.Background()

	setBudget(t, eng, "50000")
	app := submit(t, eng, "ctz-1")

	approved, err := eng.Approve(ctx, app.ID, engine.MustParseAmount("1500.00"), admin, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, approved.Status)
	assert.Equal(t, "1500.00", approved.AmountReleased.String())
	assert.Equal(t, decisionTime, *approved.ApprovedAt)

	status, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, "1500.00", status.Committed.String())
	assert.Equal(t, "48500.00", status.Remaining.String())

	entries, err := eng.Audit(ctx, engine.AuditFilter{
		ApplicationID: &app.ID,
		Actions:       []engine.AuditAction{engine.AuditApproved},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, admin.ID, entries[0].ActorID)
	assert.Equal(t, "10.0.0.1", entries[0].Origin)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventApproved, events[0].Type)
	assert.Equal(t, "1500.00", events[0].Amount.String())
}

func TestApprove_InsufficientFunds_ReportsExactRemaining(t *testing.T) {
	// GIVEN: A 50,000 budget with 48,000 already committed
	// WHEN: Approving a request for 3,000
	// THEN: The rejection carries the exact remaining balance of 2,000 and
	//       nothing is mutated; a 1,500 request still fits afterwards

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	setBudget(t, eng, "50000")
	prior := submit(t, eng, "ctz-0")
	_, err := eng.Approve(ctx, prior.ID, engine.MustParseAmount("48000"), admin, "test")
	require.NoError(t, err)

	app := submit(t, eng, "ctz-1")
	_, err = eng.Approve(ctx, app.ID, engine.MustParseAmount("3000"), admin, "test")

	var ife *engine.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.ErrorIs(t, err, engine.ErrInsufficientFunds)
	assert.Equal(t, "2000.00", ife.Remaining.String())
	assert.Equal(t, "3000.00", ife.Requested.String())
	assert.Equal(t, march, ife.Period)

	// The failed attempt left the application pending and the ledger untouched.
	reloaded, err := eng.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, reloaded.Status)

	status, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, "48000.00", status.Committed.String())

	// A smaller request within the remaining balance succeeds.
	_, err = eng.Approve(ctx, app.ID, engine.MustParseAmount("1500"), admin, "test")
	require.NoError(t, err)
}

func TestApprove_ExactRemainingIsAllowed(t *testing.T) {
	// Spending the budget down to exactly zero is legal; only exceeding is not.

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	setBudget(t, eng, "1000")
	app := submit(t, eng, "ctz-1")

	_, err := eng.Approve(ctx, app.ID, engine.MustParseAmount("1000"), admin, "test")
	require.NoError(t, err)

	status, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.True(t, status.Remaining.IsZero())

	// The next centavo is refused.
	next := submit(t, eng, "ctz-2")
	_, err = eng.Approve(ctx, next.ID, engine.MustParseAmount("0.01"), admin, "test")
	assert.ErrorIs(t, err, engine.ErrInsufficientFunds)
}

func TestApprove_NoBudgetConfigured(t *testing.T) {
	// GIVEN: No budget for the decision period
	// WHEN: Approving
	// THEN: The decision fails with ErrNoBudget; a zero remaining balance is
	//       not assumed

	eng, _ := newTestEngine(t)
	app := submit(t, eng, "ctz-1")

	_, err := eng.Approve(context.Background(), app.ID, engine.MustParseAmount("1"), admin, "test")
	assert.ErrorIs(t, err, engine.ErrNoBudget)
}

func TestApprove_UnknownApplication(t *testing.T) {
	eng, _ := newTestEngine(t)
	setBudget(t, eng, "1000")

	_, err := eng.Approve(context.Background(), 9999, engine.MustParseAmount("1"), admin, "test")
	assert.ErrorIs(t, err, engine.ErrApplicationNotFound)
}

func TestApprove_NonPositiveAmount(t *testing.T) {
	eng, _ := newTestEngine(t)
	setBudget(t, eng, "1000")
	app := submit(t, eng, "ctz-1")

	for _, raw := range []string{"0", "-5"} {
		_, err := eng.Approve(context.Background(), app.ID, engine.MustParseAmount(raw), admin, "test")
		assert.ErrorIs(t, err, engine.ErrInvalidAmount, "amount %s", raw)
	}
}

func TestApprove_AlreadyDecided(t *testing.T) {
	// GIVEN: An application already approved
	// WHEN: Deciding it again (approve or reject)
	// THEN: Both fail loudly with ErrInvalidState

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	setBudget(t, eng, "10000")
	app := submit(t, eng, "ctz-1")

	_, err := eng.Approve(ctx, app.ID, engine.MustParseAmount("100"), admin, "test")
	require.NoError(t, err)

	_, err = eng.Approve(ctx, app.ID, engine.MustParseAmount("100"), admin, "test")
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = eng.Reject(ctx, app.ID, "late", admin, "test")
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	// No double disbursement: committed is still one approval's worth.
	status, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, "100.00", status.Committed.String())
}

func TestApprove_PeriodResolvedAtDecisionTime(t *testing.T) {
	// GIVEN: An application submitted in March
	// WHEN: The clock has moved to April at decision time
	// THEN: The approval debits the April budget, not March's

	clock := decisionTime
	eng, _ := newTestEngine(t, engine.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	setBudget(t, eng, "5000")
	app := submit(t, eng, "ctz-1")

	april := march.Next()
	_, err := eng.SetBudget(ctx, april, engine.MustParseAmount("300"), admin, "test")
	require.NoError(t, err)

	clock = time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	_, err = eng.Approve(ctx, app.ID, engine.MustParseAmount("250"), admin, "test")
	require.NoError(t, err)

	aprilStatus, err := eng.BudgetStatus(ctx, april)
	require.NoError(t, err)
	assert.Equal(t, "250.00", aprilStatus.Committed.String())

	marchStatus, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.True(t, marchStatus.Committed.IsZero())
}

// =============================================================================
// NO-OVERSPEND UNDER CONCURRENCY
// =============================================================================

func TestApprove_ConcurrentApprovals_NeverOverspend(t *testing.T) {
	// GIVEN: A 1,000 budget and 20 pending applications of 100 each
	// WHEN: All 20 are approved concurrently
	// THEN: Exactly 10 succeed, the rest fail with InsufficientFunds, and the
	//       committed sum equals the allocation exactly

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	setBudget(t, eng, "1000")

	const n = 20
	ids := make([]engine.ApplicationID, n)
	for i := 0; i < n; i++ {
		ids[i] = submit(t, eng, fmt.Sprintf("ctz-%d", i)).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Approve(ctx, ids[i], engine.MustParseAmount("100"), admin, "test")
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, engine.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, insufficient)

	status, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", status.Committed.String())
	assert.True(t, status.Remaining.IsZero())
}

// =============================================================================
// REJECT AND RESUBMIT TESTS
// =============================================================================

func TestReject_RecordsReasonAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	eng, _ := newTestEngine(t, engine.WithNotifier(notifier))
	ctx := context.Background()
	app := submit(t, eng, "ctz-1")

	rejected, err := eng.Reject(ctx, app.ID, "missing medical abstract", admin, "test")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, rejected.Status)
	assert.Equal(t, "missing medical abstract", rejected.Remarks)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, engine.EventRejected, events[0].Type)
	assert.Equal(t, "missing medical abstract", events[0].Reason)
}

func TestReject_RequiresReason(t *testing.T) {
	eng, _ := newTestEngine(t)
	app := submit(t, eng, "ctz-1")

	_, err := eng.Reject(context.Background(), app.ID, "", admin, "test")
	assert.Error(t, err)

	reloaded, err := eng.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, reloaded.Status)
}

func TestResubmit_ReturnsToPendingWithAudit(t *testing.T) {
	// GIVEN: A rejected application
	// WHEN: The citizen resubmits with new documents
	// THEN: The same application is pending again, remarks cleared, and the
	//       resubmission is audited

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	app := submit(t, eng, "ctz-1")

	_, err := eng.Reject(ctx, app.ID, "blurry ID scan", admin, "test")
	require.NoError(t, err)

	resubmitted, err := eng.Resubmit(ctx, app.ID, engine.ResubmitInput{
		DocumentRefs: []string{"doc-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, app.ID, resubmitted.ID, "resubmission reuses the application")
	assert.Equal(t, engine.StatusPending, resubmitted.Status)
	assert.Empty(t, resubmitted.Remarks)

	entries, err := eng.Audit(ctx, engine.AuditFilter{
		ApplicationID: &app.ID,
		Actions:       []engine.AuditAction{engine.AuditResubmitted},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, engine.RoleCitizen, entries[0].ActorRole)
}

func TestResubmit_BlockedWhileAnotherPendingExists(t *testing.T) {
	// GIVEN: A citizen with a rejected application A and a newer pending
	//        application B
	// WHEN: Resubmitting A
	// THEN: The resubmission is refused; returning A to pending would give
	//       the citizen two pending applications

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := submit(t, eng, "ctz-1")
	_, err := eng.Reject(ctx, a.ID, "incomplete", admin, "test")
	require.NoError(t, err)

	submit(t, eng, "ctz-1") // allowed: A is no longer pending

	_, err = eng.Resubmit(ctx, a.ID, engine.ResubmitInput{})
	assert.ErrorIs(t, err, engine.ErrConflict)

	// A stays rejected and the citizen still holds exactly one pending
	// application.
	reloaded, err := eng.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, reloaded.Status)

	cid := engine.CitizenID("ctz-1")
	pending := engine.StatusPending
	apps, err := eng.List(ctx, engine.ApplicationFilter{CitizenID: &cid, Status: &pending})
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestResubmit_OnlyFromRejected(t *testing.T) {
	eng, _ := newTestEngine(t)
	app := submit(t, eng, "ctz-1")

	_, err := eng.Resubmit(context.Background(), app.ID, engine.ResubmitInput{})
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

// =============================================================================
// BUDGET ADMINISTRATION TESTS
// =============================================================================

func TestSetBudget_AmendInPlaceIsAudited(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	setBudget(t, eng, "1000")
	setBudget(t, eng, "2500")

	status, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, "2500.00", status.Allocated.String())

	entries, err := eng.Audit(ctx, engine.AuditFilter{
		Actions: []engine.AuditAction{engine.AuditBudgetSet},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "every amendment leaves an audit entry")
}

func TestSetBudget_LoweringBelowCommittedBlocksFutureApprovals(t *testing.T) {
	// Lowering a budget under the committed sum is allowed; existing
	// approvals stand, new ones are refused.

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	setBudget(t, eng, "1000")
	app := submit(t, eng, "ctz-1")
	_, err := eng.Approve(ctx, app.ID, engine.MustParseAmount("800"), admin, "test")
	require.NoError(t, err)

	setBudget(t, eng, "500")

	status, err := eng.BudgetStatus(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, "-300.00", status.Remaining.String())

	next := submit(t, eng, "ctz-2")
	_, err = eng.Approve(ctx, next.ID, engine.MustParseAmount("1"), admin, "test")
	assert.ErrorIs(t, err, engine.ErrInsufficientFunds)
}

func TestSetBudget_RejectsNegativeAndInvalidPeriod(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.SetBudget(ctx, march, engine.MustParseAmount("-1"), admin, "test")
	assert.ErrorIs(t, err, engine.ErrInvalidAmount)

	_, err = eng.SetBudget(ctx, engine.Period{Year: 2026, Month: 13}, engine.MustParseAmount("1"), admin, "test")
	assert.Error(t, err)
}

func TestBudgetStatus_NoBudget(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.BudgetStatus(context.Background(), march)
	assert.ErrorIs(t, err, engine.ErrNoBudget)
}

// =============================================================================
// AUDIT COUPLING AND NOTIFICATION DECOUPLING
// =============================================================================

// failingAuditStore makes every audit append fail, to prove decisions roll
// back with their audit entries.
type failingAuditStore struct {
	*store.TxMemory
}

func (f *failingAuditStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(s engine.Store) error {
		return fn(&failingAuditView{Store: s})
	})
}

type failingAuditView struct {
	engine.Store
}

func (v *failingAuditView) AppendAudit(ctx context.Context, entry engine.AuditEntry) error {
	return errors.New("audit log unavailable")
}

func TestApprove_AuditFailureAbortsDecision(t *testing.T) {
	// GIVEN: A store whose audit log cannot be written
	// WHEN: Approving
	// THEN: The decision fails, the application stays pending, and no amount
	//       is committed

	mem := store.NewTxMemory()
	failing := &failingAuditStore{TxMemory: mem}
	notifier := &recordingNotifier{}
	eng := engine.New(failing,
		engine.WithClock(func() time.Time { return decisionTime }),
		engine.WithNotifier(notifier),
	)
	ctx := context.Background()

	// Seed through the raw store so setup does not hit the failing audit path.
	require.NoError(t, mem.SetBudget(ctx, engine.MonthlyBudget{
		Period: march, Allocated: engine.MustParseAmount("1000"), UpdatedAt: decisionTime,
	}))
	app := engine.NewApplication("ctz-1", "medical", nil, nil, decisionTime)
	require.NoError(t, mem.CreateApplication(ctx, app))

	_, err := eng.Approve(ctx, app.ID, engine.MustParseAmount("100"), admin, "test")
	require.Error(t, err)

	reloaded, err := mem.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, reloaded.Status, "audit failure must roll back the decision")

	committed, err := mem.CommittedAmount(ctx, march)
	require.NoError(t, err)
	assert.True(t, committed.IsZero())

	assert.Empty(t, notifier.Events(), "no notification for an aborted decision")
}
