package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// STATE MACHINE TESTS
// =============================================================================

func TestApplication_Approve_FromPending(t *testing.T) {
	// GIVEN: A pending application
	// WHEN: Approving with an amount
	// THEN: Status, released amount, and approval date move together

	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	app := NewApplication("ctz-1", "medical", nil, nil, now)

	decidedAt := now.Add(2 * time.Hour)
	err := app.Approve(MustParseAmount("1500.00"), decidedAt)
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, app.Status)
	require.NotNil(t, app.AmountReleased)
	assert.Equal(t, "1500.00", app.AmountReleased.String())
	require.NotNil(t, app.ApprovedAt)
	assert.Equal(t, decidedAt, *app.ApprovedAt)
	assert.True(t, app.CheckInvariant())
}

func TestApplication_Reject_FromPending(t *testing.T) {
	// GIVEN: A pending application
	// WHEN: Rejecting with a reason
	// THEN: Status is Rejected and the reason is recorded in Remarks

	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	app := NewApplication("ctz-1", "burial", nil, nil, now)

	err := app.Reject("missing death certificate", now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, app.Status)
	assert.Equal(t, "missing death certificate", app.Remarks)
	assert.Nil(t, app.AmountReleased)
	assert.Nil(t, app.ApprovedAt)
	assert.True(t, app.CheckInvariant())
}

func TestApplication_Resubmit_FromRejected(t *testing.T) {
	// GIVEN: A rejected application
	// WHEN: Resubmitting with updated details and documents
	// THEN: Status returns to Pending, remarks clear, fields are overwritten

	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	app := NewApplication("ctz-1", "medical",
		map[string]string{"diagnosis": "old"}, []string{"doc-1"}, now)
	require.NoError(t, app.Reject("illegible prescription", now))

	later := now.Add(24 * time.Hour)
	err := app.Resubmit(map[string]string{"diagnosis": "new"}, []string{"doc-2"}, later)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, app.Status)
	assert.Empty(t, app.Remarks, "rejection remarks must clear on resubmission")
	assert.Equal(t, "new", app.Details["diagnosis"])
	assert.Equal(t, []string{"doc-2"}, app.DocumentRefs)
	assert.Equal(t, later, app.UpdatedAt)
}

func TestApplication_Resubmit_KeepsPriorFieldsWhenOmitted(t *testing.T) {
	// GIVEN: A rejected application with details and documents
	// WHEN: Resubmitting with nil details/documents
	// THEN: The prior fields survive

	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	app := NewApplication("ctz-1", "medical",
		map[string]string{"diagnosis": "kept"}, []string{"doc-1"}, now)
	require.NoError(t, app.Reject("needs barangay endorsement", now))

	require.NoError(t, app.Resubmit(nil, nil, now.Add(time.Hour)))

	assert.Equal(t, "kept", app.Details["diagnosis"])
	assert.Equal(t, []string{"doc-1"}, app.DocumentRefs)
}

func TestApplication_IllegalTransitions(t *testing.T) {
	// GIVEN: Applications in each state
	// WHEN: Attempting transitions the state machine does not allow
	// THEN: Each fails with InvalidStateError and mutates nothing

	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	amount := MustParseAmount("500.00")

	approved := NewApplication("ctz-1", "medical", nil, nil, now)
	require.NoError(t, approved.Approve(amount, now))

	rejected := NewApplication("ctz-2", "medical", nil, nil, now)
	require.NoError(t, rejected.Reject("incomplete", now))

	pending := NewApplication("ctz-3", "medical", nil, nil, now)

	cases := []struct {
		name string
		call func() error
	}{
		{"approve approved", func() error { return approved.Approve(amount, now) }},
		{"reject approved", func() error { return approved.Reject("x", now) }},
		{"resubmit approved", func() error { return approved.Resubmit(nil, nil, now) }},
		{"approve rejected", func() error { return rejected.Approve(amount, now) }},
		{"reject rejected", func() error { return rejected.Reject("x", now) }},
		{"resubmit pending", func() error { return pending.Resubmit(nil, nil, now) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var ise *InvalidStateError
			assert.ErrorAs(t, err, &ise)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}

	// Approved stays terminal and internally consistent.
	assert.Equal(t, StatusApproved, approved.Status)
	assert.True(t, approved.CheckInvariant())
}

func TestApplication_CheckInvariant_DetectsDrift(t *testing.T) {
	// GIVEN: An application whose released amount is out of sync with status
	// WHEN: Checking the invariant
	// THEN: The drift is detected

	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	app := NewApplication("ctz-1", "medical", nil, nil, now)
	assert.True(t, app.CheckInvariant())

	amount := MustParseAmount("100.00")
	app.AmountReleased = &amount // pending with a released amount
	assert.False(t, app.CheckInvariant())

	app.AmountReleased = nil
	app.Status = StatusApproved // approved without amount or date
	assert.False(t, app.CheckInvariant())
}

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestPeriod_BoundariesAndContains(t *testing.T) {
	p := Period{Year: 2026, Month: time.March}

	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), p.End())

	assert.True(t, p.Contains(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Contains(time.Date(2026, time.March, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, p.Contains(p.End()), "period end is exclusive")
	assert.False(t, p.Contains(time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC)))
}

func TestPeriod_YearRollover(t *testing.T) {
	dec := Period{Year: 2025, Month: time.December}
	assert.Equal(t, Period{Year: 2026, Month: time.January}, dec.Next())
	assert.Equal(t, Period{Year: 2025, Month: time.November}, dec.Previous())

	jan := Period{Year: 2026, Month: time.January}
	assert.Equal(t, Period{Year: 2025, Month: time.December}, jan.Previous())
}

func TestPeriodOf_UsesUTC(t *testing.T) {
	// A local timestamp near midnight must land in the UTC month.
	manila := time.FixedZone("PST", 8*3600)
	t0 := time.Date(2026, time.April, 1, 6, 0, 0, 0, manila) // Mar 31 22:00 UTC

	assert.Equal(t, Period{Year: 2026, Month: time.March}, PeriodOf(t0))
}

// =============================================================================
// AMOUNT TESTS
// =============================================================================

func TestAmount_DecimalExactness(t *testing.T) {
	// Classic float trap: 0.1 + 0.2 must equal 0.3 exactly.
	sum := MustParseAmount("0.1").Add(MustParseAmount("0.2"))
	assert.True(t, sum.Equal(MustParseAmount("0.3")))
	assert.Equal(t, "0.30", sum.String())
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	_, err := ParseAmount("12,000.00")
	assert.Error(t, err)
	_, err = ParseAmount("")
	assert.Error(t, err)
}

func TestMustParseAmount_PanicsOnMalformedLiteral(t *testing.T) {
	assert.Panics(t, func() { MustParseAmount("1,500") })
	assert.NotPanics(t, func() { MustParseAmount("1500.00") })
}
