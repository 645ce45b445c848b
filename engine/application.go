/*
application.go - Aid application entity and state machine

PURPOSE:
  Owns the lifecycle of a single aid request:

    Submit ──▶ Pending ──▶ Approved (terminal)
                  │
                  ▼
               Rejected ──▶ Pending (resubmission, same row/id)

STATE MACHINE:
  Pending  → Approved   approve decision: sets AmountReleased + ApprovedAt,
                        clears Remarks
  Pending  → Rejected   reject decision: sets Remarks to the reason
  Rejected → Pending    citizen resubmission: clears Remarks, overwrites
                        details/documents
  Approved is terminal. Disbursed funds are not retroactively revoked.

INVARIANT:
  AmountReleased is non-nil iff Status == Approved, and the same for
  ApprovedAt. The transition methods below are the only mutation path for
  these fields, so the invariant holds by construction.

SEE ALSO:
  - approval.go: Wraps transitions in the serialized decision flow
  - store.go: Persistence interfaces
*/
package engine

import (
	"time"
)

// =============================================================================
// STATUS - Closed set of lifecycle states
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsValid reports whether s is one of the three legal states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// =============================================================================
// APPLICATION - One citizen's aid request
// =============================================================================

type Application struct {
	ID        ApplicationID
	CitizenID CitizenID

	// Program identifies which assistance program the request is under.
	Program string

	// DocumentRefs are opaque references to uploaded supporting documents.
	// File storage itself is an external collaborator.
	DocumentRefs []string

	// Details holds structured applicant data the core does not interpret.
	Details map[string]string

	Status Status

	// Set only on approval, cleared never (Approved is terminal).
	AmountReleased *Amount
	ApprovedAt     *time.Time

	// Set on rejection, cleared on resubmission.
	Remarks string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewApplication creates a Pending application for a citizen. The ID is
// assigned by the store when the application is persisted.
func NewApplication(citizenID CitizenID, program string, details map[string]string, docs []string, at time.Time) *Application {
	return &Application{
		CitizenID:    citizenID,
		Program:      program,
		Details:      details,
		DocumentRefs: docs,
		Status:       StatusPending,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// CheckInvariant verifies the released-amount/approval-date coupling.
// Stores call this before persisting a mutation.
func (a *Application) CheckInvariant() bool {
	approved := a.Status == StatusApproved
	return (a.AmountReleased != nil) == approved && (a.ApprovedAt != nil) == approved
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Approve transitions Pending → Approved, recording the disbursed amount
// and the approval instant. The caller is responsible for having validated
// the amount against the period budget first.
func (a *Application) Approve(amount Amount, at time.Time) error {
	if a.Status != StatusPending {
		return &InvalidStateError{ApplicationID: a.ID, Status: a.Status, Attempted: "approve"}
	}
	a.Status = StatusApproved
	a.AmountReleased = &amount
	a.ApprovedAt = &at
	a.Remarks = ""
	a.UpdatedAt = at
	return nil
}

// Reject transitions Pending → Rejected with the reason recorded in Remarks.
func (a *Application) Reject(reason string, at time.Time) error {
	if a.Status != StatusPending {
		return &InvalidStateError{ApplicationID: a.ID, Status: a.Status, Attempted: "reject"}
	}
	a.Status = StatusRejected
	a.Remarks = reason
	a.UpdatedAt = at
	return nil
}

// Resubmit transitions Rejected → Pending, clearing the rejection remarks.
// Updated details and documents overwrite the prior ones; the application
// keeps its id.
func (a *Application) Resubmit(details map[string]string, docs []string, at time.Time) error {
	if a.Status != StatusRejected {
		return &InvalidStateError{ApplicationID: a.ID, Status: a.Status, Attempted: "resubmit"}
	}
	a.Status = StatusPending
	a.Remarks = ""
	if details != nil {
		a.Details = details
	}
	if docs != nil {
		a.DocumentRefs = docs
	}
	a.UpdatedAt = at
	return nil
}
