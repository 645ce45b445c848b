package engine

import "time"

// =============================================================================
// NOTIFICATION EVENTS - Emitted after a decision commits
// =============================================================================

type EventType string

const (
	EventApproved EventType = "application_approved"
	EventRejected EventType = "application_rejected"
)

// Event describes a committed decision for notification fan-out. Amount is
// set for approvals, Reason for rejections.
type Event struct {
	Type          EventType
	ApplicationID ApplicationID
	CitizenID     CitizenID
	Program       string
	Amount        *Amount
	Reason        string
	At            time.Time
}

// Notifier delivers events to the application owner. Implementations are
// best-effort: failures are logged and swallowed, never surfaced to the
// decision path. The engine calls Dispatch strictly after a successful
// commit; it must return promptly and never block on channel delivery.
type Notifier interface {
	Dispatch(event Event)
}

// NopNotifier discards all events. Used when no channels are configured.
type NopNotifier struct{}

func (NopNotifier) Dispatch(Event) {}
