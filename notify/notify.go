/*
Package notify implements best-effort notification fan-out for committed
decisions.

PURPOSE:
  When a decision commits, the owner of the application is told about it on
  two independent channels: a persisted in-app notice and an external
  message (AMQP-published, consumed by the mailer). Each channel is
  attempted independently; failure of one never suppresses the other, and
  no channel failure ever reaches the decision path.

FAILURE DOMAIN:
  The dispatcher runs strictly after the decision transaction commits. It
  is fire-and-forget: every channel send happens on its own goroutine with
  a bounded timeout, errors are logged and dropped. Wait() drains in-flight
  sends; tests and shutdown use it.

SEE ALSO:
  - engine/notify.go: Event type and Notifier contract
  - amqp.go: External message channel
*/
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/aid-engine/engine"
	"github.com/warp/aid-engine/metrics"
)

// =============================================================================
// CHANNEL - One independent delivery path
// =============================================================================

type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Send delivers the event to the application owner. Honors ctx deadline.
	Send(ctx context.Context, event engine.Event) error
}

// =============================================================================
// DISPATCHER - Fan-out with isolated failure domains
// =============================================================================

type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given channels. Each send is
// bounded by timeout (default 5s).
func NewDispatcher(logger *slog.Logger, timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channels: channels, timeout: timeout, logger: logger}
}

// Dispatch fans the event out to all channels and returns immediately.
// Implements engine.Notifier.
func (d *Dispatcher) Dispatch(event engine.Event) {
	for _, ch := range d.channels {
		ch := ch
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()

			// Detached from the request context: the caller's response must
			// not wait on, or be cancelled by, notification delivery.
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := ch.Send(ctx, event); err != nil {
				metrics.NotificationFailed(ch.Name())
				d.logger.Warn("notification delivery failed",
					"channel", ch.Name(),
					"event", string(event.Type),
					"application_id", int64(event.ApplicationID),
					"error", err)
			}
		}()
	}
}

// Wait blocks until all in-flight sends complete.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// =============================================================================
// IN-APP CHANNEL - Persisted notices
// =============================================================================

// Notice is a persisted in-app notification.
type Notice struct {
	ID        string
	CitizenID engine.CitizenID
	EventType engine.EventType
	Message   string
	Read      bool
	CreatedAt time.Time
}

// NoticeStore persists notices. Implemented by store/sqlite and MemoryNotices.
type NoticeStore interface {
	SaveNotice(ctx context.Context, notice Notice) error
	ListNotices(ctx context.Context, citizenID engine.CitizenID) ([]Notice, error)
}

// InApp writes a notice row per event.
type InApp struct {
	Store NoticeStore
}

func NewInApp(store NoticeStore) *InApp {
	return &InApp{Store: store}
}

func (c *InApp) Name() string { return "in_app" }

func (c *InApp) Send(ctx context.Context, event engine.Event) error {
	return c.Store.SaveNotice(ctx, Notice{
		ID:        uuid.NewString(),
		CitizenID: event.CitizenID,
		EventType: event.Type,
		Message:   MessageFor(event),
		CreatedAt: event.At,
	})
}

// MessageFor renders the citizen-facing text for an event.
func MessageFor(event engine.Event) string {
	switch event.Type {
	case engine.EventApproved:
		return fmt.Sprintf("Your assistance application #%d has been approved. Amount released: %s.",
			event.ApplicationID, event.Amount)
	case engine.EventRejected:
		return fmt.Sprintf("Your assistance application #%d has been rejected. Reason: %s. You may update your documents and resubmit.",
			event.ApplicationID, event.Reason)
	default:
		return fmt.Sprintf("Update on your assistance application #%d.", event.ApplicationID)
	}
}

// =============================================================================
// MEMORY NOTICE STORE - For testing/dev
// =============================================================================

type MemoryNotices struct {
	mu      sync.Mutex
	notices []Notice
}

func NewMemoryNotices() *MemoryNotices {
	return &MemoryNotices{}
}

func (m *MemoryNotices) SaveNotice(ctx context.Context, notice Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, notice)
	return nil
}

func (m *MemoryNotices) ListNotices(ctx context.Context, citizenID engine.CitizenID) ([]Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Notice
	for _, n := range m.notices {
		if n.CitizenID == citizenID {
			result = append(result, n)
		}
	}
	return result, nil
}
