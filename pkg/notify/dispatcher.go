// Package notify dispatches owner notifications. Dispatch is
// fire-and-forget: it runs on its own goroutine with bounded retries,
// logs failures, and never blocks or fails a response path.
package notify

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// Dispatcher wraps an OwnerNotifier with retry and error containment.
// A nil notifier turns Dispatch into a no-op.
type Dispatcher struct {
	notifier a2a.OwnerNotifier
	timeout  time.Duration
	attempts uint
}

// NewDispatcher creates a Dispatcher. notifier may be nil.
func NewDispatcher(notifier a2a.OwnerNotifier) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		timeout:  30 * time.Second,
		attempts: 3,
	}
}

// Dispatch delivers the event in the background. The caller's context
// is only used for logging fields; delivery gets its own deadline so an
// already-answered request cannot cancel it.
func (d *Dispatcher) Dispatch(ctx context.Context, event a2a.NotificationEvent) {
	if d.notifier == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log := logger.WithComponent(ctx, "notify").WithField("event", event.Type)

	go func() {
		deliverCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := retry.Do(
			func() error {
				return d.notifier.Notify(deliverCtx, event)
			},
			retry.Attempts(d.attempts),
			retry.Context(deliverCtx),
			retry.Delay(time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			log.WithError(err).
				WithField("conversation_id", event.ConversationID).
				WithField("error_code", "notification_failed").
				WithField("hint", "the owner notification transport is failing; the call itself was unaffected").
				Error("owner notification failed")
		}
	}()
}
