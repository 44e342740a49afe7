// Package watchdog sweeps in-flight conversations and concludes the
// ones that went idle or exceeded their total duration, so abandoned
// calls do not stay active forever.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/openclaw/a2a/pkg/conversations"
	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/notify"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// Conclusion reasons logged and sent with the owner notification.
const (
	ReasonIdleTimeout = "idle_timeout"
	ReasonMaxDuration = "max_duration"
)

// Concluder is the subset of the conversation store the watchdog uses.
type Concluder interface {
	ConcludeConversation(ctx context.Context, id string, opts conversations.ConcludeOptions) (*a2a.Conclusion, error)
	ConversationContext(ctx context.Context, id string, recentN int) (*a2a.ConversationContext, error)
}

// Options configure the watchdog. Zero durations fall back to the
// defaults (10s sweep, 60s idle, 300s max duration).
type Options struct {
	Interval     time.Duration
	IdleTimeout  time.Duration
	MaxDuration  time.Duration
	Summarizer   a2a.Summarizer
	OwnerContext string
}

type activity struct {
	start  time.Time
	last   time.Time
	caller a2a.Caller
}

// Watchdog tracks per-conversation activity and concludes stale ones.
type Watchdog struct {
	mu       sync.Mutex
	sessions map[string]*activity

	store      Concluder
	dispatcher *notify.Dispatcher
	opts       Options

	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

// New creates a Watchdog.
func New(store Concluder, dispatcher *notify.Dispatcher, opts Options) *Watchdog {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 300 * time.Second
	}
	return &Watchdog{
		sessions:   make(map[string]*activity),
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
	}
}

// Track registers activity for a conversation. The first call records
// the start time; every call refreshes last activity.
func (w *Watchdog) Track(conversationID string, caller a2a.Caller) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if a, ok := w.sessions[conversationID]; ok {
		a.last = now
		if caller.Name != "" {
			a.caller = caller
		}
		return
	}
	w.sessions[conversationID] = &activity{start: now, last: now, caller: caller}
}

// Forget drops a conversation from the activity map, e.g. after an
// explicit /end.
func (w *Watchdog) Forget(conversationID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, conversationID)
}

// Start launches the sweep loop. Calling Start on a running watchdog is
// a no-op.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()
}

// Stop cancels the sweep loop.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Sweep walks the activity map once, concluding conversations past
// their deadlines. Exposed for tests and manual runs.
func (w *Watchdog) Sweep(ctx context.Context) {
	now := w.now()

	type stale struct {
		id     string
		reason string
		caller a2a.Caller
	}
	var expired []stale

	w.mu.Lock()
	for id, a := range w.sessions {
		switch {
		case now.Sub(a.start) > w.opts.MaxDuration:
			expired = append(expired, stale{id: id, reason: ReasonMaxDuration, caller: a.caller})
		case now.Sub(a.last) > w.opts.IdleTimeout:
			expired = append(expired, stale{id: id, reason: ReasonIdleTimeout, caller: a.caller})
		}
	}
	for _, s := range expired {
		delete(w.sessions, s.id)
	}
	w.mu.Unlock()

	for _, s := range expired {
		w.conclude(ctx, s.id, s.reason, s.caller)
	}
}

func (w *Watchdog) conclude(ctx context.Context, conversationID, reason string, caller a2a.Caller) {
	log := logger.WithComponent(ctx, "watchdog").
		WithField("conversation_id", conversationID).
		WithField("event", "auto_conclude")

	conclusion, err := w.store.ConcludeConversation(ctx, conversationID, conversations.ConcludeOptions{
		Summarizer:   w.opts.Summarizer,
		OwnerContext: w.opts.OwnerContext,
	})
	if err != nil {
		log.WithError(err).
			WithField("error_code", "auto_conclude_failed").
			WithField("hint", "the conversation store rejected the conclusion; the conversation may already be gone").
			Error("failed to conclude stale conversation")
		return
	}
	log.WithField("reason", reason).Info("conversation auto-concluded")

	summary := ""
	if conclusion != nil {
		summary = conclusion.Summary
	}
	w.dispatcher.Dispatch(ctx, a2a.NotificationEvent{
		Type:           "conversation_concluded",
		ConversationID: conversationID,
		Caller:         caller,
		Summary:        summary,
		Reason:         reason,
	})
}

// Tracked reports how many conversations are currently tracked.
func (w *Watchdog) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}
