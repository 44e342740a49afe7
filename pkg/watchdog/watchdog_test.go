package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/a2a/pkg/conversations"
	"github.com/openclaw/a2a/pkg/notify"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// fakeConcluder records conclude calls.
type fakeConcluder struct {
	mu        sync.Mutex
	concluded []string
	err       error
}

func (f *fakeConcluder) ConcludeConversation(ctx context.Context, id string, opts conversations.ConcludeOptions) (*a2a.Conclusion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.concluded = append(f.concluded, id)
	return &a2a.Conclusion{Summary: "swept"}, nil
}

func (f *fakeConcluder) ConversationContext(ctx context.Context, id string, recentN int) (*a2a.ConversationContext, error) {
	return &a2a.ConversationContext{ID: id}, nil
}

func (f *fakeConcluder) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.concluded...)
}

// collectingNotifier records dispatched events.
type collectingNotifier struct {
	mu     sync.Mutex
	events []a2a.NotificationEvent
}

func (c *collectingNotifier) Notify(ctx context.Context, event a2a.NotificationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *collectingNotifier) wait(t *testing.T, n int) []a2a.NotificationEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		count := len(c.events)
		events := append([]a2a.NotificationEvent{}, c.events...)
		c.mu.Unlock()
		if count >= n {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d notification(s), got %d", n, count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestWatchdog(store Concluder, notifier a2a.OwnerNotifier, opts Options) (*Watchdog, *time.Time) {
	w := New(store, notify.NewDispatcher(notifier), opts)
	clock := time.Now()
	w.now = func() time.Time { return clock }
	return w, &clock
}

func TestSweepConcludesIdleConversations(t *testing.T) {
	store := &fakeConcluder{}
	notifier := &collectingNotifier{}
	w, clock := newTestWatchdog(store, notifier, Options{
		IdleTimeout: time.Minute,
		MaxDuration: time.Hour,
	})

	w.Track("conv_idle", a2a.Caller{Name: "peer"})
	w.Track("conv_busy", a2a.Caller{})

	*clock = clock.Add(2 * time.Minute)
	w.Track("conv_busy", a2a.Caller{})

	w.Sweep(context.Background())

	assert.Equal(t, []string{"conv_idle"}, store.ids())
	assert.Equal(t, 1, w.Tracked())

	events := notifier.wait(t, 1)
	assert.Equal(t, "conversation_concluded", events[0].Type)
	assert.Equal(t, "conv_idle", events[0].ConversationID)
	assert.Equal(t, ReasonIdleTimeout, events[0].Reason)
	assert.Equal(t, "swept", events[0].Summary)
	assert.Equal(t, "peer", events[0].Caller.Name)
}

func TestSweepMaxDurationBeatsIdle(t *testing.T) {
	store := &fakeConcluder{}
	notifier := &collectingNotifier{}
	w, clock := newTestWatchdog(store, notifier, Options{
		IdleTimeout: time.Minute,
		MaxDuration: 5 * time.Minute,
	})

	// Kept active the whole time, but past its total duration cap.
	w.Track("conv_long", a2a.Caller{})
	for i := 0; i < 6; i++ {
		*clock = clock.Add(time.Minute)
		w.Track("conv_long", a2a.Caller{})
	}
	*clock = clock.Add(30 * time.Second)

	w.Sweep(context.Background())

	require.Equal(t, []string{"conv_long"}, store.ids())
	events := notifier.wait(t, 1)
	assert.Equal(t, ReasonMaxDuration, events[0].Reason)
}

func TestSweepLeavesFreshConversations(t *testing.T) {
	store := &fakeConcluder{}
	w, _ := newTestWatchdog(store, nil, Options{})

	w.Track("conv_fresh", a2a.Caller{})
	w.Sweep(context.Background())

	assert.Empty(t, store.ids())
	assert.Equal(t, 1, w.Tracked())
}

func TestForgetStopsTracking(t *testing.T) {
	store := &fakeConcluder{}
	w, clock := newTestWatchdog(store, nil, Options{IdleTimeout: time.Minute})

	w.Track("conv_ended", a2a.Caller{})
	w.Forget("conv_ended")

	*clock = clock.Add(time.Hour)
	w.Sweep(context.Background())

	assert.Empty(t, store.ids())
	assert.Equal(t, 0, w.Tracked())
}

func TestSweepDropsSessionEvenWhenConcludeFails(t *testing.T) {
	store := &fakeConcluder{err: assert.AnError}
	w, clock := newTestWatchdog(store, nil, Options{IdleTimeout: time.Minute})

	w.Track("conv_gone", a2a.Caller{})
	*clock = clock.Add(time.Hour)
	w.Sweep(context.Background())

	assert.Equal(t, 0, w.Tracked(), "a failed conclude is not retried forever")
}

func TestTrackRefreshesCallerName(t *testing.T) {
	store := &fakeConcluder{}
	notifier := &collectingNotifier{}
	w, clock := newTestWatchdog(store, notifier, Options{IdleTimeout: time.Minute})

	w.Track("conv_1", a2a.Caller{})
	w.Track("conv_1", a2a.Caller{Name: "late introduction"})

	*clock = clock.Add(time.Hour)
	w.Sweep(context.Background())

	events := notifier.wait(t, 1)
	assert.Equal(t, "late introduction", events[0].Caller.Name)
}

func TestStartStop(t *testing.T) {
	store := &fakeConcluder{}
	w := New(store, notify.NewDispatcher(nil), Options{
		Interval:    10 * time.Millisecond,
		IdleTimeout: time.Hour,
		MaxDuration: time.Hour,
	})

	ctx := context.Background()
	w.Start(ctx)
	// Starting twice is a no-op.
	w.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	w.Stop()
	// Stopping twice is safe.
	w.Stop()
}
