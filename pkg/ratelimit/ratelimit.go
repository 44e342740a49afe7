// Package ratelimit implements the per-token fixed-window admission
// check used by the call lifecycle endpoints. State is process-local by
// design; a restart wipes all buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Window identifies which fixed window tripped a limit.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// RetryAfter returns the operator hint for the window, in seconds.
func (w Window) RetryAfter() int {
	switch w {
	case WindowMinute:
		return 60
	case WindowHour:
		return 3600
	case WindowDay:
		return 86400
	}
	return 60
}

// Limits are the per-token admission thresholds.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// DefaultLimits returns the built-in thresholds.
func DefaultLimits() Limits {
	return Limits{PerMinute: 10, PerHour: 100, PerDay: 1000}
}

// Result is the outcome of an admission check.
type Result struct {
	Limited    bool
	Window     Window
	RetryAfter int
}

type bucket struct {
	minuteID, hourID, dayID          int64
	minuteCount, hourCount, dayCount int
}

// Limiter admits requests per token across minute, hour and day
// windows. A request is admitted iff all three counters are under their
// thresholds; admission increments all three atomically. When a window
// id changes (including backwards clock leaps) the counter resets.
type Limiter struct {
	mu      sync.Mutex
	limits  Limits
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a Limiter with the given thresholds.
func New(limits Limits) *Limiter {
	return &Limiter{
		limits:  limits,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Limits returns the configured thresholds.
func (l *Limiter) Limits() Limits {
	return l.limits
}

// Allow runs the check-and-increment for a token id. The first window
// that trips determines the Retry-After hint.
func (l *Limiter) Allow(tokenID string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().Unix()
	minuteID := now / 60
	hourID := now / 3600
	dayID := now / 86400

	b, ok := l.buckets[tokenID]
	if !ok {
		b = &bucket{}
		l.buckets[tokenID] = b
	}

	if b.minuteID != minuteID {
		b.minuteID, b.minuteCount = minuteID, 0
	}
	if b.hourID != hourID {
		b.hourID, b.hourCount = hourID, 0
	}
	if b.dayID != dayID {
		b.dayID, b.dayCount = dayID, 0
	}

	switch {
	case b.minuteCount >= l.limits.PerMinute:
		return Result{Limited: true, Window: WindowMinute, RetryAfter: WindowMinute.RetryAfter()}
	case b.hourCount >= l.limits.PerHour:
		return Result{Limited: true, Window: WindowHour, RetryAfter: WindowHour.RetryAfter()}
	case b.dayCount >= l.limits.PerDay:
		return Result{Limited: true, Window: WindowDay, RetryAfter: WindowDay.RetryAfter()}
	}

	b.minuteCount++
	b.hourCount++
	b.dayCount++
	return Result{}
}
