package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limits Limits) (*Limiter, *time.Time) {
	l := New(limits)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimits())

	for i := 0; i < 10; i++ {
		result := l.Allow("tok_a")
		assert.False(t, result.Limited, "call %d should be admitted", i+1)
	}
}

func TestMinuteLimitTrips(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimits())

	for i := 0; i < 10; i++ {
		require.False(t, l.Allow("tok_a").Limited)
	}
	result := l.Allow("tok_a")

	assert.True(t, result.Limited)
	assert.Equal(t, WindowMinute, result.Window)
	assert.Equal(t, 60, result.RetryAfter)
}

func TestMinuteWindowResets(t *testing.T) {
	l, now := newTestLimiter(DefaultLimits())

	for i := 0; i < 10; i++ {
		require.False(t, l.Allow("tok_a").Limited)
	}
	require.True(t, l.Allow("tok_a").Limited)

	*now = now.Add(time.Minute)
	assert.False(t, l.Allow("tok_a").Limited)
}

func TestHourLimitOutlivesMinuteResets(t *testing.T) {
	l, now := newTestLimiter(Limits{PerMinute: 100, PerHour: 15, PerDay: 1000})

	for i := 0; i < 15; i++ {
		require.False(t, l.Allow("tok_a").Limited)
	}

	// A fresh minute does not clear the hour counter.
	*now = now.Add(time.Minute)
	result := l.Allow("tok_a")
	assert.True(t, result.Limited)
	assert.Equal(t, WindowHour, result.Window)
	assert.Equal(t, 3600, result.RetryAfter)

	*now = now.Add(time.Hour)
	assert.False(t, l.Allow("tok_a").Limited)
}

func TestDayLimit(t *testing.T) {
	l, now := newTestLimiter(Limits{PerMinute: 1000, PerHour: 1000, PerDay: 20})

	for i := 0; i < 20; i++ {
		require.False(t, l.Allow("tok_a").Limited)
	}
	result := l.Allow("tok_a")
	assert.True(t, result.Limited)
	assert.Equal(t, WindowDay, result.Window)
	assert.Equal(t, 86400, result.RetryAfter)

	*now = now.Add(24 * time.Hour)
	assert.False(t, l.Allow("tok_a").Limited)
}

func TestTokensAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(DefaultLimits())

	for i := 0; i < 10; i++ {
		require.False(t, l.Allow("tok_a").Limited)
	}
	require.True(t, l.Allow("tok_a").Limited)

	assert.False(t, l.Allow("tok_b").Limited)
}

func TestRejectionDoesNotConsume(t *testing.T) {
	l, now := newTestLimiter(Limits{PerMinute: 2, PerHour: 3, PerDay: 100})

	require.False(t, l.Allow("tok_a").Limited)
	require.False(t, l.Allow("tok_a").Limited)
	// These rejections must not count against the hour window.
	require.True(t, l.Allow("tok_a").Limited)
	require.True(t, l.Allow("tok_a").Limited)

	*now = now.Add(time.Minute)
	assert.False(t, l.Allow("tok_a").Limited)

	*now = now.Add(time.Minute)
	result := l.Allow("tok_a")
	assert.True(t, result.Limited)
	assert.Equal(t, WindowHour, result.Window)
}

func TestBackwardsClockLeapResets(t *testing.T) {
	l, now := newTestLimiter(DefaultLimits())

	for i := 0; i < 10; i++ {
		require.False(t, l.Allow("tok_a").Limited)
	}
	require.True(t, l.Allow("tok_a").Limited)

	*now = now.Add(-2 * time.Minute)
	assert.False(t, l.Allow("tok_a").Limited)
}
