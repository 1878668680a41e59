package engine

import (
	"sync"
	"time"
)

// MaxSyncsPerDay is the rolling 24-hour budget of bridge refreshes.
const MaxSyncsPerDay = 24

// resetInterval is how long a quota window lasts.
const resetInterval = 24 * time.Hour

// LimiterState is the persisted, device-shareable state of the rate
// limiter. It round-trips through storage and the AMQP state messages.
type LimiterState struct {
	Remaining int       `json:"remaining"`
	LastReset time.Time `json:"last_reset"`
	LastSync  time.Time `json:"last_sync"`
}

// RateLimiter bounds how often the engine may be re-fed from the external
// bridge: 24 refreshes per rolling 24-hour window. It is safe for
// concurrent use within a process; cross-device arbitration is handled by
// merging states monotonically, never by last-write-wins.
type RateLimiter struct {
	mu    sync.Mutex
	state LimiterState
}

// NewRateLimiter starts with a full quota and a window opening at now.
func NewRateLimiter(now time.Time) *RateLimiter {
	return &RateLimiter{state: LimiterState{
		Remaining: MaxSyncsPerDay,
		LastReset: now,
	}}
}

// RestoreRateLimiter rebuilds a limiter from persisted state, clamping the
// counter into its valid range.
func RestoreRateLimiter(state LimiterState) *RateLimiter {
	if state.Remaining < 0 {
		state.Remaining = 0
	}
	if state.Remaining > MaxSyncsPerDay {
		state.Remaining = MaxSyncsPerDay
	}
	return &RateLimiter{state: state}
}

// RecordSync consumes one unit of quota, flooring at zero, and stamps the
// last successful sync time.
func (l *RateLimiter) RecordSync(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Remaining > 0 {
		l.state.Remaining--
	}
	l.state.LastSync = now
}

// CheckAndResetIfNeeded restores the full quota once the current window is
// at least 24 hours old. It reports whether a reset happened.
func (l *RateLimiter) CheckAndResetIfNeeded(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.state.LastReset) < resetInterval {
		return false
	}
	l.state.Remaining = MaxSyncsPerDay
	l.state.LastReset = now
	return true
}

// CanSync reports whether quota remains.
func (l *RateLimiter) CanSync() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Remaining > 0
}

// Remaining returns the unused quota in the current window.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Remaining
}

// TimeUntilReset is how long until the quota window rolls over, never
// negative.
func (l *RateLimiter) TimeUntilReset(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := resetInterval - now.Sub(l.state.LastReset)
	if d < 0 {
		d = 0
	}
	return d
}

// State returns a copy of the current limiter state for persistence or
// publication.
func (l *RateLimiter) State() LimiterState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Merge folds in state observed from another device. The merge is
// monotonic in quota usage so devices never under-count: it keeps the
// smaller remaining count, the earlier window start, and the latest
// successful sync.
func (l *RateLimiter) Merge(remote LimiterState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remote.Remaining >= 0 && remote.Remaining < l.state.Remaining {
		l.state.Remaining = remote.Remaining
	}
	if !remote.LastReset.IsZero() && (l.state.LastReset.IsZero() || remote.LastReset.Before(l.state.LastReset)) {
		l.state.LastReset = remote.LastReset
	}
	if remote.LastSync.After(l.state.LastSync) {
		l.state.LastSync = remote.LastSync
	}
}
