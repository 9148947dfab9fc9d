// Package ratelimit throttles inbound chat messages per user with a
// sliding one-minute window.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// WindowDuration is the sliding window size
	WindowDuration = time.Minute
)

// Limiter implements a per-user sliding window rate limiter
type Limiter struct {
	limit   int                    // max requests per window (0 = disabled)
	windows map[string][]time.Time // userID -> timestamps of requests
	mu      sync.Mutex
}

// New creates a new rate limiter
// limit is the maximum number of requests per minute per user
// limit <= 0 means rate limiting is disabled
func New(limit int) *Limiter {
	return &Limiter{
		limit:   limit,
		windows: make(map[string][]time.Time),
	}
}

// Allow checks if a request from the given user should be allowed
// Returns true if allowed, false if rate limited
func (l *Limiter) Allow(userID string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-WindowDuration)

	// Drop timestamps outside the window
	valid := l.windows[userID][:0]
	for _, ts := range l.windows[userID] {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= l.limit {
		l.windows[userID] = valid
		return false
	}

	l.windows[userID] = append(valid, now)
	return true
}

// Remaining returns how many requests the user has left in the current window
func (l *Limiter) Remaining(userID string) int {
	if l.limit <= 0 {
		return -1 // unlimited
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-WindowDuration)

	count := 0
	for _, ts := range l.windows[userID] {
		if ts.After(cutoff) {
			count++
		}
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears all rate limit data for a user
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, userID)
}

// ResetAll clears all rate limit data
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}
