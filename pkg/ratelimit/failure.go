package ratelimit

import (
	"sync"
	"time"
)

// FailureLimiter blocks a key after repeated failures within a rolling
// window. Used to throttle user code guessing on the device verification
// endpoint: failures are recorded before the response is written, so a
// burst of concurrent wrong guesses still counts every attempt.
type FailureLimiter struct {
	maxFailures int
	window      time.Duration
	blockFor    time.Duration

	entries map[string]*failureEntry
	mu      sync.Mutex
}

type failureEntry struct {
	failures     []time.Time
	blockedUntil time.Time
}

// NewFailureLimiter creates a failure limiter.
// maxFailures: failures within window that trigger a block
// window: rolling window failures are counted over
// blockFor: how long the key stays blocked once triggered
func NewFailureLimiter(maxFailures int, window, blockFor time.Duration) *FailureLimiter {
	return &FailureLimiter{
		maxFailures: maxFailures,
		window:      window,
		blockFor:    blockFor,
		entries:     make(map[string]*failureEntry),
	}
}

// RecordFailure counts one failed attempt for the key and reports whether
// the key is now blocked.
func (fl *FailureLimiter) RecordFailure(key string) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()
	entry, exists := fl.entries[key]
	if !exists {
		entry = &failureEntry{}
		fl.entries[key] = entry
	}

	entry.failures = append(entry.failures, now)
	fl.prune(entry, now)

	if len(entry.failures) >= fl.maxFailures {
		entry.blockedUntil = now.Add(fl.blockFor)
	}
	return now.Before(entry.blockedUntil)
}

// Blocked reports whether the key is currently blocked and, if so, how
// long until it unblocks.
func (fl *FailureLimiter) Blocked(key string) (bool, time.Duration) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	entry, exists := fl.entries[key]
	if !exists {
		return false, 0
	}
	now := time.Now()
	if now.Before(entry.blockedUntil) {
		return true, entry.blockedUntil.Sub(now)
	}
	return false, 0
}

// Reset clears the failure history for a key, typically after a successful
// attempt.
func (fl *FailureLimiter) Reset(key string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	delete(fl.entries, key)
}

// prune drops failures that fell out of the rolling window.
func (fl *FailureLimiter) prune(entry *failureEntry, now time.Time) {
	cutoff := now.Add(-fl.window)
	kept := entry.failures[:0]
	for _, ts := range entry.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	entry.failures = kept
}
