package chat

import (
	"sync"
	"time"
)

// ConnectionRateLimiter tracks connection attempts per IP within a sliding window.
type ConnectionRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string][]time.Time
}

// NewConnectionRateLimiter allows limit connections per IP per window.
// A limit of zero or less disables the check.
func NewConnectionRateLimiter(limit int, window time.Duration) *ConnectionRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &ConnectionRateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
	}
}

// CheckAndRecord returns true if the connection should be allowed, false otherwise.
func (rl *ConnectionRateLimiter) CheckAndRecord(ip string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	timestamps := rl.entries[ip]
	kept := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.entries[ip] = kept
		return false
	}

	rl.entries[ip] = append(kept, now)
	return true
}
