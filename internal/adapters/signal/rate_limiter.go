package signal

import (
	"sync"
	"time"
)

// PinRateLimiter bounds PIN verification attempts per client address inside
// a sliding window, so a 6-digit secret cannot be brute-forced online.
type PinRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewPinRateLimiter(limit int, interval time.Duration) *PinRateLimiter {
	return &PinRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *PinRateLimiter) Allow(addr string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[addr]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[addr] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[addr] = fresh

	return true
}
