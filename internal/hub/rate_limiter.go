package hub

import (
	"sync"
	"time"
)

// Defaults for the per-user send limit
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Minute
)

// RateLimiter implements per-user fixed window rate limiting
// ARCHITECTURAL DISCOVERY: Per-user state tracking with periodic cleanup keeps
// memory bounded by the number of recently active senders
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientLimit
	now     func() time.Time
}

// clientLimit tracks one user's current window
type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit messages per window; zero values select the defaults
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientLimit),
		now:     time.Now,
	}
}

// Allow records one send for userID and reports whether it is within the limit
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	state, exists := rl.clients[userID]
	// FUNCTIONAL DISCOVERY: First message of a window is always allowed
	if !exists || now.Sub(state.windowStart) >= rl.window {
		rl.clients[userID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if state.count >= rl.limit {
		return false
	}
	state.count++
	return true
}

// Cleanup drops users idle for more than five windows
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for userID, state := range rl.clients {
		if now.Sub(state.windowStart) > 5*rl.window {
			delete(rl.clients, userID)
			removed++
		}
	}
	return removed
}

// Tracked reports how many users currently hold limiter state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
