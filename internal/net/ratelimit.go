package net

import "time"

type rateState struct {
	count       int
	windowStart time.Time
}

// RateLimiter counts messages per connection in fixed windows that reset
// lazily on the first message after the window elapses. Game loop only.
type RateLimiter struct {
	limit  int
	window time.Duration
	state  map[uint64]*rateState
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		state:  make(map[uint64]*rateState),
	}
}

// Allow records one message from the connection and reports whether it is
// within the limit. A rejected message does not reset the window.
func (rl *RateLimiter) Allow(id uint64, now time.Time) bool {
	st, ok := rl.state[id]
	if !ok || now.Sub(st.windowStart) > rl.window {
		rl.state[id] = &rateState{count: 1, windowStart: now}
		return true
	}
	st.count++
	return st.count <= rl.limit
}

// Forget releases the connection's counter.
func (rl *RateLimiter) Forget(id uint64) {
	delete(rl.state, id)
}

func (rl *RateLimiter) Limit() int { return rl.limit }

// SetLimit changes the per-window limit; existing windows keep their counts.
func (rl *RateLimiter) SetLimit(n int) {
	if n > 0 {
		rl.limit = n
	}
}

// Tracked returns the number of connections with live rate state.
func (rl *RateLimiter) Tracked() int {
	return len(rl.state)
}
