package metrics

import "sync/atomic"

// Relay counts what the relay did with inbound traffic. Counters are written
// by the game loop and read by HTTP handlers, hence atomics.
type Relay struct {
	MessagesAccepted atomic.Int64
	RateLimited      atomic.Int64
	Malformed        atomic.Int64
	Unauthorized     atomic.Int64
	UnknownKinds     atomic.Int64
	Gated            atomic.Int64
	AttacksResolved  atomic.Int64
	Hits             atomic.Int64
	SessionsOpened   atomic.Int64
	SessionsClosed   atomic.Int64
	Evictions        atomic.Int64
	TickCount        atomic.Int64
	TotalTickNs      atomic.Int64
}

func New() *Relay {
	return &Relay{}
}

// AddTick records one game loop tick and how long it took.
func (m *Relay) AddTick(ns int64) {
	m.TickCount.Add(1)
	m.TotalTickNs.Add(ns)
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Relay) Snapshot() map[string]any {
	tick := m.TickCount.Load()
	total := m.TotalTickNs.Load()
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"messages_accepted": m.MessagesAccepted.Load(),
		"rate_limited":      m.RateLimited.Load(),
		"malformed":         m.Malformed.Load(),
		"unauthorized":      m.Unauthorized.Load(),
		"unknown_kinds":     m.UnknownKinds.Load(),
		"gated":             m.Gated.Load(),
		"attacks_resolved":  m.AttacksResolved.Load(),
		"hits":              m.Hits.Load(),
		"sessions_opened":   m.SessionsOpened.Load(),
		"sessions_closed":   m.SessionsClosed.Load(),
		"evictions":         m.Evictions.Load(),
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
	}
}
