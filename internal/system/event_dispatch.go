package system

import (
	"time"

	"github.com/realmrelay/server/internal/core/event"
	coresys "github.com/realmrelay/server/internal/core/system"
)

// EventDispatchSystem swaps the bus buffers and delivers the previous
// buffer's events to subscribers. Phase 1 (PreUpdate).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
