package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain connection queues, dispatch messages
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: combat resolution
	PhasePostUpdate              // 3: idle/inactivity sweeps
	PhaseOutput                  // 4: flush outbound frames
	PhasePersist                 // 5: hand journal batches to the writer
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	default:
		return "unknown"
	}
}

// System is the interface every game-loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
