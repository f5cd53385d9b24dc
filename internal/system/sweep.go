package system

import (
	"time"

	"github.com/realmrelay/server/internal/core/event"
	coresys "github.com/realmrelay/server/internal/core/system"
	"github.com/realmrelay/server/internal/handler"
	"go.uber.org/zap"
)

// SweepSystem removes idle lobbies and inactive players on their own
// intervals. Phase 3 (PostUpdate).
type SweepSystem struct {
	deps *handler.Deps

	lobbyEvery  time.Duration
	playerEvery time.Duration
	lobbyAcc    time.Duration
	playerAcc   time.Duration
}

func NewSweepSystem(deps *handler.Deps) *SweepSystem {
	return &SweepSystem{
		deps:        deps,
		lobbyEvery:  deps.Config.Lobby.SweepInterval,
		playerEvery: deps.Config.Heartbeat.SweepInterval,
	}
}

func (s *SweepSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *SweepSystem) Update(dt time.Duration) {
	s.lobbyAcc += dt
	if s.lobbyAcc >= s.lobbyEvery {
		s.lobbyAcc = 0
		s.SweepLobbies()
	}
	s.playerAcc += dt
	if s.playerAcc >= s.playerEvery {
		s.playerAcc = 0
		s.SweepPlayers()
	}
}

// SweepLobbies deletes lobbies idle past the timeout. Every connection gets a
// fresh lobby list when anything was removed.
func (s *SweepSystem) SweepLobbies() int {
	deps := s.deps
	removed := deps.World.Lobbies.Sweep(deps.CurrentTime())
	for _, id := range removed {
		deps.World.ForgetLobby(id)
		event.Emit(deps.Bus, event.LobbyClosed{LobbyID: id, Idle: true})
	}
	if len(removed) > 0 {
		deps.Log.Info("idle lobbies removed", zap.Strings("lobbies", removed))
		handler.BroadcastLobbies(deps)
	}
	return len(removed)
}

// SweepPlayers evicts players with no activity within the heartbeat timeout.
// Their connections stay open.
func (s *SweepSystem) SweepPlayers() int {
	deps := s.deps
	now := deps.CurrentTime()
	timeout := deps.Config.Heartbeat.PlayerTimeout
	n := 0
	for _, id := range deps.World.Players.IDs() {
		if !deps.World.Players.IsInactive(id, timeout, now) {
			continue
		}
		if handler.EvictPlayer(id, event.LeaveInactive, deps) {
			deps.Metrics.Evictions.Add(1)
			n++
		}
	}
	return n
}
