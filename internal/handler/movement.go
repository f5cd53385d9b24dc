package handler

import (
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"go.uber.org/zap"
)

// HandleUpdate processes player-update: validate, authorize, move, then relay
// to peers inside the broadcast radius. Invalid or unauthorized updates are
// dropped without telling the client.
func HandleUpdate(sess *net.Session, m message.PlayerUpdate, deps *Deps) {
	pos, okPos := m.Position.Within(deps.Config.World.Bound)
	rot, okRot := message.FiniteRotation(m.Rotation)
	if m.PlayerID == "" || !okPos || !okRot {
		deps.Metrics.Malformed.Add(1)
		sess.Log().Debug("invalid player update", zap.String("player", m.PlayerID))
		return
	}
	if !deps.World.Bindings.Authorize(sess.ID, m.PlayerID) {
		deps.Metrics.Unauthorized.Add(1)
		sess.Log().Warn("unauthorized player update", zap.String("claimed", m.PlayerID))
		return
	}

	if !deps.World.Players.UpdatePlayer(m.PlayerID, pos, rot, m.Moving, m.Attacking, deps.CurrentTime()) {
		return
	}

	nearby := deps.World.Players.FindNearby(m.PlayerID, pos, deps.Config.World.BroadcastRadius)
	relay := message.PlayerUpdate{
		PlayerID:  m.PlayerID,
		Position:  message.VecOf(pos),
		Rotation:  &rot,
		Moving:    m.Moving,
		Attacking: m.Attacking,
	}
	SendToPlayers(relay, nearby, deps)
}
