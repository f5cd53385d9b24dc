package handler

import (
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"go.uber.org/zap"
)

// HandleAttack processes attack-action.
// Validate and authorize, resolve hits, then relay to nearby peers. The
// attack is fully resolved before the next frame is dispatched.
func HandleAttack(sess *net.Session, m message.AttackAction, deps *Deps) {
	pos, okPos := m.Position.Within(deps.Config.World.Bound)
	rot, okRot := message.FiniteRotation(m.Rotation)
	if m.PlayerID == "" || !okPos || !okRot {
		deps.Metrics.Malformed.Add(1)
		sess.Log().Debug("invalid attack", zap.String("player", m.PlayerID))
		return
	}
	if !deps.World.Bindings.Authorize(sess.ID, m.PlayerID) {
		deps.Metrics.Unauthorized.Add(1)
		sess.Log().Warn("unauthorized attack", zap.String("claimed", m.PlayerID))
		return
	}

	deps.World.Players.MarkAttack(m.PlayerID, deps.CurrentTime())

	if deps.Combat != nil {
		deps.Combat.Resolve(AttackRequest{
			AttackerID: m.PlayerID,
			Position:   pos,
			Rotation:   rot,
		})
	}

	nearby := deps.World.Players.FindNearby(m.PlayerID, pos, deps.Config.World.BroadcastRadius)
	SendToPlayers(message.AttackAction{
		PlayerID: m.PlayerID,
		Position: message.VecOf(pos),
		Rotation: &rot,
	}, nearby, deps)
}
