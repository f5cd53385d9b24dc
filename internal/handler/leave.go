package handler

import (
	"github.com/realmrelay/server/internal/core/event"
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"go.uber.org/zap"
)

// HandleLeave processes player-leave. The player leaves the world but the
// connection stays open and may join again.
func HandleLeave(sess *net.Session, m message.PlayerLeave, deps *Deps) {
	if !deps.World.Bindings.Authorize(sess.ID, m.PlayerID) {
		deps.Metrics.Unauthorized.Add(1)
		sess.Log().Warn("unauthorized leave", zap.String("claimed", m.PlayerID))
		return
	}
	EvictPlayer(m.PlayerID, event.LeaveVoluntary, deps)
}

// HandleDisconnect unwinds everything a closing session owned: rate state,
// lobby membership and, if bound, its player.
func HandleDisconnect(sess *net.Session, deps *Deps) {
	deps.Limiter.Forget(sess.ID)
	if leaveCurrentLobby(sess, deps) {
		BroadcastLobbies(deps)
	}
	if pid, ok := deps.World.Bindings.PlayerFor(sess.ID); ok {
		EvictPlayer(pid, event.LeaveDisconnect, deps)
	}
}

// EvictPlayer removes a player from the world: registry record, both binding
// directions and, if it was the host, the host marker. Peers are told only
// after all of that is done. Returns false if the player was already gone.
func EvictPlayer(playerID string, reason event.LeaveReason, deps *Deps) bool {
	ws := deps.World
	connID, bound := ws.Bindings.SessionFor(playerID)
	removed := ws.Players.RemovePlayer(playerID)
	if !removed && !bound {
		return false
	}
	if bound {
		ws.Bindings.Unbind(connID)
		if s := deps.Sessions.Get(connID); s != nil && !s.IsClosed() {
			s.SetState(message.StateConnected)
		}
	}

	if ws.ReleaseHost(playerID) {
		deps.Log.Info("host re-elected",
			zap.String("previous", playerID),
			zap.String("host", ws.Host()),
		)
		BroadcastAll(hostUpdate(ws.Host()), 0, deps)
		event.Emit(deps.Bus, event.HostChanged{HostID: ws.Host()})
	}

	BroadcastAll(message.PlayerLeave{PlayerID: playerID}, 0, deps)
	event.Emit(deps.Bus, event.PlayerLeft{
		PlayerID:  playerID,
		SessionID: connID,
		Reason:    reason,
	})
	deps.Log.Info("player left",
		zap.String("player", playerID),
		zap.String("reason", string(reason)),
		zap.Int("players", ws.Players.Len()),
	)
	return true
}
