package handler

import (
	"strconv"

	"github.com/realmrelay/server/internal/core/event"
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"go.uber.org/zap"
)

// Lobby members are connections, named by their decimal session ID.
func memberID(sess *net.Session) string {
	return strconv.FormatUint(sess.ID, 10)
}

// HandleGetLobbies answers with the lobbies still active.
func HandleGetLobbies(sess *net.Session, deps *Deps) {
	SendMessage(sess, message.Lobbies{Lobbies: deps.World.Lobbies.List(deps.CurrentTime())}, deps)
}

// HandleCreateLobby creates a lobby with the requester as its first member.
func HandleCreateLobby(sess *net.Session, m message.CreateLobby, deps *Deps) {
	hostName := sanitizeName(m.HostName)
	if hostName == "" {
		SendError(sess, "invalid lobby data", deps)
		return
	}
	now := deps.CurrentTime()
	leaveCurrentLobby(sess, deps)

	lobbies := deps.World.Lobbies
	l := lobbies.CreateLobby(sanitizeName(m.Name), hostName, m.MaxPlayers, now)
	if err := lobbies.Join(l.ID, memberID(sess), now); err != nil {
		// a fresh lobby always has room for one
		deps.Log.Error("creator could not join new lobby", zap.String("lobby", l.ID), zap.Error(err))
		return
	}
	deps.World.SetLobby(sess.ID, l.ID)

	SendMessage(sess, message.LobbyCreated{
		ID:         l.ID,
		Name:       l.Name,
		HostName:   l.HostName,
		MaxPlayers: l.MaxPlayers,
	}, deps)
	BroadcastLobbies(deps)

	event.Emit(deps.Bus, event.LobbyCreated{LobbyID: l.ID, HostName: l.HostName, MaxPlayers: l.MaxPlayers})
	sess.Log().Info("lobby created", zap.String("lobby", l.ID), zap.Int("max", l.MaxPlayers))
}

// HandleJoinLobby moves the connection into another lobby. A failed join
// leaves the current membership untouched.
func HandleJoinLobby(sess *net.Session, m message.JoinLobby, deps *Deps) {
	if m.LobbyID == "" {
		SendError(sess, "invalid lobby id", deps)
		return
	}
	ws := deps.World
	if cur, ok := ws.LobbyOf(sess.ID); ok && cur == m.LobbyID {
		SendMessage(sess, message.LobbyJoined{LobbyID: m.LobbyID}, deps)
		return
	}

	now := deps.CurrentTime()
	if err := ws.Lobbies.Join(m.LobbyID, memberID(sess), now); err != nil {
		sess.Log().Debug("lobby join refused", zap.String("lobby", m.LobbyID), zap.Error(err))
		SendError(sess, "could not join lobby: "+err.Error(), deps)
		return
	}
	leaveCurrentLobby(sess, deps)
	ws.SetLobby(sess.ID, m.LobbyID)

	SendMessage(sess, message.LobbyJoined{LobbyID: m.LobbyID}, deps)
	notifyLobbyMembers(m.LobbyID, sess.ID, message.PlayerJoinedLobby{
		LobbyID:      m.LobbyID,
		ConnectionID: memberID(sess),
	}, deps)
	BroadcastLobbies(deps)
}

// HandleLeaveLobby removes the connection from the lobby it names.
func HandleLeaveLobby(sess *net.Session, m message.LeaveLobby, deps *Deps) {
	cur, ok := deps.World.LobbyOf(sess.ID)
	if !ok || (m.LobbyID != "" && m.LobbyID != cur) {
		SendError(sess, "not in lobby", deps)
		return
	}
	leaveCurrentLobby(sess, deps)
	SendMessage(sess, message.LobbyLeft{LobbyID: cur}, deps)
	BroadcastLobbies(deps)
}

// leaveCurrentLobby drops the connection's lobby membership and reports
// whether it had one.
func leaveCurrentLobby(sess *net.Session, deps *Deps) bool {
	ws := deps.World
	id, ok := ws.LeaveLobby(sess.ID, memberID(sess), deps.CurrentTime())
	if !ok {
		return false
	}
	if ws.Lobbies.Get(id) == nil {
		event.Emit(deps.Bus, event.LobbyClosed{LobbyID: id})
		deps.Log.Debug("lobby closed", zap.String("lobby", id))
	}
	return true
}

// BroadcastLobbies pushes the current lobby list to every connection.
func BroadcastLobbies(deps *Deps) {
	BroadcastAll(message.LobbiesUpdated{Lobbies: deps.World.Lobbies.List(deps.CurrentTime())}, 0, deps)
}

func notifyLobbyMembers(lobbyID string, skip uint64, m message.Message, deps *Deps) {
	data := encode(m, deps)
	if data == nil {
		return
	}
	for _, member := range deps.World.Lobbies.Members(lobbyID) {
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil || id == skip {
			continue
		}
		if s := deps.Sessions.Get(id); s != nil && !s.IsClosed() {
			s.Send(data)
		}
	}
}
