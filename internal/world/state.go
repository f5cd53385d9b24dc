package world

import "time"

// State is the relay's in-memory world: players, bindings, lobbies and the
// host marker. One State per server instance; game loop only.
type State struct {
	Players  *Registry
	Bindings *Bindings
	Lobbies  *LobbyManager

	host    string
	lobbyOf map[uint64]string // connection → lobby it belongs to
}

func NewState(lobbies *LobbyManager) *State {
	return &State{
		Players:  NewRegistry(),
		Bindings: NewBindings(),
		Lobbies:  lobbies,
		lobbyOf:  make(map[uint64]string),
	}
}

// Host returns the current host identity, or "" when there is none.
func (s *State) Host() string {
	return s.host
}

// ClaimHost makes id the host if no host is set.
func (s *State) ClaimHost(id string) bool {
	if s.host != "" {
		return false
	}
	s.host = id
	return true
}

// ReleaseHost re-elects the host if id held it. The new host is the
// earliest-joined player still registered, so call it after removing id.
// It reports whether the host changed.
func (s *State) ReleaseHost(id string) bool {
	if s.host == "" || s.host != id {
		return false
	}
	s.host = s.Players.First()
	return true
}

// LobbyOf returns the lobby the connection is in.
func (s *State) LobbyOf(connID uint64) (string, bool) {
	id, ok := s.lobbyOf[connID]
	return id, ok
}

func (s *State) SetLobby(connID uint64, lobbyID string) {
	s.lobbyOf[connID] = lobbyID
}

// LeaveLobby removes the connection from its lobby, if any, and returns the
// lobby ID it left.
func (s *State) LeaveLobby(connID uint64, memberID string, now time.Time) (string, bool) {
	id, ok := s.lobbyOf[connID]
	if !ok {
		return "", false
	}
	delete(s.lobbyOf, connID)
	s.Lobbies.Leave(id, memberID, now)
	return id, true
}

// ForgetLobby drops lobby membership records for a lobby that no longer exists.
func (s *State) ForgetLobby(lobbyID string) {
	for conn, id := range s.lobbyOf {
		if id == lobbyID {
			delete(s.lobbyOf, conn)
		}
	}
}
