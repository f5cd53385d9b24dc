package world

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/realmrelay/server/internal/component"
)

var (
	ErrLobbyNotFound = errors.New("lobby not found")
	ErrLobbyFull     = errors.New("lobby is full")
)

// Lobby is an ephemeral named room.
type Lobby struct {
	ID           string
	Name         string
	HostName     string
	Members      map[string]struct{}
	MaxPlayers   int
	CreatedAt    time.Time
	LastActivity time.Time
}

func (l *Lobby) summary() component.LobbySummary {
	return component.LobbySummary{
		ID:          l.ID,
		Name:        l.Name,
		HostName:    l.HostName,
		PlayerCount: len(l.Members),
		MaxPlayers:  l.MaxPlayers,
		CreatedAt:   l.CreatedAt.UnixMilli(),
	}
}

// LobbyManager owns every lobby. Game loop only.
type LobbyManager struct {
	lobbies     map[string]*Lobby
	defaultMax  int
	maxCap      int
	idleTimeout time.Duration
	newID       func() string
}

func NewLobbyManager(defaultMax, maxCap int, idleTimeout time.Duration) *LobbyManager {
	return &LobbyManager{
		lobbies:     make(map[string]*Lobby),
		defaultMax:  defaultMax,
		maxCap:      maxCap,
		idleTimeout: idleTimeout,
		newID:       shortID,
	}
}

// shortID returns the first 8 hex digits of a random UUID.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SetDefaultMax changes the capacity used when a request names none.
func (m *LobbyManager) SetDefaultMax(n int) {
	m.defaultMax = m.clamp(n)
}

func (m *LobbyManager) DefaultMax() int { return m.defaultMax }

func (m *LobbyManager) clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > m.maxCap {
		return m.maxCap
	}
	return n
}

// CreateLobby creates an empty lobby. maxPlayers nil or non-positive picks
// the default capacity; anything else is clamped to [1, cap].
func (m *LobbyManager) CreateLobby(name, hostName string, maxPlayers *int, now time.Time) *Lobby {
	capacity := m.defaultMax
	if maxPlayers != nil && *maxPlayers > 0 {
		capacity = m.clamp(*maxPlayers)
	}
	id := m.newID()
	for m.lobbies[id] != nil {
		id = m.newID()
	}
	l := &Lobby{
		ID:           id,
		Name:         name,
		HostName:     hostName,
		Members:      make(map[string]struct{}),
		MaxPlayers:   capacity,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.lobbies[id] = l
	return l
}

// Join adds a member. A full or missing lobby is left unchanged.
func (m *LobbyManager) Join(lobbyID, memberID string, now time.Time) error {
	l, ok := m.lobbies[lobbyID]
	if !ok {
		return ErrLobbyNotFound
	}
	if _, in := l.Members[memberID]; in {
		l.LastActivity = now
		return nil
	}
	if len(l.Members) >= l.MaxPlayers {
		return ErrLobbyFull
	}
	l.Members[memberID] = struct{}{}
	l.LastActivity = now
	return nil
}

// Leave removes a member and deletes the lobby once empty. It reports
// whether the lobby was deleted.
func (m *LobbyManager) Leave(lobbyID, memberID string, now time.Time) (deleted bool) {
	l, ok := m.lobbies[lobbyID]
	if !ok {
		return false
	}
	delete(l.Members, memberID)
	l.LastActivity = now
	if len(l.Members) == 0 {
		delete(m.lobbies, lobbyID)
		return true
	}
	return false
}

// Get returns the live lobby, or nil.
func (m *LobbyManager) Get(lobbyID string) *Lobby {
	return m.lobbies[lobbyID]
}

// Members returns the member identities of a lobby, sorted.
func (m *LobbyManager) Members(lobbyID string) []string {
	l, ok := m.lobbies[lobbyID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(l.Members))
	for id := range l.Members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// List returns summaries of lobbies active within the idle timeout, oldest first.
func (m *LobbyManager) List(now time.Time) []component.LobbySummary {
	out := make([]component.LobbySummary, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		if now.Sub(l.LastActivity) < m.idleTimeout {
			out = append(out, l.summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Sweep deletes lobbies idle beyond the timeout and returns their IDs.
func (m *LobbyManager) Sweep(now time.Time) []string {
	var removed []string
	for id, l := range m.lobbies {
		if now.Sub(l.LastActivity) > m.idleTimeout {
			delete(m.lobbies, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

func (m *LobbyManager) Len() int {
	return len(m.lobbies)
}
