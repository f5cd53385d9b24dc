package world

import (
	"errors"

	"github.com/realmrelay/server/internal/component"
)

// ErrAlreadyBound is returned when either side of a binding is already
// mapped to a different counterpart.
var ErrAlreadyBound = errors.New("already bound")

// Bindings is the two-way mapping between connections and player identities.
// Both maps change together. Game loop only.
type Bindings struct {
	byConn   map[uint64]string
	byPlayer map[string]uint64
}

func NewBindings() *Bindings {
	return &Bindings{
		byConn:   make(map[uint64]string),
		byPlayer: make(map[string]uint64),
	}
}

// Bind links a connection to a player. Rebinding the same pair is a no-op.
func (b *Bindings) Bind(connID uint64, playerID string) error {
	if pid, ok := b.byConn[connID]; ok {
		if pid == playerID {
			return nil
		}
		return ErrAlreadyBound
	}
	if _, ok := b.byPlayer[playerID]; ok {
		return ErrAlreadyBound
	}
	b.byConn[connID] = playerID
	b.byPlayer[playerID] = connID
	return nil
}

// Authorize reports whether connID is bound to exactly claimedID.
func (b *Bindings) Authorize(connID uint64, claimedID string) bool {
	pid, ok := b.byConn[connID]
	return ok && claimedID != "" && pid == claimedID
}

// Unbind removes both directions for the connection and returns what was removed.
func (b *Bindings) Unbind(connID uint64) (component.SessionRef, bool) {
	pid, ok := b.byConn[connID]
	if !ok {
		return component.SessionRef{}, false
	}
	delete(b.byConn, connID)
	if b.byPlayer[pid] == connID {
		delete(b.byPlayer, pid)
	}
	return component.SessionRef{SessionID: connID, PlayerID: pid}, true
}

// PlayerFor returns the player bound to the connection.
func (b *Bindings) PlayerFor(connID uint64) (string, bool) {
	pid, ok := b.byConn[connID]
	return pid, ok
}

// SessionFor returns the connection bound to the player.
func (b *Bindings) SessionFor(playerID string) (uint64, bool) {
	id, ok := b.byPlayer[playerID]
	return id, ok
}

func (b *Bindings) Len() int {
	return len(b.byConn)
}
