package world

import (
	"time"

	"github.com/realmrelay/server/internal/component"
)

// Player is the server-side record of one connected character.
type Player struct {
	component.PlayerState
	JoinedAt     time.Time
	LastActivity time.Time
}

// Registry stores connected players keyed by player identity.
// Accessed only from the game loop goroutine; no locks.
type Registry struct {
	players map[string]*Player
	order   []string // join order; host re-election walks it front to back
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// AddPlayer inserts or overwrites a player, stamping now as last activity.
// An overwrite keeps the first join position.
func (r *Registry) AddPlayer(state component.PlayerState, now time.Time) {
	id := state.Character.ID
	if p, ok := r.players[id]; ok {
		p.PlayerState = cloneState(state)
		p.LastActivity = now
		return
	}
	r.players[id] = &Player{
		PlayerState:  cloneState(state),
		JoinedAt:     now,
		LastActivity: now,
	}
	r.order = append(r.order, id)
}

// RemovePlayer deletes a player and reports whether it existed.
func (r *Registry) RemovePlayer(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// GetPlayer returns a snapshot of one player.
func (r *Registry) GetPlayer(id string) (Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return clonePlayer(p), true
}

// Has reports whether the identity is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.players[id]
	return ok
}

// Players returns a snapshot of every player in join order. Mutating the
// result never touches the registry.
func (r *Registry) Players() []Player {
	out := make([]Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clonePlayer(r.players[id]))
	}
	return out
}

// IDs returns player identities in join order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// First returns the earliest-joined remaining player, or "" if empty.
func (r *Registry) First() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

func (r *Registry) Len() int {
	return len(r.players)
}

// UpdatePlayer moves an existing player and refreshes its last activity.
// Unknown identities are ignored: an update racing a disconnect is harmless.
func (r *Registry) UpdatePlayer(id string, pos component.Position, rot float64, moving, attacking bool, now time.Time) bool {
	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.Character.Position = pos
	p.Character.Rotation = rot
	p.Character.Moving = moving
	p.Character.Attacking = attacking
	p.IsAttacking = attacking
	p.LastActivity = now
	return true
}

// MarkAttack records an attack time and refreshes last activity. Position
// is left alone; only updates move a player.
func (r *Registry) MarkAttack(id string, now time.Time) bool {
	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.Character.LastAttack = now.UnixMilli()
	p.LastActivity = now
	return true
}

// IsInactive reports whether the player has been silent longer than timeout.
// Unknown identities are not inactive.
func (r *Registry) IsInactive(id string, timeout time.Duration, now time.Time) bool {
	p, ok := r.players[id]
	if !ok {
		return false
	}
	return now.Sub(p.LastActivity) > timeout
}

func clonePlayer(p *Player) Player {
	cp := *p
	cp.PlayerState = cloneState(p.PlayerState)
	return cp
}

func cloneState(s component.PlayerState) component.PlayerState {
	out := s
	if s.Inventory.Items != nil {
		out.Inventory.Items = make([]component.Item, len(s.Inventory.Items))
		for i, it := range s.Inventory.Items {
			out.Inventory.Items[i] = it
			if it.Stats != nil {
				st := make(map[string]float64, len(it.Stats))
				for k, v := range it.Stats {
					st[k] = v
				}
				out.Inventory.Items[i].Stats = st
			}
		}
	}
	return out
}
