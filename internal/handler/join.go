package handler

import (
	"errors"
	"math"
	"strings"

	"github.com/realmrelay/server/internal/component"
	"github.com/realmrelay/server/internal/core/event"
	"github.com/realmrelay/server/internal/data"
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"github.com/realmrelay/server/internal/world"
	"go.uber.org/zap"
)

const maxPlayerIDLen = 64

// HandleJoin processes player-join: binds the connection to the claimed
// identity, registers the character, and announces it.
func HandleJoin(sess *net.Session, m message.PlayerJoin, deps *Deps) {
	if bound, ok := deps.World.Bindings.PlayerFor(sess.ID); ok {
		sess.Log().Warn("join from bound connection",
			zap.String("player", bound),
			zap.String("claimed", m.Player.Character.ID),
		)
		SendError(sess, "player already joined", deps)
		return
	}

	state := m.Player
	id := strings.TrimSpace(state.Character.ID)
	if id == "" || len(id) > maxPlayerIDLen {
		deps.Metrics.Malformed.Add(1)
		SendError(sess, "invalid player data", deps)
		return
	}
	state.Character.ID = id

	class := deps.Classes.Resolve(state.Character.Class)
	if class == nil {
		sess.Log().Debug("join with unknown class", zap.String("class", string(state.Character.Class)))
		SendError(sess, "unknown class", deps)
		return
	}
	normalizeJoin(&state, class, deps.Config.World.Bound)

	if err := deps.World.Bindings.Bind(sess.ID, id); err != nil {
		if errors.Is(err, world.ErrAlreadyBound) {
			sess.Log().Warn("rejected duplicate join", zap.String("player", id))
			SendError(sess, "player already joined", deps)
			return
		}
		SendError(sess, "join failed", deps)
		return
	}

	now := deps.CurrentTime()
	ws := deps.World
	ws.Players.AddPlayer(state, now)
	if ws.ClaimHost(id) {
		sess.Log().Info("player is now the host", zap.String("player", id))
		event.Emit(deps.Bus, event.HostChanged{HostID: id})
	}
	sess.SetState(message.StateInWorld)

	BroadcastAll(hostUpdate(ws.Host()), 0, deps)

	for _, p := range ws.Players.Players() {
		if p.Character.ID == id {
			continue
		}
		SendMessage(sess, message.PlayerJoin{Player: p.PlayerState}, deps)
	}
	BroadcastAll(message.PlayerJoin{Player: state}, sess.ID, deps)

	event.Emit(deps.Bus, event.PlayerJoined{
		PlayerID:  id,
		SessionID: sess.ID,
		Name:      state.Character.Name,
		Class:     string(state.Character.Class),
	})
	sess.Log().Info("player joined",
		zap.String("player", id),
		zap.String("name", state.Character.Name),
		zap.String("class", string(state.Character.Class)),
		zap.Int("players", ws.Players.Len()),
	)
}

// normalizeJoin brings a client snapshot within the server's invariants.
func normalizeJoin(state *component.PlayerState, class *data.ClassEntry, bound float64) {
	c := &state.Character
	c.Name = sanitizeName(c.Name)
	if c.Name == "" {
		c.Name = c.ID
	}
	c.Class = component.Class(class.Name)

	defaults := class.Stats()
	if c.Stats == (component.Stats{}) {
		c.Stats = defaults
	}
	s := &c.Stats
	for _, f := range []*float64{&s.Health, &s.MaxHealth, &s.Mana, &s.MaxMana, &s.Strength, &s.Intelligence, &s.Dexterity, &s.Level, &s.Experience} {
		if math.IsNaN(*f) || *f < 0 {
			*f = 0
		}
	}
	if s.MaxHealth == 0 {
		s.MaxHealth = defaults.MaxHealth
	}
	if s.MaxMana == 0 {
		s.MaxMana = defaults.MaxMana
	}
	if s.Level == 0 {
		s.Level = defaults.Level
	}
	s.Health = math.Min(s.Health, s.MaxHealth)
	s.Mana = math.Min(s.Mana, s.MaxMana)

	if _, ok := message.VecOf(c.Position).Within(bound); !ok {
		c.Position = component.Position{}
	}
	if math.IsNaN(c.Rotation) || math.IsInf(c.Rotation, 0) {
		c.Rotation = 0
	}
	state.IsAttacking = false
	c.Attacking = false
	if state.Inventory.Items == nil {
		state.Inventory.Items = []component.Item{}
	}
}
