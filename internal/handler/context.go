package handler

import (
	"time"

	"github.com/realmrelay/server/internal/component"
	"github.com/realmrelay/server/internal/config"
	"github.com/realmrelay/server/internal/core/event"
	"github.com/realmrelay/server/internal/data"
	"github.com/realmrelay/server/internal/metrics"
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"github.com/realmrelay/server/internal/world"
	"go.uber.org/zap"
)

// AttackRequest is one validated attack handed to the combat resolver.
type AttackRequest struct {
	AttackerID string
	Position   component.Position
	Rotation   float64
}

// Combat resolves an attack to completion before returning.
type Combat interface {
	Resolve(req AttackRequest)
}

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	World    *world.State
	Sessions *net.SessionStore
	Limiter  *net.RateLimiter
	Classes  *data.ClassTable
	Combat   Combat
	Bus      *event.Bus
	Metrics  *metrics.Relay
	Now      func() time.Time
}

// CurrentTime reads the injected clock, falling back to wall time.
func (d *Deps) CurrentTime() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// RegisterAll registers all message handlers into the registry.
func RegisterAll(reg *message.Registry, deps *Deps) {
	inWorld := []message.SessionState{message.StateInWorld}
	anyLive := []message.SessionState{message.StateConnected, message.StateInWorld}

	// Join is accepted in world too so a bound connection gets an error
	// instead of a silent drop.
	reg.Register(message.KindPlayerJoin, anyLive,
		func(sess any, m message.Message) {
			HandleJoin(sess.(*net.Session), m.(message.PlayerJoin), deps)
		},
	)
	reg.Register(message.KindPlayerLeave, inWorld,
		func(sess any, m message.Message) {
			HandleLeave(sess.(*net.Session), m.(message.PlayerLeave), deps)
		},
	)
	reg.Register(message.KindPlayerUpdate, inWorld,
		func(sess any, m message.Message) {
			HandleUpdate(sess.(*net.Session), m.(message.PlayerUpdate), deps)
		},
	)
	reg.Register(message.KindAttackAction, inWorld,
		func(sess any, m message.Message) {
			HandleAttack(sess.(*net.Session), m.(message.AttackAction), deps)
		},
	)

	// Lobby control works with or without a character in the world.
	reg.Register(message.KindGetLobbies, anyLive,
		func(sess any, m message.Message) {
			HandleGetLobbies(sess.(*net.Session), deps)
		},
	)
	reg.Register(message.KindCreateLobby, anyLive,
		func(sess any, m message.Message) {
			HandleCreateLobby(sess.(*net.Session), m.(message.CreateLobby), deps)
		},
	)
	reg.Register(message.KindJoinLobby, anyLive,
		func(sess any, m message.Message) {
			HandleJoinLobby(sess.(*net.Session), m.(message.JoinLobby), deps)
		},
	)
	reg.Register(message.KindLeaveLobby, anyLive,
		func(sess any, m message.Message) {
			HandleLeaveLobby(sess.(*net.Session), m.(message.LeaveLobby), deps)
		},
	)
}
