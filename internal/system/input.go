package system

import (
	"errors"
	"time"

	coresys "github.com/realmrelay/server/internal/core/system"
	"github.com/realmrelay/server/internal/handler"
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"go.uber.org/zap"
)

// Acceptor hands new sessions to the game loop and is told when one is gone.
type Acceptor interface {
	NewSessions() <-chan *net.Session
	NotifyDead(sessionID uint64)
}

// InputSystem drains frame queues from all sessions and dispatches them
// through the message registry. Phase 0 (Input).
type InputSystem struct {
	acceptor   Acceptor
	registry   *message.Registry
	deps       *handler.Deps
	maxPerTick int
}

func NewInputSystem(acceptor Acceptor, registry *message.Registry, deps *handler.Deps, maxPerTick int) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 32
	}
	return &InputSystem{
		acceptor:   acceptor,
		registry:   registry,
		deps:       deps,
		maxPerTick: maxPerTick,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	store := s.deps.Sessions

	// Accept new sessions
	for done := false; !done; {
		select {
		case sess := <-s.acceptor.NewSessions():
			store.Add(sess)
			s.deps.Metrics.SessionsOpened.Add(1)
		default:
			done = true
		}
	}

	for _, id := range store.IDs() {
		sess := store.Get(id)
		if sess.IsClosed() {
			handler.HandleDisconnect(sess, s.deps)
			store.Remove(id)
			s.acceptor.NotifyDead(id)
			s.deps.Metrics.SessionsClosed.Add(1)
			continue
		}

	drain:
		for i := 0; i < s.maxPerTick; i++ {
			select {
			case data := <-sess.InQueue:
				s.dispatch(sess, data)
			default:
				break drain
			}
		}
	}

	// Early flush: replies produced while dispatching reach the writer
	// goroutines before the later phases run.
	store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// dispatch runs one frame through the rate limiter and the registry.
func (s *InputSystem) dispatch(sess *net.Session, data []byte) {
	deps := s.deps
	if !deps.Limiter.Allow(sess.ID, deps.CurrentTime()) {
		deps.Metrics.RateLimited.Add(1)
		sess.Log().Warn("rate limit exceeded", zap.Int("limit", deps.Limiter.Limit()))
		handler.SendError(sess, "rate limit exceeded", deps)
		return
	}

	err := s.registry.Dispatch(sess, sess.State(), data)
	switch {
	case err == nil:
		deps.Metrics.MessagesAccepted.Add(1)
	case errors.Is(err, message.ErrUnknownKind):
		deps.Metrics.UnknownKinds.Add(1)
		sess.Log().Debug("ignored message", zap.Error(err))
	case errors.Is(err, message.ErrMalformed):
		deps.Metrics.Malformed.Add(1)
		sess.Log().Debug("malformed message", zap.Error(err))
	case errors.Is(err, message.ErrNotAllowed):
		deps.Metrics.Gated.Add(1)
	default:
		sess.Log().Error("message dispatch failed", zap.Error(err))
	}
}
