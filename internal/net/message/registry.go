package message

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateConnected     SessionState = iota // anonymous, no player bound
	StateInWorld                           // bound to a player identity
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ErrNotAllowed is returned when a kind arrives in a state that may not send it.
var ErrNotAllowed = errors.New("message not allowed in session state")

// HandlerFunc is the callback signature for message handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, msg Message)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps kinds to handlers with state-based access control.
type Registry struct {
	handlers map[Kind]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[Kind]*handlerEntry),
		log:      log,
	}
}

// Register maps a kind to a handler, restricted to the given session states.
func (reg *Registry) Register(kind Kind, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[kind] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Missing returns the inbound kinds that have no handler.
func (reg *Registry) Missing() []Kind {
	var out []Kind
	for _, k := range InboundKinds {
		if _, ok := reg.handlers[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Dispatch decodes one frame, validates the session state, and calls the
// handler. Unknown kinds and kinds without a handler are ignored and return
// ErrUnknownKind; callers treat that as a non-event.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		return err
	}
	kind := msg.Kind()
	reg.log.Debug("received message",
		zap.String("kind", string(kind)),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[kind]
	if !ok {
		return fmt.Errorf("%w: no handler for %q", ErrUnknownKind, kind)
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("message not allowed in this state",
			zap.String("kind", string(kind)),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("%w: %s in %s", ErrNotAllowed, kind, state)
	}

	return reg.safeCall(entry.fn, sess, msg)
}

// safeCall executes a handler with panic recovery to prevent a single
// bad message from crashing the entire game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("kind", string(msg.Kind())),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s: %v", msg.Kind(), rec)
		}
	}()
	fn(sess, msg)
	return nil
}
