package handler

import (
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"go.uber.org/zap"
)

func encode(m message.Message, deps *Deps) []byte {
	data, err := message.Encode(m)
	if err != nil {
		deps.Log.Error("encode failed", zap.String("kind", string(m.Kind())), zap.Error(err))
		return nil
	}
	return data
}

// SendMessage buffers one message for a single session.
func SendMessage(sess *net.Session, m message.Message, deps *Deps) {
	if data := encode(m, deps); data != nil {
		sess.Send(data)
	}
}

// SendError sends an `error` frame to a single session.
func SendError(sess *net.Session, text string, deps *Deps) {
	SendMessage(sess, message.Error{Message: text}, deps)
}

// BroadcastAll sends to every live session except skip (0 skips none).
func BroadcastAll(m message.Message, skip uint64, deps *Deps) {
	data := encode(m, deps)
	if data == nil {
		return
	}
	deps.Sessions.ForEach(func(s *net.Session) {
		if s.ID != skip && !s.IsClosed() {
			s.Send(data)
		}
	})
}

// SendToPlayers sends to the sessions bound to the given player identities.
// Identities without a live session are skipped.
func SendToPlayers(m message.Message, playerIDs []string, deps *Deps) {
	if len(playerIDs) == 0 {
		return
	}
	data := encode(m, deps)
	if data == nil {
		return
	}
	for _, pid := range playerIDs {
		connID, ok := deps.World.Bindings.SessionFor(pid)
		if !ok {
			continue
		}
		if s := deps.Sessions.Get(connID); s != nil && !s.IsClosed() {
			s.Send(data)
		}
	}
}

// hostUpdate builds the host marker frame; an empty host is sent as null.
func hostUpdate(host string) message.HostUpdate {
	if host == "" {
		return message.HostUpdate{}
	}
	return message.HostUpdate{HostID: &host}
}
