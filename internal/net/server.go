package net

import (
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP requests to WebSocket connections and creates Sessions.
// New sessions are communicated to the game loop via a channel.
type Server struct {
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	live     atomic.Int64
	newConns chan *Session
	opts     SessionOptions
	log      *zap.Logger
	closed   atomic.Bool
}

func NewServer(opts SessionOptions, backlog int, log *zap.Logger) *Server {
	if backlog <= 0 {
		backlog = 64
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients are served from arbitrary dev origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		newConns: make(chan *Session, backlog),
		opts:     opts,
		log:      log,
	}
}

// ServeHTTP accepts one connection, starts its I/O goroutines, and hands the
// session to the game loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	id := s.nextID.Add(1)
	sess := NewSession(conn, id, remoteIP(r), s.opts, s.log)
	sess.Start()

	select {
	case s.newConns <- sess:
		s.live.Add(1)
		s.log.Info("client connected", zap.Uint64("session", id), zap.String("ip", sess.IP))
	default:
		s.log.Warn("connection queue full, rejecting connection", zap.String("ip", sess.IP))
		sess.Close()
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead records that the game loop finished tearing down a session.
func (s *Server) NotifyDead(sessionID uint64) {
	s.live.Add(-1)
	s.log.Info("client disconnected", zap.Uint64("session", sessionID))
}

// Live returns the number of sessions handed to the game loop and not yet
// torn down.
func (s *Server) Live() int64 {
	return s.live.Load()
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	s.closed.Store(true)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
