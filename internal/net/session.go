package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realmrelay/server/internal/net/message"
	"go.uber.org/zap"
)

// SessionOptions sizes the queues and sets the socket limits of a session.
type SessionOptions struct {
	InQueueSize     int
	OutQueueSize    int
	MaxMessageBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn *websocket.Conn

	state atomic.Int32 // message.SessionState stored as int32

	InQueue  chan []byte // game loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	outBuf [][]byte // buffered frames, flushed by OutputSystem (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	opts SessionOptions
	log  *zap.Logger
}

// NewSession wraps an upgraded connection. conn may be nil, in which case the
// session only buffers output; the game loop cannot tell the difference.
func NewSession(conn *websocket.Conn, id uint64, ip string, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:       id,
		conn:     conn,
		InQueue:  make(chan []byte, opts.InQueueSize),
		OutQueue: make(chan []byte, opts.OutQueueSize),
		IP:       ip,
		closeCh:  make(chan struct{}),
		opts:     opts,
		log:      log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(message.StateConnected))
	return s
}

func (s *Session) State() message.SessionState {
	return message.SessionState(s.state.Load())
}

func (s *Session) SetState(st message.SessionState) {
	s.state.Store(int32(st))
}

// Log returns the session-scoped logger.
func (s *Session) Log() *zap.Logger {
	return s.log
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	if s.conn == nil {
		return
	}
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a frame for sending. The frame is not written to the socket
// until FlushOutput is called by OutputSystem.
// Called only from the game loop goroutine, so outBuf needs no lock.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// Pending returns the number of buffered, unflushed frames.
func (s *Session) Pending() int {
	return len(s.outBuf)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow connection")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(message.StateDisconnecting)
		close(s.closeCh)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads text frames from the socket
// and pushes them onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	if s.opts.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.opts.MaxMessageBytes)
	}
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		typ, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		s.extendReadDeadline()

		// Block until InQueue has space or session closes. Blocking here only
		// stalls this client; the rate limiter runs on the game loop.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) extendReadDeadline() {
	if s.opts.ReadTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
}

// writeLoop runs in its own goroutine. It writes frames from OutQueue and
// keeps the peer's read deadline alive with pings.
func (s *Session) writeLoop() {
	defer s.Close()

	pingEvery := s.opts.ReadTimeout * 9 / 10
	if pingEvery <= 0 {
		pingEvery = 50 * time.Second
	}
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.write(websocket.TextMessage, data) {
				return
			}
		case <-ping.C:
			if !s.write(websocket.PingMessage, nil) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) write(typ int, data []byte) bool {
	if s.opts.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if err := s.conn.WriteMessage(typ, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
