// Package game wires the relay together: it owns all world state, runs the
// tick loop and serves the WebSocket and operator HTTP endpoints.
package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/realmrelay/server/internal/config"
	"github.com/realmrelay/server/internal/core/event"
	coresys "github.com/realmrelay/server/internal/core/system"
	"github.com/realmrelay/server/internal/data"
	"github.com/realmrelay/server/internal/handler"
	"github.com/realmrelay/server/internal/metrics"
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"github.com/realmrelay/server/internal/scripting"
	"github.com/realmrelay/server/internal/system"
	"github.com/realmrelay/server/internal/world"
	"go.uber.org/zap"
)

// ErrStopped is returned by Exec once the game loop has exited.
var ErrStopped = errors.New("game loop stopped")

// Options carries optional collaborators.
type Options struct {
	// Journal receives session journal batches. Nil disables journaling.
	Journal system.JournalSink
	// Now overrides the clock used for activity stamps and rate windows.
	Now func() time.Time
}

// Server is the single owner of world state. Everything except the socket
// goroutines and HTTP handlers runs on the goroutine that calls Run.
type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	deps    *handler.Deps
	runner  *coresys.Runner
	engine  *scripting.Engine
	net     *net.Server
	metrics *metrics.Relay
	persist *system.PersistenceSystem

	cmds chan func()
	done chan struct{}
}

func New(cfg *config.Config, log *zap.Logger, opts Options) (*Server, error) {
	classes, err := data.LoadClassTable(cfg.World.ClassTable)
	if err != nil {
		return nil, fmt.Errorf("load class table: %w", err)
	}
	engine, err := scripting.NewEngine(cfg.World.ScriptsDir, log)
	if err != nil {
		return nil, fmt.Errorf("scripting engine: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	relay := metrics.New()
	lobbies := world.NewLobbyManager(cfg.Lobby.DefaultMaxPlayers, cfg.Lobby.MaxPlayersCap, cfg.Lobby.IdleTimeout)
	deps := &handler.Deps{
		Config:   cfg,
		Log:      log,
		World:    world.NewState(lobbies),
		Sessions: net.NewSessionStore(),
		Limiter:  net.NewRateLimiter(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Window),
		Classes:  classes,
		Bus:      event.NewBus(),
		Metrics:  relay,
		Now:      now,
	}

	registry := message.NewRegistry(log)
	handler.RegisterAll(registry, deps)
	if missing := registry.Missing(); len(missing) > 0 {
		engine.Close()
		return nil, fmt.Errorf("no handler for kinds %v", missing)
	}

	netServer := net.NewServer(net.SessionOptions{
		InQueueSize:     cfg.Server.InQueueSize,
		OutQueueSize:    cfg.Server.OutQueueSize,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
	}, 0, log)

	s := &Server{
		cfg:     cfg,
		log:     log,
		deps:    deps,
		runner:  coresys.NewRunner(),
		engine:  engine,
		net:     netServer,
		metrics: relay,
		cmds:    make(chan func(), 16),
		done:    make(chan struct{}),
	}

	deps.Combat = system.NewCombatResolver(deps, engine)

	s.runner.Register(system.NewInputSystem(netServer, registry, deps, cfg.Server.MaxMessagesPerTick))
	s.runner.Register(system.NewEventDispatchSystem(deps.Bus))
	s.runner.Register(system.NewSweepSystem(deps))
	s.runner.Register(system.NewOutputSystem(deps.Sessions))
	if opts.Journal != nil {
		s.persist = system.NewPersistenceSystem(deps.Bus, opts.Journal, cfg.Database.JournalFlushInterval, now, log)
		s.runner.Register(s.persist)
	}
	return s, nil
}

// Run drives the tick loop until ctx is cancelled, then closes every
// session and hands the last journal batch to the writer.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.engine.Close()

	tick := s.cfg.Server.TickRate
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.log.Info("game loop started",
		zap.Duration("tick", tick),
		zap.Int("systems", s.runner.Len()),
	)

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			s.runner.Tick(tick)
			s.metrics.AddTick(time.Since(start).Nanoseconds())
		case fn := <-s.cmds:
			fn()
		case <-ctx.Done():
			s.shutdown()
			return nil
		}
	}
}

func (s *Server) shutdown() {
	s.net.Shutdown()
	for pending := true; pending; {
		select {
		case sess := <-s.net.NewSessions():
			s.deps.Sessions.Add(sess)
		default:
			pending = false
		}
	}
	s.deps.Sessions.ForEach(func(sess *net.Session) {
		sess.Close()
	})
	// Input unwinds the closed sessions; the dispatch pass hands their
	// leave events to the journal before the final flush.
	s.runner.TickPhase(coresys.PhaseInput, 0)
	s.runner.TickPhase(coresys.PhasePreUpdate, 0)
	if s.persist != nil {
		s.persist.Flush()
	}
	s.log.Info("game loop stopped",
		zap.Int64("ticks", s.metrics.TickCount.Load()),
	)
}

// Exec runs fn on the game loop goroutine and waits for it to finish.
func (s *Server) Exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.cmds <- wrapped:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics exposes the relay counters.
func (s *Server) Metrics() *metrics.Relay { return s.metrics }

// Handler returns the HTTP routes: the WebSocket endpoint, the status route
// and, when enabled, the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.net)
	mux.HandleFunc("/api/status", s.handleStatus)
	if s.cfg.Admin.Enabled {
		mux.Handle("/admin/config", s.requireAdmin(http.HandlerFunc(s.handleAdminConfig)))
		mux.Handle("/admin/metrics", s.requireAdmin(http.HandlerFunc(s.handleAdminMetrics)))
	}
	return mux
}
