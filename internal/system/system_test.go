package system

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/realmrelay/server/internal/component"
	"github.com/realmrelay/server/internal/config"
	"github.com/realmrelay/server/internal/core/event"
	"github.com/realmrelay/server/internal/data"
	"github.com/realmrelay/server/internal/handler"
	"github.com/realmrelay/server/internal/metrics"
	"github.com/realmrelay/server/internal/net"
	"github.com/realmrelay/server/internal/net/message"
	"github.com/realmrelay/server/internal/persist"
	"github.com/realmrelay/server/internal/scripting"
	"github.com/realmrelay/server/internal/world"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	t      *testing.T
	deps   *handler.Deps
	combat *CombatResolver
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	classes, err := data.LoadClassTable("")
	if err != nil {
		t.Fatal(err)
	}
	log := zaptest.NewLogger(t)
	engine, err := scripting.NewEngine("", log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(engine.Close)

	cfg := config.Default()
	f := &fixture{t: t, now: time.Unix(1_700_000_000, 0)}
	f.deps = &handler.Deps{
		Config:   cfg,
		Log:      log,
		World:    world.NewState(world.NewLobbyManager(cfg.Lobby.DefaultMaxPlayers, cfg.Lobby.MaxPlayersCap, cfg.Lobby.IdleTimeout)),
		Sessions: net.NewSessionStore(),
		Limiter:  net.NewRateLimiter(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Window),
		Classes:  classes,
		Bus:      event.NewBus(),
		Metrics:  metrics.New(),
		Now:      func() time.Time { return f.now },
	}
	f.combat = NewCombatResolver(f.deps, engine)
	f.deps.Combat = f.combat
	return f
}

func (f *fixture) session(id uint64) *net.Session {
	s := net.NewSession(nil, id, "127.0.0.1", net.SessionOptions{InQueueSize: 8, OutQueueSize: 64}, f.deps.Log)
	f.deps.Sessions.Add(s)
	return s
}

// place binds a connected player at (x, z) without going through the
// join handler.
func (f *fixture) place(connID uint64, id string, class component.Class, x, z float64) *net.Session {
	f.t.Helper()
	s := f.session(connID)
	if err := f.deps.World.Bindings.Bind(connID, id); err != nil {
		f.t.Fatal(err)
	}
	f.deps.World.Players.AddPlayer(component.PlayerState{
		Character: component.Character{
			ID:       id,
			Name:     id,
			Class:    class,
			Stats:    component.Stats{Health: 100, MaxHealth: 100, Strength: 15, Level: 1},
			Position: component.Position{X: x, Z: z},
		},
	}, f.now)
	f.deps.World.ClaimHost(id)
	s.SetState(message.StateInWorld)
	return s
}

func drain(t *testing.T, s *net.Session) []map[string]any {
	t.Helper()
	s.FlushOutput()
	var out []map[string]any
	for {
		select {
		case raw := <-s.OutQueue:
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Fatalf("bad frame %s: %v", raw, err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func damageFrames(frames []map[string]any) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f["type"] == "damage-player" {
			out = append(out, f)
		}
	}
	return out
}

func TestCombatHitsTargetInFront(t *testing.T) {
	f := newFixture(t)
	a := f.place(1, "A", component.ClassMelee, 0, 0)
	b := f.place(2, "B", component.ClassMelee, 0, 1.5)

	f.combat.Resolve(handler.AttackRequest{AttackerID: "A", Rotation: 0})

	for name, s := range map[string]*net.Session{"attacker": a, "target": b} {
		got := damageFrames(drain(t, s))
		if len(got) != 1 {
			t.Fatalf("%s got %d damage frames, want 1", name, len(got))
		}
		d := got[0]
		if d["targetId"] != "B" || d["attackerId"] != "A" || d["damage"] != float64(22) {
			t.Errorf("%s got %v", name, d)
		}
	}
	if n := f.deps.Metrics.Hits.Load(); n != 1 {
		t.Errorf("hits = %d, want 1", n)
	}
}

func TestCombatGeometry(t *testing.T) {
	tests := []struct {
		name     string
		x, z     float64
		rotation float64
		hit      bool
	}{
		{"exactly at range", 0, 2, 0, true},
		{"just past range", 0, 2.0001, 0, false},
		{"behind", 0, -1, 0, false},
		{"beside", 1, 0, 0, false},
		{"facing east", 1.5, 0, math.Pi / 2, true},
		{"facing west away", 1.5, 0, -math.Pi / 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.place(1, "A", component.ClassMelee, 0, 0)
			f.place(2, "B", component.ClassMelee, tt.x, tt.z)

			f.combat.Resolve(handler.AttackRequest{AttackerID: "A", Rotation: tt.rotation})

			hit := len(damageFrames(drain(t, a))) == 1
			if hit != tt.hit {
				t.Errorf("hit = %v, want %v", hit, tt.hit)
			}
		})
	}
}

func TestCombatUsesRequestPosition(t *testing.T) {
	f := newFixture(t)
	a := f.place(1, "A", component.ClassMelee, 0, 0)
	f.place(2, "B", component.ClassMelee, 50, 51)

	f.combat.Resolve(handler.AttackRequest{
		AttackerID: "A",
		Position:   component.Position{X: 50, Z: 50},
	})

	if got := damageFrames(drain(t, a)); len(got) != 1 {
		t.Fatalf("got %d damage frames, want 1", len(got))
	}
}

func TestCombatDoesNotChangeHealth(t *testing.T) {
	f := newFixture(t)
	f.place(1, "A", component.ClassMelee, 0, 0)
	f.place(2, "B", component.ClassMelee, 0, 1)

	f.combat.Resolve(handler.AttackRequest{AttackerID: "A"})

	p, _ := f.deps.World.Players.GetPlayer("B")
	if p.Character.Stats.Health != 100 {
		t.Errorf("health = %v, want 100", p.Character.Stats.Health)
	}
}

func TestCombatMissingAttackerIsIgnored(t *testing.T) {
	f := newFixture(t)
	b := f.place(2, "B", component.ClassMelee, 0, 1)

	f.combat.Resolve(handler.AttackRequest{AttackerID: "ghost"})

	if got := drain(t, b); len(got) != 0 {
		t.Errorf("got %v, want nothing", got)
	}
	if n := f.deps.Metrics.AttacksResolved.Load(); n != 0 {
		t.Errorf("resolved = %d, want 0", n)
	}
}

func TestCombatEmitsDamageEvent(t *testing.T) {
	f := newFixture(t)
	f.place(1, "A", component.ClassMelee, 0, 0)
	f.place(2, "B", component.ClassMelee, 0, 1)

	var got []event.DamageDealt
	event.Subscribe(f.deps.Bus, func(e event.DamageDealt) { got = append(got, e) })

	f.combat.Resolve(handler.AttackRequest{AttackerID: "A"})
	NewEventDispatchSystem(f.deps.Bus).Update(0)

	if len(got) != 1 || got[0].TargetID != "B" || got[0].Damage != 22 {
		t.Errorf("events = %+v", got)
	}
}

func TestAttackSeesRegistryAtReceipt(t *testing.T) {
	f := newFixture(t)
	in, _ := newInput(f)
	a := f.place(1, "A", component.ClassMelee, 0, 0)
	b := f.place(2, "B", component.ClassMelee, 0, 1.5)

	// B steps out of reach in the same tick, after A's attack arrived.
	a.InQueue <- []byte(`{"type":"attack-action","playerId":"A","position":{"x":0,"y":0,"z":0},"rotation":0}`)
	b.InQueue <- []byte(`{"type":"player-update","playerId":"B","position":{"x":0,"y":0,"z":30},"rotation":0,"moving":true}`)
	in.Update(0)

	got := damageFrames(drain(t, b))
	if len(got) != 1 || got[0]["damage"] != float64(22) {
		t.Fatalf("target damage frames = %v", got)
	}
	p, _ := f.deps.World.Players.GetPlayer("B")
	if p.Character.Position.Z != 30 {
		t.Errorf("update not applied: %+v", p.Character.Position)
	}

	// The other way round: the target has already left reach when the
	// attack lands.
	f.deps.World.Players.UpdatePlayer("B", component.Position{Z: 1.5}, 0, false, false, f.now)
	b.InQueue <- []byte(`{"type":"player-update","playerId":"B","position":{"x":0,"y":0,"z":30},"rotation":0,"moving":true}`)
	in.Update(0)
	a.InQueue <- []byte(`{"type":"attack-action","playerId":"A","position":{"x":0,"y":0,"z":0},"rotation":0}`)
	in.Update(0)

	if got := damageFrames(drain(t, b)); len(got) != 0 {
		t.Errorf("out-of-reach target damaged: %v", got)
	}
}

func TestSweepEvictsInactivePlayers(t *testing.T) {
	f := newFixture(t)
	a := f.place(1, "A", component.ClassMelee, 0, 0)
	b := f.place(2, "B", component.ClassMelee, 5, 5)
	sweep := NewSweepSystem(f.deps)

	f.now = f.now.Add(f.deps.Config.Heartbeat.PlayerTimeout)
	if n := sweep.SweepPlayers(); n != 0 {
		t.Fatalf("evicted %d at exactly the timeout", n)
	}

	f.deps.World.Players.UpdatePlayer("B", component.Position{X: 5, Z: 5}, 0, false, false, f.now)
	f.now = f.now.Add(time.Second)
	if n := sweep.SweepPlayers(); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if f.deps.World.Players.Has("A") {
		t.Error("A still registered")
	}
	if f.deps.World.Host() != "B" {
		t.Errorf("host = %q, want B", f.deps.World.Host())
	}
	if a.IsClosed() {
		t.Error("inactive player's connection was closed")
	}
	if a.State() != message.StateConnected {
		t.Errorf("state = %v, want connected", a.State())
	}

	var sawLeave bool
	for _, fr := range drain(t, b) {
		if fr["type"] == "player-leave" && fr["playerId"] == "A" {
			sawLeave = true
		}
	}
	if !sawLeave {
		t.Error("B was not told that A left")
	}
}

func TestSweepRemovesIdleLobbies(t *testing.T) {
	f := newFixture(t)
	watcher := f.session(9)
	lobbies := f.deps.World.Lobbies
	l := lobbies.CreateLobby("room", "host", nil, f.now)
	f.deps.World.SetLobby(5, l.ID)

	sweep := NewSweepSystem(f.deps)
	f.now = f.now.Add(f.deps.Config.Lobby.IdleTimeout + time.Second)
	if n := sweep.SweepLobbies(); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if lobbies.Get(l.ID) != nil {
		t.Error("lobby still present")
	}
	if _, ok := f.deps.World.LobbyOf(5); ok {
		t.Error("membership not forgotten")
	}

	frames := drain(t, watcher)
	if len(frames) != 1 || frames[0]["type"] != "lobbies-updated" {
		t.Errorf("frames = %v", frames)
	}
}

func TestSweepIntervals(t *testing.T) {
	f := newFixture(t)
	f.place(1, "A", component.ClassMelee, 0, 0)
	sweep := NewSweepSystem(f.deps)

	f.now = f.now.Add(time.Hour)
	sweep.Update(f.deps.Config.Heartbeat.SweepInterval / 2)
	if !f.deps.World.Players.Has("A") {
		t.Fatal("swept before the interval elapsed")
	}
	sweep.Update(f.deps.Config.Heartbeat.SweepInterval / 2)
	if f.deps.World.Players.Has("A") {
		t.Fatal("not swept after the interval elapsed")
	}
}

type fakeSink struct {
	batches [][]persist.JournalEntry
	full    bool
}

func (s *fakeSink) Submit(batch []persist.JournalEntry) bool {
	if s.full {
		return false
	}
	s.batches = append(s.batches, batch)
	return true
}

func TestPersistenceJournalsEvents(t *testing.T) {
	f := newFixture(t)
	sink := &fakeSink{}
	ps := NewPersistenceSystem(f.deps.Bus, sink, time.Second, func() time.Time { return f.now }, f.deps.Log)
	dispatch := NewEventDispatchSystem(f.deps.Bus)

	event.Emit(f.deps.Bus, event.PlayerJoined{PlayerID: "A", Class: "melee"})
	event.Emit(f.deps.Bus, event.DamageDealt{AttackerID: "A", TargetID: "B", Damage: 22})
	event.Emit(f.deps.Bus, event.LobbyClosed{LobbyID: "abcd1234", Idle: true})
	dispatch.Update(0)

	if ps.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", ps.Pending())
	}
	ps.Update(500 * time.Millisecond)
	if len(sink.batches) != 0 {
		t.Fatal("flushed before the interval")
	}
	ps.Update(500 * time.Millisecond)
	if len(sink.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(sink.batches))
	}

	batch := sink.batches[0]
	if batch[0].Kind != persist.KindJoin || batch[0].Detail != "melee" {
		t.Errorf("join entry = %+v", batch[0])
	}
	if batch[1].Kind != persist.KindDamage || batch[1].TargetID != "B" || batch[1].Amount != 22 {
		t.Errorf("damage entry = %+v", batch[1])
	}
	if batch[2].Kind != persist.KindLobbyClose || batch[2].Detail != "idle=true" {
		t.Errorf("lobby entry = %+v", batch[2])
	}
	if !batch[0].RecordedAt.Equal(f.now) {
		t.Errorf("recorded at %v", batch[0].RecordedAt)
	}
}

func TestPersistenceDropsWhenQueueFull(t *testing.T) {
	f := newFixture(t)
	sink := &fakeSink{full: true}
	ps := NewPersistenceSystem(f.deps.Bus, sink, time.Second, nil, f.deps.Log)

	event.Emit(f.deps.Bus, event.HostChanged{HostID: "A"})
	NewEventDispatchSystem(f.deps.Bus).Update(0)
	ps.Flush()

	if ps.Pending() != 0 {
		t.Errorf("pending = %d after a dropped flush", ps.Pending())
	}
}

type fakeAcceptor struct {
	ch   chan *net.Session
	dead []uint64
}

func (a *fakeAcceptor) NewSessions() <-chan *net.Session { return a.ch }
func (a *fakeAcceptor) NotifyDead(id uint64)             { a.dead = append(a.dead, id) }

func newInput(f *fixture) (*InputSystem, *fakeAcceptor) {
	acc := &fakeAcceptor{ch: make(chan *net.Session, 4)}
	reg := message.NewRegistry(f.deps.Log)
	handler.RegisterAll(reg, f.deps)
	return NewInputSystem(acc, reg, f.deps, f.deps.Config.Server.MaxMessagesPerTick), acc
}

func TestInputAcceptsAndDispatches(t *testing.T) {
	f := newFixture(t)
	in, acc := newInput(f)

	s := net.NewSession(nil, 1, "127.0.0.1", net.SessionOptions{InQueueSize: 8, OutQueueSize: 64}, f.deps.Log)
	acc.ch <- s
	s.InQueue <- []byte(`{"type":"get-lobbies"}`)
	s.InQueue <- []byte(`{"type":"no-such-kind"}`)
	s.InQueue <- []byte(`not json`)
	in.Update(0)

	if f.deps.Sessions.Get(1) == nil {
		t.Fatal("session not accepted")
	}
	m := f.deps.Metrics
	if m.MessagesAccepted.Load() != 1 || m.UnknownKinds.Load() != 1 || m.Malformed.Load() != 1 {
		t.Errorf("metrics = %v", m.Snapshot())
	}
	select {
	case raw := <-s.OutQueue:
		var got map[string]any
		if err := json.Unmarshal(raw, &got); err != nil || got["type"] != "lobbies" {
			t.Errorf("reply = %s", raw)
		}
	default:
		t.Error("no early flush of the lobbies reply")
	}
}

func TestInputRateLimit(t *testing.T) {
	f := newFixture(t)
	f.deps.Limiter.SetLimit(2)
	in, acc := newInput(f)

	s := net.NewSession(nil, 1, "127.0.0.1", net.SessionOptions{InQueueSize: 8, OutQueueSize: 64}, f.deps.Log)
	acc.ch <- s
	for i := 0; i < 3; i++ {
		s.InQueue <- []byte(`{"type":"get-lobbies"}`)
	}
	in.Update(0)

	if n := f.deps.Metrics.RateLimited.Load(); n != 1 {
		t.Errorf("rate limited = %d, want 1", n)
	}
	var last map[string]any
	for len(s.OutQueue) > 0 {
		_ = json.Unmarshal(<-s.OutQueue, &last)
	}
	if last["type"] != "error" || last["message"] != "rate limit exceeded" {
		t.Errorf("last frame = %v", last)
	}
}

func TestInputReapsClosedSessions(t *testing.T) {
	f := newFixture(t)
	in, acc := newInput(f)
	a := f.place(1, "A", component.ClassMelee, 0, 0)
	b := f.place(2, "B", component.ClassMelee, 1, 1)

	a.Close()
	in.Update(0)

	if f.deps.Sessions.Get(1) != nil {
		t.Error("closed session still stored")
	}
	if len(acc.dead) != 1 || acc.dead[0] != 1 {
		t.Errorf("dead = %v", acc.dead)
	}
	if f.deps.World.Players.Has("A") {
		t.Error("player of closed session still registered")
	}
	if f.deps.World.Host() != "B" {
		t.Errorf("host = %q", f.deps.World.Host())
	}
	if b.IsClosed() {
		t.Error("peer closed")
	}
}
