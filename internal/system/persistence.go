package system

import (
	"strconv"
	"time"

	"github.com/realmrelay/server/internal/core/event"
	coresys "github.com/realmrelay/server/internal/core/system"
	"github.com/realmrelay/server/internal/persist"
	"go.uber.org/zap"
)

// JournalSink accepts journal batches without blocking the game loop.
// *persist.Journal implements it.
type JournalSink interface {
	Submit(batch []persist.JournalEntry) bool
}

// PersistenceSystem turns bus events into session journal rows and hands
// them to the journal writer every flush interval. Phase 5 (Persist).
type PersistenceSystem struct {
	sink     JournalSink
	log      *zap.Logger
	now      func() time.Time
	interval time.Duration
	acc      time.Duration
	pending  []persist.JournalEntry
}

func NewPersistenceSystem(bus *event.Bus, sink JournalSink, interval time.Duration, now func() time.Time, log *zap.Logger) *PersistenceSystem {
	if now == nil {
		now = time.Now
	}
	s := &PersistenceSystem{
		sink:     sink,
		log:      log,
		now:      now,
		interval: interval,
	}

	event.Subscribe(bus, func(e event.PlayerJoined) {
		s.record(persist.JournalEntry{Kind: persist.KindJoin, PlayerID: e.PlayerID, Detail: e.Class})
	})
	event.Subscribe(bus, func(e event.PlayerLeft) {
		s.record(persist.JournalEntry{Kind: persist.KindLeave, PlayerID: e.PlayerID, Detail: string(e.Reason)})
	})
	event.Subscribe(bus, func(e event.HostChanged) {
		s.record(persist.JournalEntry{Kind: persist.KindHost, PlayerID: e.HostID})
	})
	event.Subscribe(bus, func(e event.DamageDealt) {
		s.record(persist.JournalEntry{
			Kind:     persist.KindDamage,
			PlayerID: e.AttackerID,
			TargetID: e.TargetID,
			Amount:   e.Damage,
		})
	})
	event.Subscribe(bus, func(e event.LobbyCreated) {
		s.record(persist.JournalEntry{
			Kind:    persist.KindLobbyCreate,
			LobbyID: e.LobbyID,
			Detail:  e.HostName,
			Amount:  e.MaxPlayers,
		})
	})
	event.Subscribe(bus, func(e event.LobbyClosed) {
		s.record(persist.JournalEntry{
			Kind:    persist.KindLobbyClose,
			LobbyID: e.LobbyID,
			Detail:  "idle=" + strconv.FormatBool(e.Idle),
		})
	})
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) record(e persist.JournalEntry) {
	e.RecordedAt = s.now()
	s.pending = append(s.pending, e)
}

func (s *PersistenceSystem) Update(dt time.Duration) {
	s.acc += dt
	if s.acc < s.interval {
		return
	}
	s.acc = 0
	s.Flush()
}

// Flush submits everything recorded so far. Called on the interval and once
// more at shutdown. A full writer queue drops the batch.
func (s *PersistenceSystem) Flush() {
	if len(s.pending) == 0 {
		return
	}
	batch := s.pending
	s.pending = nil
	if !s.sink.Submit(batch) {
		s.log.Warn("journal queue full, batch dropped", zap.Int("entries", len(batch)))
	}
}

// Pending reports how many entries await the next flush.
func (s *PersistenceSystem) Pending() int { return len(s.pending) }
