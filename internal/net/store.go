package net

import "sort"

// SessionStore holds all active sessions. Accessed only from the game loop
// goroutine, so no mutex.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (ss *SessionStore) Add(s *Session)        { ss.sessions[s.ID] = s }
func (ss *SessionStore) Remove(id uint64)       { delete(ss.sessions, id) }
func (ss *SessionStore) Get(id uint64) *Session { return ss.sessions[id] }
func (ss *SessionStore) Len() int               { return len(ss.sessions) }

// ForEach iterates all sessions. Safe to call Close() on sessions during iteration.
func (ss *SessionStore) ForEach(fn func(*Session)) {
	for _, s := range ss.sessions {
		fn(s)
	}
}

// IDs returns session IDs in ascending order, so per-tick processing is
// deterministic.
func (ss *SessionStore) IDs() []uint64 {
	ids := make([]uint64, 0, len(ss.sessions))
	for id := range ss.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
