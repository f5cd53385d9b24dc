package persist

import (
	"context"
	"fmt"
	"time"
)

// Journal entry kinds.
const (
	KindJoin        = "join"
	KindLeave       = "leave"
	KindHost        = "host"
	KindDamage      = "damage"
	KindLobbyCreate = "lobby_create"
	KindLobbyClose  = "lobby_close"
)

// JournalEntry is one row of the session journal.
type JournalEntry struct {
	Kind       string
	PlayerID   string
	TargetID   string
	LobbyID    string
	Detail     string // leave reason, class, host name
	Amount     int    // damage, lobby capacity
	RecordedAt time.Time
}

// JournalRepo writes session journal rows.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteBatch atomically writes a batch of entries in a single transaction.
func (r *JournalRepo) WriteBatch(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_journal (kind, player_id, target_id, lobby_id, detail, amount, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.Kind, e.PlayerID, e.TargetID, e.LobbyID, e.Detail, e.Amount, e.RecordedAt,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Prune deletes entries older than the cutoff and returns how many went.
func (r *JournalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM session_journal WHERE recorded_at < $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
