package event

// Events are emitted by handlers and systems during a tick and delivered to
// subscribers at the start of the next one (see Bus).

type PlayerJoined struct {
	PlayerID  string
	SessionID uint64
	Name      string
	Class     string
}

// LeaveReason says why a player left the world.
type LeaveReason string

const (
	LeaveVoluntary  LeaveReason = "leave"
	LeaveDisconnect LeaveReason = "disconnect"
	LeaveInactive   LeaveReason = "inactive"
)

type PlayerLeft struct {
	PlayerID  string
	SessionID uint64
	Reason    LeaveReason
}

type HostChanged struct {
	HostID string // empty when no players remain
}

type DamageDealt struct {
	AttackerID string
	TargetID   string
	Damage     int
}

type LobbyCreated struct {
	LobbyID    string
	HostName   string
	MaxPlayers int
}

// LobbyClosed is emitted when a lobby is deleted, either because its last
// member left or because it idled past the timeout.
type LobbyClosed struct {
	LobbyID string
	Idle    bool
}
