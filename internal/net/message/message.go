package message

import (
	"math"

	"github.com/realmrelay/server/internal/component"
)

// Kind is the `type` discriminator carried by every frame.
type Kind string

// Character-state protocol.
const (
	KindPlayerJoin   Kind = "player-join"
	KindPlayerLeave  Kind = "player-leave"
	KindPlayerUpdate Kind = "player-update"
	KindAttackAction Kind = "attack-action"
	KindDamagePlayer Kind = "damage-player"
	KindHostUpdate   Kind = "host-update"
)

// Lobby control protocol.
const (
	KindGetLobbies        Kind = "get-lobbies"
	KindLobbies           Kind = "lobbies"
	KindLobbiesUpdated    Kind = "lobbies-updated"
	KindCreateLobby       Kind = "create-lobby"
	KindLobbyCreated      Kind = "lobby-created"
	KindJoinLobby         Kind = "join-lobby"
	KindLobbyJoined       Kind = "lobby-joined"
	KindPlayerJoinedLobby Kind = "player-joined-lobby"
	KindLeaveLobby        Kind = "leave-lobby"
	KindLobbyLeft         Kind = "lobby-left"
	KindError             Kind = "error"
)

// InboundKinds lists every kind a client may send.
var InboundKinds = []Kind{
	KindPlayerJoin,
	KindPlayerLeave,
	KindPlayerUpdate,
	KindAttackAction,
	KindGetLobbies,
	KindCreateLobby,
	KindJoinLobby,
	KindLeaveLobby,
}

// Message is implemented by every frame body.
type Message interface {
	Kind() Kind
}

// Vec3 is a position as it appears on the wire. Fields are pointers so a
// missing axis can be told apart from zero.
type Vec3 struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// VecOf converts a position to its wire form.
func VecOf(p component.Position) Vec3 {
	return Vec3{X: &p.X, Y: &p.Y, Z: &p.Z}
}

// Within returns the position if all three axes are present, finite and
// inside [-bound, bound].
func (v Vec3) Within(bound float64) (component.Position, bool) {
	if v.X == nil || v.Y == nil || v.Z == nil {
		return component.Position{}, false
	}
	for _, f := range [3]float64{*v.X, *v.Y, *v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > bound {
			return component.Position{}, false
		}
	}
	return component.Position{X: *v.X, Y: *v.Y, Z: *v.Z}, true
}

// FiniteRotation reports whether r is present and finite.
func FiniteRotation(r *float64) (float64, bool) {
	if r == nil || math.IsNaN(*r) || math.IsInf(*r, 0) {
		return 0, false
	}
	return *r, true
}

type PlayerJoin struct {
	Player component.PlayerState `json:"player"`
}

type PlayerLeave struct {
	PlayerID string `json:"playerId"`
}

type PlayerUpdate struct {
	PlayerID  string   `json:"playerId"`
	Position  Vec3     `json:"position"`
	Rotation  *float64 `json:"rotation"`
	Moving    bool     `json:"moving"`
	Attacking bool     `json:"attacking"`
}

type AttackAction struct {
	PlayerID string   `json:"playerId"`
	Position Vec3     `json:"position"`
	Rotation *float64 `json:"rotation"`
}

type DamagePlayer struct {
	TargetID   string `json:"targetId"`
	Damage     int    `json:"damage"`
	AttackerID string `json:"attackerId"`
}

// HostUpdate names the current host; HostID is nil (JSON null) when the
// world is empty.
type HostUpdate struct {
	HostID *string `json:"hostId"`
}

type GetLobbies struct{}

type Lobbies struct {
	Lobbies []component.LobbySummary `json:"lobbies"`
}

type LobbiesUpdated struct {
	Lobbies []component.LobbySummary `json:"lobbies"`
}

type CreateLobby struct {
	Name       string `json:"name"`
	HostName   string `json:"hostName"`
	MaxPlayers *int   `json:"maxPlayers,omitempty"`
}

type LobbyCreated struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	HostName   string `json:"hostName"`
	MaxPlayers int    `json:"maxPlayers"`
}

type JoinLobby struct {
	LobbyID string `json:"lobbyId"`
}

type LobbyJoined struct {
	LobbyID string `json:"lobbyId"`
}

type PlayerJoinedLobby struct {
	LobbyID      string `json:"lobbyId"`
	ConnectionID string `json:"connectionId"`
}

type LeaveLobby struct {
	LobbyID string `json:"lobbyId"`
}

type LobbyLeft struct {
	LobbyID string `json:"lobbyId"`
}

type Error struct {
	Message string `json:"message"`
}

func (PlayerJoin) Kind() Kind        { return KindPlayerJoin }
func (PlayerLeave) Kind() Kind       { return KindPlayerLeave }
func (PlayerUpdate) Kind() Kind      { return KindPlayerUpdate }
func (AttackAction) Kind() Kind      { return KindAttackAction }
func (DamagePlayer) Kind() Kind      { return KindDamagePlayer }
func (HostUpdate) Kind() Kind        { return KindHostUpdate }
func (GetLobbies) Kind() Kind        { return KindGetLobbies }
func (Lobbies) Kind() Kind           { return KindLobbies }
func (LobbiesUpdated) Kind() Kind    { return KindLobbiesUpdated }
func (CreateLobby) Kind() Kind       { return KindCreateLobby }
func (LobbyCreated) Kind() Kind      { return KindLobbyCreated }
func (JoinLobby) Kind() Kind         { return KindJoinLobby }
func (LobbyJoined) Kind() Kind       { return KindLobbyJoined }
func (PlayerJoinedLobby) Kind() Kind { return KindPlayerJoinedLobby }
func (LeaveLobby) Kind() Kind        { return KindLeaveLobby }
func (LobbyLeft) Kind() Kind         { return KindLobbyLeft }
func (Error) Kind() Kind             { return KindError }
