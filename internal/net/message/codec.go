package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for a frame whose type is not a client kind.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrMalformed is returned for a frame that is not a valid JSON object of its kind.
	ErrMalformed = errors.New("malformed message")
)

type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses one client frame into its concrete message type.
// Server-only kinds are rejected as unknown.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case KindPlayerJoin:
		return decodeAs[PlayerJoin](data)
	case KindPlayerLeave:
		return decodeAs[PlayerLeave](data)
	case KindPlayerUpdate:
		return decodeAs[PlayerUpdate](data)
	case KindAttackAction:
		return decodeAs[AttackAction](data)
	case KindGetLobbies:
		return decodeAs[GetLobbies](data)
	case KindCreateLobby:
		return decodeAs[CreateLobby](data)
	case KindJoinLobby:
		return decodeAs[JoinLobby](data)
	case KindLeaveLobby:
		return decodeAs[LeaveLobby](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, m.Kind(), err)
	}
	return m, nil
}

// Encode serializes a message with its `type` discriminator first.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	kind, err := json.Marshal(string(m.Kind()))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	out := make([]byte, 0, len(body)+len(kind)+10)
	out = append(out, `{"type":`...)
	out = append(out, kind...)
	if len(body) > 2 { // not "{}"
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
