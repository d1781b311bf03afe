package bridge

import (
	"encoding/json"
	"strings"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
)

// Kind identifies a game-side event emitted through the bridge.
type Kind string

// Game-side event kinds.
const (
	KindTransition  Kind = "TRANSITION"
	KindInteraction Kind = "INTERACTION"
	KindUpdate      Kind = "UPDATE"
	KindError       Kind = "ERROR"
)

// Host-side message kinds routed to subscribers.
const (
	HostStateUpdate  = "STATE_UPDATE"
	HostPlayerAction = "PLAYER_ACTION"
	HostGameEvent    = "GAME_EVENT"
	HostConfigUpdate = "CONFIG_UPDATE"
	// HostWildcard subscribes a handler to every known host kind.
	HostWildcard = "*"
)

// Scope qualifies an UPDATE event. Local updates originate from state-marker
// observation inside the document; remote updates mirror state pushed by the
// host. A single UPDATE kind with a scope field keeps the wire set small.
type Scope string

// UPDATE scopes.
const (
	ScopeLocal  Scope = "local"
	ScopeRemote Scope = "remote"
)

// Priority marks events that bypass batching.
const PriorityHigh = "high"

// Source is the envelope source tag set on every game-to-host post.
const Source = "GameEventBridge"

// ValidKind reports whether kind belongs to the game-side event set.
func ValidKind(kind Kind) bool {
	switch kind {
	case KindTransition, KindInteraction, KindUpdate, KindError:
		return true
	}
	return false
}

// KnownHostKind reports whether kind belongs to the host-side message set.
func KnownHostKind(kind string) bool {
	switch kind {
	case HostStateUpdate, HostPlayerAction, HostGameEvent, HostConfigUpdate:
		return true
	}
	return false
}

// Metadata stamps an event with its session coordinates.
type Metadata struct {
	RoomID         string `json:"roomId"`
	PlayerID       string `json:"playerId,omitempty"`
	SessionID      string `json:"sessionId"`
	Timestamp      int64  `json:"timestamp"`
	SequenceNumber int64  `json:"sequenceNumber"`
	Priority       string `json:"priority,omitempty"`
}

// Event is one stamped game-side event.
type Event struct {
	Kind     Kind            `json:"kind"`
	Data     json.RawMessage `json:"data,omitempty"`
	Scope    Scope           `json:"scope,omitempty"`
	Metadata Metadata        `json:"metadata"`
}

// Envelope is the game-to-host batch frame.
type Envelope struct {
	Source   string  `json:"source"`
	RoomID   string  `json:"roomId"`
	PlayerID string  `json:"playerId,omitempty"`
	Events   []Event `json:"events"`
}

// HostMessage is the host-to-game frame routed by the bridge.
type HostMessage struct {
	Target string          `json:"target"`
	RoomID string          `json:"roomId"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes and validates a game-to-host envelope.
//
// Sequence numbers must be strictly increasing within the envelope so an
// ERROR event never precedes the events it reports on.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, apperrors.Wrap(apperrors.CodeInvalidActionShape, "malformed bridge envelope", err)
	}
	if env.Source != Source {
		return Envelope{}, apperrors.New(apperrors.CodeInvalidActionShape, "envelope source mismatch")
	}
	if strings.TrimSpace(env.RoomID) == "" {
		return Envelope{}, apperrors.New(apperrors.CodeInvalidActionShape, "envelope room id is required")
	}
	var lastSeq int64
	for i, evt := range env.Events {
		if !ValidKind(evt.Kind) {
			return Envelope{}, apperrors.New(apperrors.CodeInvalidKind, "unknown event kind "+string(evt.Kind))
		}
		if i > 0 && evt.Metadata.SequenceNumber <= lastSeq {
			return Envelope{}, apperrors.New(apperrors.CodeInvalidActionShape, "envelope sequence numbers must increase")
		}
		lastSeq = evt.Metadata.SequenceNumber
	}
	return env, nil
}
