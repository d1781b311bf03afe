// Package broadcast defines the messages fanned out to subscribers after a
// committed mutation, plus the snapshot frame that opens every
// subscription.
package broadcast

import (
	"encoding/json"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/action"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
)

// Broadcast kinds.
const (
	KindPlayerJoined = "PLAYER_JOINED"
	KindGameStarted  = "GAME_STARTED"
	KindMoveMade     = "MOVE_MADE"
	KindStateUpdate  = "STATE_UPDATE"
	KindGameEnded    = "GAME_ENDED"
	KindCustomAction = "CUSTOM_ACTION"

	// KindSnapshot opens every subscription with the authoritative state.
	KindSnapshot = "SNAPSHOT"
)

// ForAction maps an accepted action kind to its default broadcast kind.
// Validators may override this by returning their own broadcast kind.
func ForAction(kind string) string {
	switch kind {
	case action.KindJoin:
		return KindPlayerJoined
	case action.KindStart:
		return KindGameStarted
	case action.KindMove:
		return KindMoveMade
	case action.KindUpdate:
		return KindStateUpdate
	case action.KindEnd:
		return KindGameEnded
	}
	return KindCustomAction
}

// Message is one fanned-out frame. Subscribers drop frames with versions
// below their last seen and resync on gaps.
type Message struct {
	Kind      string          `json:"kind"`
	RoomID    string          `json:"roomId"`
	Version   int64           `json:"version"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
	Players   room.Roster     `json:"players,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Snapshot builds the frame that must precede broadcasts on every new
// subscription.
func Snapshot(r room.Room, now time.Time) Message {
	return Message{
		Kind:      KindSnapshot,
		RoomID:    r.RoomID,
		Version:   r.Version,
		State:     r.State,
		Players:   r.Players,
		Timestamp: now.UTC().UnixMilli(),
	}
}
