// Package validator defines the admission contract every game module
// implements, plus the generic handlers used when a room carries no
// deployed validator or as fallback for standard kinds.
//
// A validator is pure: given the same input it produces the same result,
// modulo the provided timestamp. Nondeterminism must derive from state
// fields or the action payload, never from I/O or clocks.
package validator

import (
	"context"
	"encoding/json"

	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
)

// Input is the invocation argument. Players and Metadata accompany the
// opaque state so membership changes and declarations stay decidable by
// the module alone; Phase is the authoritative room phase.
type Input struct {
	Action    string          `json:"action"`
	Kind      string          `json:"kind"`
	Phase     room.Phase      `json:"phase"`
	State     json.RawMessage `json:"state"`
	Players   room.Roster     `json:"players"`
	PlayerID  string          `json:"playerId"`
	Data      json.RawMessage `json:"data"`
	RoomID    string          `json:"roomId"`
	Metadata  json.RawMessage `json:"metadata"`
	Timestamp int64           `json:"timestamp"`
}

// Result is the admission decision. Nil UpdatedState or UpdatedPlayers
// means unchanged. Reason carries a machine-readable rejection code when
// Valid is false. Broadcast may override the default kind mapping.
type Result struct {
	Valid          bool            `json:"valid"`
	Reason         string          `json:"reason,omitempty"`
	UpdatedState   json.RawMessage `json:"updatedState,omitempty"`
	UpdatedPlayers room.Roster     `json:"updatedPlayers,omitempty"`
	Broadcast      string          `json:"broadcast,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Timestamp      int64           `json:"timestamp"`
}

// Invoker executes a deployed validator by its opaque reference. The
// sandbox implements this; the runtime depends only on the interface.
type Invoker interface {
	Invoke(ctx context.Context, ref string, in Input) (Result, error)
}

// Reject builds a failure result with a machine-readable reason code.
func Reject(reason string, timestamp int64) Result {
	return Result{Valid: false, Reason: reason, Timestamp: timestamp}
}

// Accept builds a success result.
func Accept(state json.RawMessage, players room.Roster, broadcastKind string, timestamp int64) Result {
	return Result{
		Valid:          true,
		UpdatedState:   state,
		UpdatedPlayers: players,
		Broadcast:      broadcastKind,
		Timestamp:      timestamp,
	}
}
