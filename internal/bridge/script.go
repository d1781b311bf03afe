package bridge

import _ "embed"

// Marker attributes observed by the in-document bridge. The instrumenter
// places these on elements during conversion; games may also place them
// directly. Non-marked elements are never inspected.
const (
	MarkerAction = "data-mp-action"
	MarkerState  = "data-mp-state"
	MarkerTouch  = "data-mp-touch"
)

//go:embed script/bridge.js
var script []byte

// Script returns the embedded in-document bridge library.
func Script() []byte {
	out := make([]byte, len(script))
	copy(out, script)
	return out
}

// RoomConfig is the configuration object injected next to the script. The
// in-document bridge reads it from window.__MP_ROOM_CONFIG__.
type RoomConfig struct {
	RoomID          string `json:"roomId"`
	SessionID       string `json:"sessionId"`
	PlayerEndpoint  string `json:"playerEndpoint"`
	BatchSize       int    `json:"batchSize"`
	FlushIntervalMS int    `json:"flushIntervalMs"`
	QueueLimit      int    `json:"queueLimit"`
	BackoffBaseMS   int    `json:"backoffBaseMs"`
	BackoffMaxMS    int    `json:"backoffMaxMs"`
}

// DefaultRoomConfig returns the injected configuration for a room with the
// package batching defaults.
func DefaultRoomConfig(roomID, sessionID, playerEndpoint string) RoomConfig {
	return RoomConfig{
		RoomID:          roomID,
		SessionID:       sessionID,
		PlayerEndpoint:  playerEndpoint,
		BatchSize:       DefaultBatchSize,
		FlushIntervalMS: int(DefaultFlushInterval.Milliseconds()),
		QueueLimit:      DefaultQueueLimit,
		BackoffBaseMS:   int(DefaultBackoffBase.Milliseconds()),
		BackoffMaxMS:    int(DefaultBackoffMax.Milliseconds()),
	}
}
