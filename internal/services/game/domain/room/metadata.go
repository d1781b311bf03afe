package room

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Room metadata is an opaque JSON document. These helpers read and write the
// few well-known paths the runtime owns without disturbing validator-defined
// fields.

// HighWater returns the idempotency high-water mark recorded for playerID,
// or zero when none exists.
func HighWater(metadata json.RawMessage, playerID string) int64 {
	if len(metadata) == 0 || playerID == "" {
		return 0
	}
	return gjson.GetBytes(metadata, "clientSeq."+escapePath(playerID)).Int()
}

// WithHighWater returns metadata with the idempotency mark for playerID set
// to seq.
func WithHighWater(metadata json.RawMessage, playerID string, seq int64) (json.RawMessage, error) {
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	out, err := sjson.SetBytes(metadata, "clientSeq."+escapePath(playerID), seq)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MaxPlayers returns the validator-declared player cap from metadata, or
// zero when undeclared.
func MaxPlayers(metadata json.RawMessage) int {
	if len(metadata) == 0 {
		return 0
	}
	return int(gjson.GetBytes(metadata, "maxPlayers").Int())
}

// MinPlayers returns the validator-declared start minimum from metadata, or
// zero when undeclared.
func MinPlayers(metadata json.RawMessage) int {
	if len(metadata) == 0 {
		return 0
	}
	return int(gjson.GetBytes(metadata, "minPlayers").Int())
}

// escapePath guards gjson/sjson path syntax inside player ids.
func escapePath(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
