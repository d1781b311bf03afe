// Package action defines the client-submitted action message and its
// syntactic validation. Semantic admission belongs to the validator.
package action

import (
	"encoding/json"
	"strings"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
)

// Standard action kinds handled by the generic fallback. Games may submit
// any custom tag beyond these; custom kinds skip generic preconditions and
// require a deployed validator.
const (
	KindJoin   = "JOIN"
	KindStart  = "START"
	KindMove   = "MOVE"
	KindUpdate = "UPDATE"
	KindEnd    = "END"
)

// Standard reports whether kind is one of the generic-handled kinds.
func Standard(kind string) bool {
	switch kind {
	case KindJoin, KindStart, KindMove, KindUpdate, KindEnd:
		return true
	}
	return false
}

// Action is one client request to mutate a room. PlayerID is asserted by
// the transport from the authenticated token, never trusted from the
// payload.
type Action struct {
	Type      string          `json:"type"`
	PlayerID  string          `json:"playerId"`
	Data      json.RawMessage `json:"data,omitempty"`
	ClientSeq *int64          `json:"clientSeq,omitempty"`
}

// Validate checks the action shape before any room work happens.
func (a Action) Validate() error {
	if strings.TrimSpace(a.Type) == "" {
		return apperrors.New(apperrors.CodeInvalidActionShape, "action type is required")
	}
	if strings.TrimSpace(a.PlayerID) == "" {
		return apperrors.New(apperrors.CodeInvalidActionShape, "player id is required")
	}
	if len(a.Data) > 0 && !json.Valid(a.Data) {
		return apperrors.New(apperrors.CodeInvalidActionShape, "action data is not valid JSON")
	}
	if a.ClientSeq != nil && *a.ClientSeq <= 0 {
		return apperrors.New(apperrors.CodeInvalidActionShape, "client sequence must be positive")
	}
	return nil
}

// Normalize trims identity fields and defaults empty data to an empty
// object so validators see a consistent shape.
func (a Action) Normalize() Action {
	a.Type = strings.TrimSpace(a.Type)
	a.PlayerID = strings.TrimSpace(a.PlayerID)
	if len(a.Data) == 0 {
		a.Data = json.RawMessage(`{}`)
	}
	return a
}
