package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/action"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/broadcast"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/runtime"
)

type actionRequest struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	ClientSeq *int64          `json:"clientSeq,omitempty"`
}

type submitView struct {
	Accepted  bool               `json:"accepted"`
	Duplicate bool               `json:"duplicate,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Version   int64              `json:"version,omitempty"`
	State     json.RawMessage    `json:"state,omitempty"`
	Players   room.Roster        `json:"players,omitempty"`
	Broadcast *broadcast.Message `json:"broadcast,omitempty"`
}

func submitViewOf(res runtime.SubmitResult) submitView {
	return submitView{
		Accepted:  res.Accepted,
		Duplicate: res.Duplicate,
		Reason:    res.Reason,
		Version:   res.Version,
		State:     res.State,
		Players:   res.Players,
		Broadcast: res.Broadcast,
	}
}

// handleSubmitAction authenticates the caller, asserts the player identity
// from the token, and forwards the action to the runtime. The payload never
// chooses its own player id.
func (h *Handler) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	playerID, err := h.authenticate(r, roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	if !h.limits.allow(playerID+"@"+roomID, h.cfg.Now()) {
		metrics.RateLimitRejections.WithLabelValues("submit_action").Inc()
		writeError(w, apperrors.New(apperrors.CodeRateLimited, "too many actions, slow down"))
		return
	}

	var req actionRequest
	if err := decodeBody(w, r, h.cfg.MaxActionBytes, &req); err != nil {
		writeError(w, err)
		return
	}

	act := action.Action{
		Type:      req.Type,
		PlayerID:  playerID,
		Data:      req.Data,
		ClientSeq: req.ClientSeq,
	}
	res, err := h.cfg.Runtime.Submit(r.Context(), roomID, act)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Accepted {
		writeRejection(w, res.Reason)
		return
	}
	writeResult(w, http.StatusOK, submitViewOf(res))
}

// authenticate extracts the bearer token and checks it is scoped to the
// room being addressed.
func (h *Handler) authenticate(r *http.Request, roomID string) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, rawToken, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}
	tokenRoom, playerID, err := h.cfg.Tokens.Verify(rawToken)
	if err != nil {
		return "", err
	}
	if tokenRoom != roomID {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "token is not valid for this room")
	}
	return playerID, nil
}
