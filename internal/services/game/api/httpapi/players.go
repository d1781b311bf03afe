package httpapi

import (
	"net/http"
	"strings"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
)

const maxProvisionBytes = 4 << 10

type provisionRequest struct {
	PlayerID string `json:"playerId,omitempty"`
}

// handleProvisionPlayer mints a room-scoped credential. The room must
// exist and must not have ended; pending conversions are fine, players can
// hold a seat while the room is being built.
func (h *Handler) handleProvisionPlayer(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	rm, err := h.cfg.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rm.Terminal() {
		writeError(w, apperrors.New(apperrors.CodeRoomTerminated, "room has ended"))
		return
	}

	var req provisionRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, maxProvisionBytes, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	grant, err := h.cfg.Tokens.Issue(roomID, req.PlayerID)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "issue player token", err))
		return
	}
	writeResult(w, http.StatusCreated, grant)
}
