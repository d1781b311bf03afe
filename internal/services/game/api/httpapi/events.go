package httpapi

import (
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/davidvanstory/MultiplayerGame/internal/bridge"
	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
)

type ingestView struct {
	Accepted int `json:"accepted"`
}

// handleIngestEvents accepts observational bridge envelopes. Events are
// counted and logged, never applied to room state; converted games mutate
// rooms only through the action path.
func (h *Handler) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	if _, err := h.cfg.Store.GetRoom(r.Context(), roomID); err != nil {
		writeError(w, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxActionBytes)
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodePayloadTooLarge, "envelope exceeds the size cap"))
		return
	}
	env, err := bridge.ParseEnvelope(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	if env.RoomID != roomID {
		writeError(w, apperrors.New(apperrors.CodeInvalidActionShape, "envelope room id does not match the route"))
		return
	}

	for _, evt := range env.Events {
		metrics.BridgeEvents.WithLabelValues(string(evt.Kind)).Inc()
	}
	log.Printf("bridge ingest room=%s player=%s events=%d", roomID, env.PlayerID, len(env.Events))
	writeResult(w, http.StatusAccepted, ingestView{Accepted: len(env.Events)})
}
