package httpapi

import (
	"net/http"
	"strings"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/id"
)

type conversionRequest struct {
	RoomID   string `json:"roomId,omitempty"`
	Document string `json:"document"`
}

func (h *Handler) handleRequestConversion(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Conversions == nil {
		writeError(w, apperrors.New(apperrors.CodeUpstreamUnavailable, "conversion service is not configured"))
		return
	}

	var req conversionRequest
	if err := decodeBody(w, r, h.cfg.MaxDocumentBytes, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		writeError(w, apperrors.New(apperrors.CodeInvalidActionShape, "document is required"))
		return
	}

	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		generated, err := id.NewID()
		if err != nil {
			writeError(w, err)
			return
		}
		roomID = generated
	}

	ticket, err := h.cfg.Conversions.RequestConversion(r.Context(), roomID, []byte(req.Document))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusAccepted, ticket)
}

func (h *Handler) handleConversionStatus(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Conversions == nil {
		writeError(w, apperrors.New(apperrors.CodeUpstreamUnavailable, "conversion service is not configured"))
		return
	}

	roomID := strings.TrimSpace(r.PathValue("roomID"))
	ticket, err := h.cfg.Conversions.ConversionStatus(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, ticket)
}
