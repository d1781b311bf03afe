// Package app hosts the conversion service: the HTTP surface the game
// service calls in split deployments, and the runtime that wires stores,
// the model client, the sandbox, and the worker pipeline together.
package app

import (
	"errors"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/id"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/pipeline"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/storage"
)

const defaultMaxDocumentBytes = 2 << 20

// HandlerConfig wires the HTTP surface's dependencies.
type HandlerConfig struct {
	Pipeline  *pipeline.Pipeline
	Artifacts storage.ArtifactStore

	// MaxDocumentBytes caps job submission bodies. Defaults to 2MiB.
	MaxDocumentBytes int64
}

// Handler serves the conversion service HTTP API. Job endpoints use the
// shared JSON envelope; the artifact endpoint serves raw content so pages
// and validator source pass through unwrapped.
type Handler struct {
	cfg HandlerConfig
	mux *http.ServeMux
}

// NewHandler builds the route table.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = defaultMaxDocumentBytes
	}

	h := &Handler{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle(http.MethodGet+" /metrics", metrics.Handler())

	mux.HandleFunc(http.MethodPost+" /v1/jobs", h.handleEnqueueJob)
	mux.HandleFunc(http.MethodGet+" /v1/jobs/{roomID}", h.handleJobStatus)
	mux.HandleFunc(http.MethodGet+" /v1/artifacts/{ref}", h.handleArtifact)

	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type jobRequest struct {
	RoomID   string `json:"roomId,omitempty"`
	Document string `json:"document"`
}

func (h *Handler) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
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

	ticket, err := h.cfg.Pipeline.RequestConversion(r.Context(), roomID, []byte(req.Document))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusAccepted, ticket)
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	ticket, err := h.cfg.Pipeline.Status(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, ticket)
}

// handleArtifact serves published artifacts raw. Documents carry their own
// markup; wrapping them in the JSON envelope would force every consumer to
// unwrap before rendering.
func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.PathValue("ref"))
	content, err := h.cfg.Artifacts.Artifact(r.Context(), ref)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			http.Error(w, "artifact not found", http.StatusNotFound)
			return
		}
		log.Printf("fetch artifact %s: %v", ref, err)
		http.Error(w, "artifact fetch failed", http.StatusInternalServerError)
		return
	}

	contentType := "text/plain; charset=utf-8"
	if strings.HasPrefix(ref, "doc:") {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}
