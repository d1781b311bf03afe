package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/id"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
)

const (
	maxListPageSize     = 100
	defaultListPageSize = 50
)

type roomView struct {
	RoomID          string          `json:"roomId"`
	Kind            string          `json:"kind,omitempty"`
	Phase           string          `json:"phase"`
	Conversion      string          `json:"conversionStatus"`
	ConversionError string          `json:"conversionError,omitempty"`
	Version         int64           `json:"version"`
	Players         room.Roster     `json:"players"`
	State           json.RawMessage `json:"state,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	ValidatorRef    string          `json:"validatorRef,omitempty"`
	DocumentRef     string          `json:"documentRef,omitempty"`
	JoinURL         string          `json:"joinUrl,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (h *Handler) viewOf(rm room.Room, r *http.Request) roomView {
	players := rm.Players
	if players == nil {
		players = room.Roster{}
	}
	return roomView{
		RoomID:          rm.RoomID,
		Kind:            rm.Kind,
		Phase:           string(rm.Phase),
		Conversion:      string(rm.Conversion),
		ConversionError: rm.ConversionError,
		Version:         rm.Version,
		Players:         players,
		State:           rm.State,
		Metadata:        rm.Metadata,
		ValidatorRef:    rm.ValidatorRef,
		DocumentRef:     rm.DocumentRef,
		JoinURL:         h.joinURL(r, rm),
		CreatedAt:       rm.CreatedAt,
		UpdatedAt:       rm.UpdatedAt,
	}
}

// joinURL builds the shareable link players scan to reach the room. Rooms
// with a converted document link straight to the playable page.
func (h *Handler) joinURL(r *http.Request, rm room.Room) string {
	base := strings.TrimSpace(h.cfg.PublicBaseURL)
	if base == "" {
		base = requestBaseURL(r)
	}
	if base == "" {
		return ""
	}
	link := strings.TrimRight(base, "/") + "/v1/rooms/" + rm.RoomID
	if rm.DocumentRef != "" {
		link += "/document"
	}
	return link
}

func requestBaseURL(r *http.Request) string {
	if r == nil || r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host
}

type createRoomRequest struct {
	RoomID          string          `json:"roomId,omitempty"`
	Kind            string          `json:"kind"`
	InitialState    json.RawMessage `json:"initialState,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	ValidatorSource string          `json:"validatorSource,omitempty"`
}

// handleCreateRoom creates a ready room directly, without a conversion run.
// An inline validator source is deployed to the sandbox before the room is
// persisted so a deploy failure never leaves a half-configured room.
func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeBody(w, r, h.cfg.MaxDocumentBytes, &req); err != nil {
		writeError(w, err)
		return
	}
	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		writeError(w, apperrors.New(apperrors.CodeInvalidKind, "kind is required"))
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
	} else if _, err := h.cfg.Store.GetRoom(r.Context(), roomID); err == nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidActionShape, "room id already exists"))
		return
	} else if apperrors.CodeOf(err) != apperrors.CodeRoomNotFound {
		writeError(w, err)
		return
	}

	rm := room.New(roomID, kind, req.InitialState, h.cfg.Now())
	if len(req.Metadata) > 0 {
		rm.Metadata = req.Metadata
	}

	if source := strings.TrimSpace(req.ValidatorSource); source != "" {
		if h.cfg.Deployer == nil {
			writeError(w, apperrors.New(apperrors.CodeValidatorDeployFailed, "no validator sandbox is configured"))
			return
		}
		ref, err := h.cfg.Deployer.Deploy(r.Context(), roomID, kind, source)
		if err != nil {
			writeError(w, err)
			return
		}
		rm.ValidatorRef = ref
	}

	if err := h.cfg.Store.PutRoom(r.Context(), rm); err != nil {
		log.Printf("create room %s: %v", roomID, err)
		writeError(w, apperrors.Wrap(apperrors.CodeStoreFailure, "create room", err))
		return
	}
	writeResult(w, http.StatusCreated, h.viewOf(rm, r))
}

type roomListView struct {
	Rooms         []roomView `json:"rooms"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	req := storage.ListRoomsRequest{
		Kind:      strings.TrimSpace(r.URL.Query().Get("kind")),
		PageToken: strings.TrimSpace(r.URL.Query().Get("pageToken")),
		PageSize:  defaultListPageSize,
	}
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			writeError(w, apperrors.New(apperrors.CodeInvalidActionShape, "pageSize must be a positive integer"))
			return
		}
		if size > maxListPageSize {
			size = maxListPageSize
		}
		req.PageSize = size
	}

	page, err := h.cfg.Store.ListRooms(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	view := roomListView{Rooms: make([]roomView, 0, len(page.Rooms)), NextPageToken: page.NextPageToken}
	for _, rm := range page.Rooms {
		view.Rooms = append(view.Rooms, h.viewOf(rm, r))
	}
	writeResult(w, http.StatusOK, view)
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	rm, err := h.cfg.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, h.viewOf(rm, r))
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	snap, err := h.cfg.Runtime.Snapshot(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, snap)
}

// handleRoomDocument serves the converted game page players load to join.
func (h *Handler) handleRoomDocument(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	rm, err := h.cfg.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rm.DocumentRef == "" {
		if rm.Conversion.Terminal() {
			writeError(w, apperrors.New(apperrors.CodeRoomNotFound, "room has no converted document"))
		} else {
			writeError(w, apperrors.New(apperrors.CodeRoomNotReady, "conversion has not finished"))
		}
		return
	}
	if h.cfg.Documents == nil {
		writeError(w, apperrors.New(apperrors.CodeUpstreamUnavailable, "no document source is configured"))
		return
	}
	document, err := h.cfg.Documents.Document(r.Context(), rm.DocumentRef)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, document)
}

// decodeBody reads a JSON body within the byte cap. Oversize bodies map to
// PAYLOAD_TOO_LARGE, malformed JSON to INVALID_ACTION_SHAPE.
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, into any) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	if err := json.NewDecoder(body).Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.New(apperrors.CodePayloadTooLarge, "request body exceeds the size cap")
		}
		return apperrors.Wrap(apperrors.CodeInvalidActionShape, "malformed request body", err)
	}
	return nil
}
