package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/davidvanstory/MultiplayerGame/internal/auth/token"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/action"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/broadcast"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/registry"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/runtime"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
)

const (
	defaultMaxActionBytes   = 64 << 10
	defaultMaxDocumentBytes = 2 << 20
	defaultRateLimit        = rate.Limit(20)
	defaultRateBurst        = 40
)

// GameRuntime is the slice of the session runtime the transport needs.
type GameRuntime interface {
	Submit(ctx context.Context, roomID string, act action.Action) (runtime.SubmitResult, error)
	Snapshot(ctx context.Context, roomID string) (broadcast.Message, error)
	Subscribe(ctx context.Context, roomID string) (broadcast.Message, *registry.Subscription, error)
}

// ConversionTicket reports the state of one conversion, keyed by room.
type ConversionTicket struct {
	RoomID string `json:"roomId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Conversions starts and reports document conversions. The converter
// pipeline provides the implementation; the app layer adapts it here.
type Conversions interface {
	RequestConversion(ctx context.Context, roomID string, document []byte) (ConversionTicket, error)
	ConversionStatus(ctx context.Context, roomID string) (ConversionTicket, error)
}

// ValidatorDeployer installs a validator source for a room and returns its
// opaque ref. The sandbox host provides the implementation.
type ValidatorDeployer interface {
	Deploy(ctx context.Context, roomID, kind, source string) (string, error)
}

// DocumentSource fetches a published conversion document by ref. The
// converter's artifact store backs it in process, the converter client when
// the converter runs remotely.
type DocumentSource interface {
	Document(ctx context.Context, ref string) (string, error)
}

// Config wires the transport's dependencies.
type Config struct {
	Store   storage.RoomStore
	Runtime GameRuntime
	Tokens  *token.Issuer

	// Conversions enables the /v1/conversions endpoints when set.
	Conversions Conversions
	// Deployer enables inline validator sources on room creation when set.
	Deployer ValidatorDeployer
	// Documents serves converted game pages when set.
	Documents DocumentSource

	// PublicBaseURL overrides request-derived URLs in QR payloads and
	// room views, for deployments behind a proxy that strips Forwarded
	// headers.
	PublicBaseURL string

	// ActionRateLimit caps sustained submits per client. Defaults to
	// 20/s with burst 40.
	ActionRateLimit rate.Limit
	ActionRateBurst int

	// MaxActionBytes caps action request bodies. Defaults to 64KiB.
	MaxActionBytes int64
	// MaxDocumentBytes caps conversion documents. Defaults to 2MiB.
	MaxDocumentBytes int64

	Now func() time.Time
}

func (c Config) normalized() Config {
	if c.ActionRateLimit <= 0 {
		c.ActionRateLimit = defaultRateLimit
	}
	if c.ActionRateBurst <= 0 {
		c.ActionRateBurst = defaultRateBurst
	}
	if c.MaxActionBytes <= 0 {
		c.MaxActionBytes = defaultMaxActionBytes
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Handler serves the game HTTP API.
type Handler struct {
	cfg    Config
	mux    *http.ServeMux
	limits *clientLimits
}

// New builds the route table.
func New(cfg Config) (*Handler, error) {
	cfg = cfg.normalized()
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Runtime == nil {
		return nil, errors.New("runtime is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}

	h := &Handler{
		cfg:    cfg,
		limits: newClientLimits(cfg.ActionRateLimit, cfg.ActionRateBurst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle(http.MethodGet+" /metrics", metrics.Handler())

	mux.HandleFunc(http.MethodPost+" /v1/rooms", h.instrument("create_room", h.handleCreateRoom))
	mux.HandleFunc(http.MethodGet+" /v1/rooms", h.instrument("list_rooms", h.handleListRooms))
	mux.HandleFunc(http.MethodGet+" /v1/rooms/{roomID}", h.instrument("get_room", h.handleGetRoom))
	mux.HandleFunc(http.MethodGet+" /v1/rooms/{roomID}/snapshot", h.instrument("snapshot", h.handleSnapshot))
	mux.HandleFunc(http.MethodGet+" /v1/rooms/{roomID}/document", h.instrument("room_document", h.handleRoomDocument))
	mux.HandleFunc(http.MethodGet+" /v1/rooms/{roomID}/qr", h.instrument("room_qr", h.handleRoomQR))
	mux.HandleFunc(http.MethodPost+" /v1/rooms/{roomID}/players", h.instrument("provision_player", h.handleProvisionPlayer))
	mux.HandleFunc(http.MethodPost+" /v1/rooms/{roomID}/actions", h.instrument("submit_action", h.handleSubmitAction))
	mux.HandleFunc(http.MethodPost+" /v1/rooms/{roomID}/events", h.instrument("ingest_events", h.handleIngestEvents))
	mux.HandleFunc(http.MethodPost+" /v1/conversions", h.instrument("request_conversion", h.handleRequestConversion))
	mux.HandleFunc(http.MethodGet+" /v1/conversions/{roomID}", h.instrument("conversion_status", h.handleConversionStatus))

	// The websocket route bypasses instrumentation: the status recorder
	// would hide the Hijacker the upgrade needs.
	mux.Handle(http.MethodGet+" /v1/ws", websocket.Handler(h.handleWS))

	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}
