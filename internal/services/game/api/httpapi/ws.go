package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/action"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/registry"
)

const (
	wsMaxFramePayloadBytes = 64 << 10
	wsMaxFramesPerSecond   = 40
	wsMaxDecodeErrors      = 3
)

// Websocket frame types.
const (
	wsSubscribe    = "room.subscribe"
	wsSubmit       = "room.submit"
	wsUnsubscribe  = "room.unsubscribe"
	wsSnapshot     = "room.snapshot"
	wsBroadcast    = "room.broadcast"
	wsResult       = "room.result"
	wsUnsubscribed = "room.unsubscribed"
	wsClosed       = "room.closed"
	wsError        = "room.error"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token,omitempty"`
}

type wsSubmitPayload struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	ClientSeq *int64          `json:"clientSeq,omitempty"`
}

type wsErrorEnvelope struct {
	Error errorBody `json:"error"`
}

// wsPeer serializes frame writes from the read loop and broadcast pumps.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func (p *wsPeer) writeError(requestID string, code apperrors.Code, message string) error {
	return p.writeFrame(wsFrame{
		Type:      wsError,
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{Error: errorBody{
			Code:      string(code),
			Message:   message,
			Retryable: code.Retryable(),
		}}),
	})
}

func (p *wsPeer) writeAppError(requestID string, err error) error {
	code := apperrors.CodeOf(err)
	message := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	return p.writeError(requestID, code, message)
}

// wsSession tracks the single room a socket is attached to.
type wsSession struct {
	mu       sync.Mutex
	peer     *wsPeer
	roomID   string
	playerID string
	sub      *registry.Subscription
}

// replace swaps the active subscription, closing the previous one so its
// pump exits.
func (s *wsSession) replace(roomID, playerID string, sub *registry.Subscription) {
	s.mu.Lock()
	previous := s.sub
	s.roomID = roomID
	s.playerID = playerID
	s.sub = sub
	s.mu.Unlock()
	previous.Close()
}

func (s *wsSession) unsubscribe() {
	s.replace("", "", nil)
}

func (s *wsSession) current() (roomID, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.playerID
}

func (s *wsSession) isCurrent(sub *registry.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub == sub
}

func (h *Handler) handleWS(conn *websocket.Conn) {
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	session := &wsSession{peer: newWSPeer(json.NewEncoder(conn))}
	defer session.unsubscribe()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = session.peer.writeError("", apperrors.CodeInvalidActionShape, "invalid frame payload")
			if decodeErrors >= wsMaxDecodeErrors {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > wsMaxFramePayloadBytes {
			_ = session.peer.writeError(frame.RequestID, apperrors.CodePayloadTooLarge, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > wsMaxFramesPerSecond {
			_ = session.peer.writeError(frame.RequestID, apperrors.CodeRateLimited, "rate limit exceeded")
			return
		}

		switch frame.Type {
		case wsSubscribe:
			h.wsHandleSubscribe(ctx, session, frame)
		case wsSubmit:
			h.wsHandleSubmit(ctx, session, frame)
		case wsUnsubscribe:
			session.unsubscribe()
			_ = session.peer.writeFrame(wsFrame{Type: wsUnsubscribed, RequestID: frame.RequestID})
		default:
			_ = session.peer.writeError(frame.RequestID, apperrors.CodeInvalidActionShape, "unsupported frame type")
		}
	}
}

func (h *Handler) wsHandleSubscribe(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload wsSubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = session.peer.writeError(frame.RequestID, apperrors.CodeInvalidActionShape, "invalid subscribe payload")
		return
	}
	roomID := strings.TrimSpace(payload.RoomID)
	if roomID == "" {
		_ = session.peer.writeError(frame.RequestID, apperrors.CodeInvalidActionShape, "roomId is required")
		return
	}

	// A token binds the socket to a player and enables submits. Without
	// one the socket is a read-only spectator.
	playerID := ""
	if rawToken := strings.TrimSpace(payload.Token); rawToken != "" {
		tokenRoom, p, err := h.cfg.Tokens.Verify(rawToken)
		if err != nil {
			_ = session.peer.writeAppError(frame.RequestID, err)
			return
		}
		if tokenRoom != roomID {
			_ = session.peer.writeError(frame.RequestID, apperrors.CodeUnauthenticated, "token is not valid for this room")
			return
		}
		playerID = p
	}

	snap, sub, err := h.cfg.Runtime.Subscribe(ctx, roomID)
	if err != nil {
		_ = session.peer.writeAppError(frame.RequestID, err)
		return
	}
	session.replace(roomID, playerID, sub)

	if err := session.peer.writeFrame(wsFrame{Type: wsSnapshot, RequestID: frame.RequestID, Payload: mustJSON(snap)}); err != nil {
		session.unsubscribe()
		return
	}
	go session.pump(sub)
}

// pump forwards hub broadcasts to the socket until the subscription
// closes. It starts after the snapshot write, preserving snapshot-first
// ordering; the peer mutex interleaves its frames safely with replies.
func (s *wsSession) pump(sub *registry.Subscription) {
	for msg := range sub.Events() {
		if err := s.peer.writeFrame(wsFrame{Type: wsBroadcast, Payload: mustJSON(msg)}); err != nil {
			sub.Close()
			return
		}
	}
	// Channel closed under us: if this subscription is still the active
	// one, the room was torn down.
	if s.isCurrent(sub) {
		_ = s.peer.writeFrame(wsFrame{Type: wsClosed})
	}
}

func (h *Handler) wsHandleSubmit(ctx context.Context, session *wsSession, frame wsFrame) {
	roomID, playerID := session.current()
	if roomID == "" {
		_ = session.peer.writeError(frame.RequestID, apperrors.CodeInvalidActionShape, "subscribe to a room before submitting")
		return
	}
	if playerID == "" {
		_ = session.peer.writeError(frame.RequestID, apperrors.CodeUnauthenticated, "subscribe with a player token to submit")
		return
	}

	var payload wsSubmitPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = session.peer.writeError(frame.RequestID, apperrors.CodeInvalidActionShape, "invalid submit payload")
		return
	}

	if !h.limits.allow(playerID+"@"+roomID, h.cfg.Now()) {
		metrics.RateLimitRejections.WithLabelValues("ws_submit").Inc()
		_ = session.peer.writeError(frame.RequestID, apperrors.CodeRateLimited, "too many actions, slow down")
		return
	}

	res, err := h.cfg.Runtime.Submit(ctx, roomID, action.Action{
		Type:      payload.Type,
		PlayerID:  playerID,
		Data:      payload.Data,
		ClientSeq: payload.ClientSeq,
	})
	if err != nil {
		_ = session.peer.writeAppError(frame.RequestID, err)
		return
	}
	_ = session.peer.writeFrame(wsFrame{Type: wsResult, RequestID: frame.RequestID, Payload: mustJSON(submitViewOf(res))})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
