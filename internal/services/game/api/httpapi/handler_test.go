package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/davidvanstory/MultiplayerGame/internal/auth/token"
	"github.com/davidvanstory/MultiplayerGame/internal/bridge"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/registry"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/runtime"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage/sqlite"
)

func newTestServer(t *testing.T, mutate func(*Config)) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "rooms.sqlite"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	reg, err := registry.New(registry.Config{Store: store})
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	t.Cleanup(reg.Close)
	rt, err := runtime.New(runtime.Config{Store: store, Registry: reg})
	if err != nil {
		t.Fatalf("runtime.New() error = %v", err)
	}
	tokens, err := token.New(token.Config{Secret: []byte("0123456789abcdef")})
	if err != nil {
		t.Fatalf("token.New() error = %v", err)
	}

	cfg := Config{Store: store, Runtime: rt, Tokens: tokens}
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, raw
}

func createRoom(t *testing.T, srv *httptest.Server, body map[string]any) string {
	t.Helper()
	status, raw := doJSON(t, http.MethodPost, srv.URL+"/v1/rooms", body, nil)
	if status != http.StatusCreated {
		t.Fatalf("create room status = %d, body %s", status, raw)
	}
	roomID := gjson.GetBytes(raw, "result.roomId").String()
	if roomID == "" {
		t.Fatalf("create room returned no id: %s", raw)
	}
	return roomID
}

func provision(t *testing.T, srv *httptest.Server, roomID string) (playerID, bearer string) {
	t.Helper()
	status, raw := doJSON(t, http.MethodPost, srv.URL+"/v1/rooms/"+roomID+"/players", map[string]any{}, nil)
	if status != http.StatusCreated {
		t.Fatalf("provision status = %d, body %s", status, raw)
	}
	playerID = gjson.GetBytes(raw, "result.playerId").String()
	bearer = gjson.GetBytes(raw, "result.token").String()
	if playerID == "" || bearer == "" {
		t.Fatalf("provision response missing grant: %s", raw)
	}
	return playerID, bearer
}

func submit(t *testing.T, srv *httptest.Server, roomID, bearer string, body map[string]any) (int, []byte) {
	t.Helper()
	headers := map[string]string{}
	if bearer != "" {
		headers["Authorization"] = "Bearer " + bearer
	}
	return doJSON(t, http.MethodPost, srv.URL+"/v1/rooms/"+roomID+"/actions", body, headers)
}

func TestCreateAndFetchRoom(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	roomID := createRoom(t, srv, map[string]any{
		"kind":         "quiz",
		"initialState": map[string]any{"round": 1},
	})

	status, raw := doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/"+roomID, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("get room status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "result.phase").String(); got != "lobby" {
		t.Fatalf("phase = %q, want lobby", got)
	}
	if got := gjson.GetBytes(raw, "result.conversionStatus").String(); got != "complete" {
		t.Fatalf("conversionStatus = %q, want complete", got)
	}
	if got := gjson.GetBytes(raw, "result.state.round").Int(); got != 1 {
		t.Fatalf("state.round = %d, want 1", got)
	}
	if !strings.Contains(gjson.GetBytes(raw, "result.joinUrl").String(), "/v1/rooms/"+roomID) {
		t.Fatalf("joinUrl = %q", gjson.GetBytes(raw, "result.joinUrl").String())
	}

	status, raw = doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/"+roomID+"/snapshot", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("snapshot status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "result.kind").String(); got != "SNAPSHOT" {
		t.Fatalf("snapshot kind = %q", got)
	}
	if gjson.GetBytes(raw, "result.version").Int() == 0 {
		t.Fatal("snapshot missing version")
	}
}

func TestCreateRoomRequiresKind(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, raw := doJSON(t, http.MethodPost, srv.URL+"/v1/rooms", map[string]any{"initialState": map[string]any{}}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "error.code").String(); got != "INVALID_KIND" {
		t.Fatalf("code = %q, want INVALID_KIND", got)
	}
}

func TestCreateRoomDuplicateID(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	createRoom(t, srv, map[string]any{"roomId": "room-dup", "kind": "quiz"})
	status, raw := doJSON(t, http.MethodPost, srv.URL+"/v1/rooms", map[string]any{"roomId": "room-dup", "kind": "quiz"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", status, raw)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, raw := doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/room-none", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", status, raw)
	}
	if gjson.GetBytes(raw, "success").Bool() {
		t.Fatalf("expected failure envelope: %s", raw)
	}
	if got := gjson.GetBytes(raw, "error.code").String(); got != "ROOM_NOT_FOUND" {
		t.Fatalf("code = %q, want ROOM_NOT_FOUND", got)
	}
}

func TestListRoomsFiltersAndPaginates(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	createRoom(t, srv, map[string]any{"roomId": "room-a", "kind": "quiz"})
	createRoom(t, srv, map[string]any{"roomId": "room-b", "kind": "quiz"})
	createRoom(t, srv, map[string]any{"roomId": "room-c", "kind": "board"})

	status, raw := doJSON(t, http.MethodGet, srv.URL+"/v1/rooms?kind=quiz", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d, body %s", status, raw)
	}
	if got := len(gjson.GetBytes(raw, "result.rooms").Array()); got != 2 {
		t.Fatalf("quiz rooms = %d, want 2: %s", got, raw)
	}

	status, raw = doJSON(t, http.MethodGet, srv.URL+"/v1/rooms?pageSize=2", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("page status = %d", status)
	}
	next := gjson.GetBytes(raw, "result.nextPageToken").String()
	if next == "" {
		t.Fatalf("expected next page token: %s", raw)
	}
	status, raw = doJSON(t, http.MethodGet, srv.URL+"/v1/rooms?pageSize=2&pageToken="+next, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("second page status = %d", status)
	}
	if got := len(gjson.GetBytes(raw, "result.rooms").Array()); got != 1 {
		t.Fatalf("second page rooms = %d, want 1: %s", got, raw)
	}
}

func TestProvisionAndSubmitFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})

	playerID, bearer := provision(t, srv, roomID)

	status, raw := submit(t, srv, roomID, bearer, map[string]any{"type": "JOIN"})
	if status != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", status, raw)
	}
	if !gjson.GetBytes(raw, "success").Bool() || !gjson.GetBytes(raw, "result.accepted").Bool() {
		t.Fatalf("submit result: %s", raw)
	}
	if got := gjson.GetBytes(raw, "result.players.0.playerId").String(); got != playerID {
		t.Fatalf("joined player = %q, want %q", got, playerID)
	}
	if got := gjson.GetBytes(raw, "result.broadcast.kind").String(); got != "PLAYER_JOINED" {
		t.Fatalf("broadcast kind = %q", got)
	}
}

func TestSubmitRejectionEnvelope(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})
	_, bearer := provision(t, srv, roomID)

	if status, raw := submit(t, srv, roomID, bearer, map[string]any{"type": "JOIN"}); status != http.StatusOK {
		t.Fatalf("first join status = %d, body %s", status, raw)
	}
	status, raw := submit(t, srv, roomID, bearer, map[string]any{"type": "JOIN"})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate join status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "error.code").String(); got != "DUPLICATE_PLAYER" {
		t.Fatalf("code = %q, want DUPLICATE_PLAYER", got)
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})
	other := createRoom(t, srv, map[string]any{"kind": "quiz"})
	_, bearer := provision(t, srv, other)

	status, raw := submit(t, srv, roomID, "", map[string]any{"type": "JOIN"})
	if status != http.StatusUnauthorized {
		t.Fatalf("missing auth status = %d, body %s", status, raw)
	}

	// A token for another room does not transfer.
	status, raw = submit(t, srv, roomID, bearer, map[string]any{"type": "JOIN"})
	if status != http.StatusUnauthorized {
		t.Fatalf("cross-room auth status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "error.code").String(); got != "UNAUTHENTICATED" {
		t.Fatalf("code = %q, want UNAUTHENTICATED", got)
	}
}

func TestSubmitPayloadTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *Config) {
		cfg.MaxActionBytes = 256
	})
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})
	_, bearer := provision(t, srv, roomID)

	status, raw := submit(t, srv, roomID, bearer, map[string]any{
		"type": "UPDATE",
		"data": map[string]any{"blob": strings.Repeat("x", 1024)},
	})
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "error.code").String(); got != "PAYLOAD_TOO_LARGE" {
		t.Fatalf("code = %q, want PAYLOAD_TOO_LARGE", got)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *Config) {
		cfg.ActionRateLimit = rate.Limit(1)
		cfg.ActionRateBurst = 1
	})
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})
	_, bearer := provision(t, srv, roomID)

	if status, raw := submit(t, srv, roomID, bearer, map[string]any{"type": "JOIN"}); status != http.StatusOK {
		t.Fatalf("first submit status = %d, body %s", status, raw)
	}
	status, raw := submit(t, srv, roomID, bearer, map[string]any{"type": "START"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("second submit status = %d, body %s", status, raw)
	}
	if !gjson.GetBytes(raw, "error.retryable").Bool() {
		t.Fatalf("rate limit must be retryable: %s", raw)
	}
}

func TestEventIngest(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})

	envelope := map[string]any{
		"source": "GameEventBridge",
		"roomId": roomID,
		"events": []map[string]any{
			{"kind": "TRANSITION", "metadata": map[string]any{"roomId": roomID, "sessionId": "s1", "timestamp": 1, "sequenceNumber": 1}},
			{"kind": "UPDATE", "scope": "local", "metadata": map[string]any{"roomId": roomID, "sessionId": "s1", "timestamp": 2, "sequenceNumber": 2}},
		},
	}
	status, raw := doJSON(t, http.MethodPost, srv.URL+"/v1/rooms/"+roomID+"/events", envelope, nil)
	if status != http.StatusAccepted {
		t.Fatalf("ingest status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "result.accepted").Int(); got != 2 {
		t.Fatalf("accepted = %d, want 2", got)
	}

	envelope["roomId"] = "room-other"
	status, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/rooms/"+roomID+"/events", envelope, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("mismatched ingest status = %d", status)
	}
}

// TestEmitterDrivesIngestRoute runs the bridge emitter against the real
// ingest endpoint so the envelopes it batches always stay parseable by the
// server side of the contract.
func TestEmitterDrivesIngestRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})

	var accepted atomic.Int64
	em := bridge.NewEmitter(bridge.Config{
		RoomID:    roomID,
		PlayerID:  "p1",
		SessionID: "s1",
		Send: func(ctx context.Context, env bridge.Envelope) error {
			raw, err := json.Marshal(env)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/v1/rooms/"+roomID+"/events", bytes.NewReader(raw))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("ingest status %d: %s", resp.StatusCode, body)
			}
			accepted.Add(gjson.GetBytes(body, "result.accepted").Int())
			return nil
		},
	})

	var sendFailures atomic.Int64
	if _, err := em.On(string(bridge.KindError), func(bridge.HostMessage) { sendFailures.Add(1) }); err != nil {
		t.Fatalf("subscribe errors: %v", err)
	}

	if _, err := em.Emit(bridge.KindTransition, json.RawMessage(`{"to":"playing"}`), bridge.EmitOptions{HighPriority: true}); err != nil {
		t.Fatalf("emit transition: %v", err)
	}
	if _, err := em.Emit(bridge.KindUpdate, json.RawMessage(`{"score":1}`), bridge.EmitOptions{Scope: bridge.ScopeLocal}); err != nil {
		t.Fatalf("emit update: %v", err)
	}
	if _, err := em.Emit(bridge.KindInteraction, json.RawMessage(`{"element":"btn"}`), bridge.EmitOptions{}); err != nil {
		t.Fatalf("emit interaction: %v", err)
	}
	em.Destroy()

	if got := accepted.Load(); got != 3 {
		t.Fatalf("ingested events = %d, want 3", got)
	}
	if n := sendFailures.Load(); n != 0 {
		t.Fatalf("send failures = %d, want 0", n)
	}
}

func TestRoomQR(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})

	resp, err := http.Get(srv.URL + "/v1/rooms/" + roomID + "/qr")
	if err != nil {
		t.Fatalf("qr request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("qr status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %q", got)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read qr: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatal("response is not a PNG")
	}

	status, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/room-none/qr", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown room qr status = %d", status)
	}
}

type stubDocuments map[string]string

func (s stubDocuments) Document(_ context.Context, ref string) (string, error) {
	page, ok := s[ref]
	if !ok {
		return "", storage.ErrNotFound
	}
	return page, nil
}

func TestRoomDocument(t *testing.T) {
	docs := stubDocuments{"doc:abc": `<!DOCTYPE html><html><body data-mp-state="status">game</body></html>`}
	srv, store := newTestServer(t, func(cfg *Config) {
		cfg.Documents = docs
	})
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})

	// A directly created room never gets a converted page.
	status, raw := doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/"+roomID+"/document", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("bare room document status = %d, body %s", status, raw)
	}

	rm, err := store.GetRoom(context.Background(), roomID)
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	expected := rm.Version
	rm.DocumentRef = "doc:abc"
	rm.Version = room.NextVersion(rm.Version, time.Now())
	if err := store.UpdateRoom(context.Background(), rm, expected); err != nil {
		t.Fatalf("UpdateRoom() error = %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/rooms/" + roomID + "/document")
	if err != nil {
		t.Fatalf("document request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("document status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Fatalf("content type = %q", got)
	}
	page, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if !strings.Contains(string(page), "data-mp-state") {
		t.Fatalf("document body = %q", page)
	}

	// The join link now lands on the playable page.
	status, raw = doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/"+roomID, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("get room status = %d", status)
	}
	if got := gjson.GetBytes(raw, "result.joinUrl").String(); !strings.HasSuffix(got, "/v1/rooms/"+roomID+"/document") {
		t.Fatalf("joinUrl = %q", got)
	}
	if got := gjson.GetBytes(raw, "result.documentRef").String(); got != "doc:abc" {
		t.Fatalf("documentRef = %q", got)
	}
}

func TestRoomDocumentNotReady(t *testing.T) {
	srv, store := newTestServer(t, nil)
	if err := store.PutRoom(context.Background(), room.NewPending("room-pend", time.Now())); err != nil {
		t.Fatalf("PutRoom() error = %v", err)
	}

	status, raw := doJSON(t, http.MethodGet, srv.URL+"/v1/rooms/room-pend/document", nil, nil)
	if status != http.StatusConflict {
		t.Fatalf("status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "error.code").String(); got != "ROOM_NOT_READY" {
		t.Fatalf("code = %q, want ROOM_NOT_READY", got)
	}
}

type stubConversions struct {
	tickets map[string]ConversionTicket
}

func (s *stubConversions) RequestConversion(_ context.Context, roomID string, document []byte) (ConversionTicket, error) {
	if len(document) == 0 {
		return ConversionTicket{}, fmt.Errorf("empty document")
	}
	ticket := ConversionTicket{RoomID: roomID, Status: "pending"}
	s.tickets[roomID] = ticket
	return ticket, nil
}

func (s *stubConversions) ConversionStatus(_ context.Context, roomID string) (ConversionTicket, error) {
	ticket, ok := s.tickets[roomID]
	if !ok {
		return ConversionTicket{}, storage.ErrNotFound
	}
	return ticket, nil
}

func TestConversionEndpoints(t *testing.T) {
	stub := &stubConversions{tickets: map[string]ConversionTicket{}}
	srv, _ := newTestServer(t, func(cfg *Config) {
		cfg.Conversions = stub
	})

	status, raw := doJSON(t, http.MethodPost, srv.URL+"/v1/conversions", map[string]any{
		"roomId":   "room-conv",
		"document": "<html><body>game</body></html>",
	}, nil)
	if status != http.StatusAccepted {
		t.Fatalf("request status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "result.status").String(); got != "pending" {
		t.Fatalf("status = %q, want pending", got)
	}

	status, raw = doJSON(t, http.MethodGet, srv.URL+"/v1/conversions/room-conv", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("status fetch = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "result.roomId").String(); got != "room-conv" {
		t.Fatalf("ticket room = %q", got)
	}

	status, raw = doJSON(t, http.MethodPost, srv.URL+"/v1/conversions", map[string]any{"document": ""}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("empty document status = %d, body %s", status, raw)
	}
}

func TestConversionUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/conversions", map[string]any{"document": "<html></html>"}, nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
}

func TestUpAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, raw := doJSON(t, http.MethodGet, srv.URL+"/up", nil, nil)
	if status != http.StatusOK || string(raw) != "OK" {
		t.Fatalf("up = %d %q", status, raw)
	}

	status, raw = doJSON(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	if !strings.Contains(string(raw), "multiplayergame") {
		t.Fatal("metrics exposition missing namespace")
	}
}

func TestProvisionEndedRoomRejected(t *testing.T) {
	srv, store := newTestServer(t, nil)
	roomID := createRoom(t, srv, map[string]any{"kind": "quiz"})

	rm, err := store.GetRoom(context.Background(), roomID)
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	expected := rm.Version
	rm.Phase = room.PhaseEnded
	rm.Version = room.NextVersion(rm.Version, time.Now())
	if err := store.UpdateRoom(context.Background(), rm, expected); err != nil {
		t.Fatalf("UpdateRoom() error = %v", err)
	}

	status, raw := doJSON(t, http.MethodPost, srv.URL+"/v1/rooms/"+roomID+"/players", map[string]any{}, nil)
	if status != http.StatusConflict {
		t.Fatalf("status = %d, body %s", status, raw)
	}
	if got := gjson.GetBytes(raw, "error.code").String(); got != "ROOM_TERMINATED" {
		t.Fatalf("code = %q, want ROOM_TERMINATED", got)
	}
}
