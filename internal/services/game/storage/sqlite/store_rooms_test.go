package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rooms.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open room store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close room store: %v", err)
		}
	})
	return store
}

func seedRoom(t *testing.T, store *Store, roomID string, now time.Time) room.Room {
	t.Helper()
	r := room.New(roomID, "counter-turn-based", json.RawMessage(`{"counter":0}`), now)
	if err := store.PutRoom(context.Background(), r); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return r
}

func TestRoomPutGet(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	expected := room.Room{
		RoomID:         "room-crud",
		Kind:           "board-3x3-turn-based",
		DocumentRef:    "doc-abc",
		ValidatorRef:   "lua-def",
		State:          json.RawMessage(`{"phase":"lobby","board":{}}`),
		Players:        room.Roster{{PlayerID: "p1", JoinedAt: now, Active: true}},
		Metadata:       json.RawMessage(`{"maxPlayers":2}`),
		Version:        now.UnixMilli(),
		Phase:          room.PhaseLobby,
		Conversion:     room.ConversionComplete,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}

	if err := store.PutRoom(context.Background(), expected); err != nil {
		t.Fatalf("put room: %v", err)
	}

	got, err := store.GetRoom(context.Background(), expected.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}

	if got.RoomID != expected.RoomID || got.Kind != expected.Kind {
		t.Fatalf("expected room identity to match")
	}
	if got.DocumentRef != expected.DocumentRef || got.ValidatorRef != expected.ValidatorRef {
		t.Fatalf("expected artifact refs to match")
	}
	if string(got.State) != string(expected.State) {
		t.Fatalf("state = %s, want %s", got.State, expected.State)
	}
	if string(got.Metadata) != string(expected.Metadata) {
		t.Fatalf("metadata = %s, want %s", got.Metadata, expected.Metadata)
	}
	if got.Version != expected.Version || got.Phase != expected.Phase || got.Conversion != expected.Conversion {
		t.Fatalf("expected room lifecycle fields to match")
	}
	if len(got.Players) != 1 || got.Players[0].PlayerID != "p1" || !got.Players[0].Active {
		t.Fatalf("players = %+v, want seeded roster", got.Players)
	}
	if !got.Players[0].JoinedAt.Equal(now) {
		t.Fatalf("joined at = %v, want %v", got.Players[0].JoinedAt, now)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) || !got.LastActivityAt.Equal(now) {
		t.Fatalf("expected room timestamps to match")
	}
}

func TestRoomGetMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRoom(context.Background(), "room-absent")
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoomUpdateGuardsVersion(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seeded := seedRoom(t, store, "room-guard", now)

	next := seeded
	next.State = json.RawMessage(`{"counter":1}`)
	next.Version = room.NextVersion(seeded.Version, now.Add(time.Second))
	next.UpdatedAt = now.Add(time.Second)
	next.LastActivityAt = now.Add(time.Second)

	if err := store.UpdateRoom(context.Background(), next, seeded.Version); err != nil {
		t.Fatalf("update room: %v", err)
	}

	got, err := store.GetRoom(context.Background(), "room-guard")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if string(got.State) != `{"counter":1}` {
		t.Fatalf("state = %s, want applied update", got.State)
	}
	if got.Version != next.Version {
		t.Fatalf("version = %d, want %d", got.Version, next.Version)
	}

	// A writer still holding the old version must lose.
	stale := seeded
	stale.State = json.RawMessage(`{"counter":99}`)
	stale.Version = room.NextVersion(seeded.Version, now.Add(2*time.Second))
	err = store.UpdateRoom(context.Background(), stale, seeded.Version)
	if err == nil || !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, err = store.GetRoom(context.Background(), "room-guard")
	if err != nil {
		t.Fatalf("get room after conflict: %v", err)
	}
	if string(got.State) != `{"counter":1}` {
		t.Fatalf("conflicting write must not change state, got %s", got.State)
	}
}

func TestRoomUpdateMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	r := room.New("room-ghost", "quiz", nil, now)
	err := store.UpdateRoom(context.Background(), r, r.Version)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoomListFiltersByKindAndPaginates(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r := room.New(fmt.Sprintf("room-quiz-%d", i), "quiz", nil, now)
		if err := store.PutRoom(context.Background(), r); err != nil {
			t.Fatalf("put quiz room: %v", err)
		}
	}
	other := room.New("room-racing-0", "racing", nil, now)
	if err := store.PutRoom(context.Background(), other); err != nil {
		t.Fatalf("put racing room: %v", err)
	}

	page, err := store.ListRooms(context.Background(), storage.ListRoomsRequest{
		Kind:     "quiz",
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(page.Rooms) != 2 {
		t.Fatalf("first page size = %d, want 2", len(page.Rooms))
	}
	if page.NextPageToken == "" {
		t.Fatal("expected next page token on first page")
	}
	for _, r := range page.Rooms {
		if r.Kind != "quiz" {
			t.Fatalf("kind = %q, want quiz", r.Kind)
		}
	}

	rest, err := store.ListRooms(context.Background(), storage.ListRoomsRequest{
		Kind:      "quiz",
		PageSize:  2,
		PageToken: page.NextPageToken,
	})
	if err != nil {
		t.Fatalf("list rooms second page: %v", err)
	}
	if len(rest.Rooms) != 1 {
		t.Fatalf("second page size = %d, want 1", len(rest.Rooms))
	}
	if rest.NextPageToken != "" {
		t.Fatalf("expected empty token on final page, got %q", rest.NextPageToken)
	}
	if rest.Rooms[0].RoomID == page.Rooms[0].RoomID || rest.Rooms[0].RoomID == page.Rooms[1].RoomID {
		t.Fatal("pages must not overlap")
	}
}

func TestRoomDeleteIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	seedRoom(t, store, "room-del", now)

	if err := store.DeleteRoom(context.Background(), "room-del"); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	_, err := store.GetRoom(context.Background(), "room-del")
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteRoom(context.Background(), "room-del"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestRoomListExpired(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	ended := room.New("room-ended", "quiz", nil, now.Add(-3*time.Hour))
	ended.Phase = room.PhaseEnded
	ended.LastActivityAt = now.Add(-2 * time.Hour)
	if err := store.PutRoom(context.Background(), ended); err != nil {
		t.Fatalf("put ended room: %v", err)
	}

	stale := room.NewPending("room-stale", now.Add(-2*time.Hour))
	if err := store.PutRoom(context.Background(), stale); err != nil {
		t.Fatalf("put stale room: %v", err)
	}

	live := seedRoom(t, store, "room-live", now)
	_ = live

	ids, err := store.ListExpiredRooms(context.Background(), now.Add(-time.Hour), now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list expired rooms: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expired ids = %v, want room-ended and room-stale", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["room-ended"] || !seen["room-stale"] {
		t.Fatalf("expired ids = %v, want room-ended and room-stale", ids)
	}
}

func TestRoomStoreNilSafety(t *testing.T) {
	var store *Store

	if err := store.Close(); err != nil {
		t.Fatalf("nil store close: %v", err)
	}
	if err := store.PutRoom(context.Background(), room.Room{RoomID: "x"}); err == nil {
		t.Fatal("expected error from nil store put")
	}
	if _, err := store.GetRoom(context.Background(), "x"); err == nil {
		t.Fatal("expected error from nil store get")
	}
}
