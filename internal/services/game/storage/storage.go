package storage

import (
	"context"
	"time"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
)

// ErrNotFound indicates a requested room record is missing.
// Callers use this to differentiate between legitimate "no such room" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeRoomNotFound, "room not found")

// ErrVersionConflict indicates a guarded update observed a version other than
// the one the caller read. The caller should reload the room and retry.
var ErrVersionConflict = apperrors.New(apperrors.CodeStoreFailure, "room version conflict")

// ListRoomsRequest describes filters for room listing queries.
type ListRoomsRequest struct {
	// Kind restricts results to rooms of one game kind when non-empty.
	Kind string
	// PageSize is the maximum number of rooms to return.
	PageSize int
	// PageToken resumes listing after the room id it names.
	PageToken string
}

// RoomPage describes a page of room records.
type RoomPage struct {
	Rooms         []room.Room
	NextPageToken string
}

// RoomStore owns authoritative room state: identity, lifecycle, the opaque
// game state document, and the roster.
type RoomStore interface {
	// PutRoom inserts a new room record.
	PutRoom(ctx context.Context, r room.Room) error
	// GetRoom retrieves a room by id. Returns ErrNotFound when absent.
	GetRoom(ctx context.Context, roomID string) (room.Room, error)
	// UpdateRoom atomically replaces the stored record with r, but only when
	// the stored version equals expectedVersion. Returns ErrVersionConflict
	// when another writer got there first and ErrNotFound when the room is
	// gone.
	UpdateRoom(ctx context.Context, r room.Room, expectedVersion int64) error
	// ListRooms returns a page of rooms ordered by id.
	ListRooms(ctx context.Context, req ListRoomsRequest) (RoomPage, error)
	// DeleteRoom removes a room record. Deleting an absent room is not an
	// error.
	DeleteRoom(ctx context.Context, roomID string) error
	// ListExpiredRooms returns ids of rooms eligible for garbage collection:
	// ended rooms whose last activity predates endedBefore, and rooms whose
	// conversion never reached a terminal status before staleBefore.
	ListExpiredRooms(ctx context.Context, endedBefore, staleBefore time.Time, limit int) ([]string, error)
}

// Store is the composite persistence interface the game service wires at
// startup.
type Store interface {
	RoomStore
	Close() error
}
