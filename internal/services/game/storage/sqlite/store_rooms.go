package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
)

const roomColumns = "id, kind, document_ref, validator_ref, state, players, metadata, version, phase, conversion_status, conversion_error, created_at, updated_at, last_activity_at"

// PutRoom inserts a new room record.
func (s *Store) PutRoom(ctx context.Context, r room.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(r.RoomID) == "" {
		return fmt.Errorf("room id is required")
	}

	state, players, metadata, err := encodeRoomDocuments(r)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO rooms (`+roomColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RoomID,
		r.Kind,
		r.DocumentRef,
		r.ValidatorRef,
		state,
		players,
		metadata,
		r.Version,
		string(r.Phase),
		string(r.Conversion),
		r.ConversionError,
		toMillis(r.CreatedAt),
		toMillis(r.UpdatedAt),
		toMillis(r.LastActivityAt),
	)
	if err != nil {
		return fmt.Errorf("put room: %w", err)
	}
	return nil
}

// GetRoom fetches a room record by id.
func (s *Store) GetRoom(ctx context.Context, roomID string) (room.Room, error) {
	if err := ctx.Err(); err != nil {
		return room.Room{}, err
	}
	if s == nil || s.sqlDB == nil {
		return room.Room{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(roomID) == "" {
		return room.Room{}, fmt.Errorf("room id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+roomColumns+`
FROM rooms
WHERE id = ?`, roomID)

	r, err := scanRoom(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.Room{}, storage.ErrNotFound
		}
		return room.Room{}, fmt.Errorf("get room: %w", err)
	}
	return r, nil
}

// UpdateRoom atomically replaces the stored record guarded by the version the
// caller read. All mutable fields land in one statement so concurrent readers
// never observe a partially applied action.
func (s *Store) UpdateRoom(ctx context.Context, r room.Room, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(r.RoomID) == "" {
		return fmt.Errorf("room id is required")
	}

	state, players, metadata, err := encodeRoomDocuments(r)
	if err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE rooms
SET kind = ?,
    document_ref = ?,
    validator_ref = ?,
    state = ?,
    players = ?,
    metadata = ?,
    version = ?,
    phase = ?,
    conversion_status = ?,
    conversion_error = ?,
    updated_at = ?,
    last_activity_at = ?
WHERE id = ? AND version = ?`,
		r.Kind,
		r.DocumentRef,
		r.ValidatorRef,
		state,
		players,
		metadata,
		r.Version,
		string(r.Phase),
		string(r.Conversion),
		r.ConversionError,
		toMillis(r.UpdatedAt),
		toMillis(r.LastActivityAt),
		r.RoomID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update room rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var found int
	err = s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, r.RoomID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update room lookup: %w", err)
	}
	return storage.ErrVersionConflict
}

// ListRooms returns a page of rooms ordered by id.
func (s *Store) ListRooms(ctx context.Context, req storage.ListRoomsRequest) (storage.RoomPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoomPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RoomPage{}, fmt.Errorf("storage is not configured")
	}
	if req.PageSize <= 0 {
		return storage.RoomPage{}, fmt.Errorf("page size must be greater than zero")
	}

	query := `
SELECT ` + roomColumns + `
FROM rooms
WHERE id > ?`
	args := []any{req.PageToken}
	if req.Kind != "" {
		query += " AND kind = ?"
		args = append(args, req.Kind)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, req.PageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.RoomPage{}, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	page := storage.RoomPage{
		Rooms: make([]room.Room, 0, req.PageSize),
	}
	for rows.Next() {
		r, err := scanRoom(rows.Scan)
		if err != nil {
			return storage.RoomPage{}, fmt.Errorf("scan room: %w", err)
		}
		if len(page.Rooms) >= req.PageSize {
			page.NextPageToken = page.Rooms[req.PageSize-1].RoomID
			break
		}
		page.Rooms = append(page.Rooms, r)
	}
	if err := rows.Err(); err != nil {
		return storage.RoomPage{}, fmt.Errorf("list rooms: %w", err)
	}
	return page, nil
}

// DeleteRoom removes a room record. Deleting an absent room is not an error.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("room id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// ListExpiredRooms returns ids of rooms eligible for garbage collection.
func (s *Store) ListExpiredRooms(ctx context.Context, endedBefore, staleBefore time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id
FROM rooms
WHERE (phase = ? AND last_activity_at < ?)
   OR (conversion_status IN (?, ?) AND created_at < ?)
ORDER BY last_activity_at
LIMIT ?`,
		string(room.PhaseEnded),
		toMillis(endedBefore),
		string(room.ConversionPending),
		string(room.ConversionProcessing),
		toMillis(staleBefore),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired rooms: %w", err)
	}
	return ids, nil
}

// encodeRoomDocuments serializes the JSON document columns, defaulting empty
// documents so the schema's NOT NULL constraints always hold.
func encodeRoomDocuments(r room.Room) (state, players, metadata string, err error) {
	state = "{}"
	if len(r.State) > 0 {
		state = string(r.State)
	}
	metadata = "{}"
	if len(r.Metadata) > 0 {
		metadata = string(r.Metadata)
	}
	players = "[]"
	if r.Players != nil {
		raw, marshalErr := json.Marshal(r.Players)
		if marshalErr != nil {
			return "", "", "", fmt.Errorf("encode players: %w", marshalErr)
		}
		players = string(raw)
	}
	return state, players, metadata, nil
}

func scanRoom(scan func(dest ...any) error) (room.Room, error) {
	var (
		r          room.Room
		state      string
		players    string
		metadata   string
		phase      string
		conversion string
		createdAt  int64
		updatedAt  int64
		activityAt int64
	)
	err := scan(
		&r.RoomID,
		&r.Kind,
		&r.DocumentRef,
		&r.ValidatorRef,
		&state,
		&players,
		&metadata,
		&r.Version,
		&phase,
		&conversion,
		&r.ConversionError,
		&createdAt,
		&updatedAt,
		&activityAt,
	)
	if err != nil {
		return room.Room{}, err
	}

	r.State = json.RawMessage(state)
	r.Metadata = json.RawMessage(metadata)
	if err := json.Unmarshal([]byte(players), &r.Players); err != nil {
		return room.Room{}, fmt.Errorf("decode players: %w", err)
	}
	r.Phase = room.Phase(phase)
	r.Conversion = room.ConversionStatus(conversion)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	r.LastActivityAt = fromMillis(activityAt)
	return r, nil
}
