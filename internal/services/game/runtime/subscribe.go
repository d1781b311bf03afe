package runtime

import (
	"context"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/broadcast"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/registry"
)

// Snapshot returns the authoritative state frame for a room. Snapshots work
// in every lifecycle phase, including rooms still converting and rooms that
// have ended.
func (rt *Runtime) Snapshot(ctx context.Context, roomID string) (broadcast.Message, error) {
	rm, err := rt.resolve(ctx, roomID)
	if err != nil {
		return broadcast.Message{}, err
	}
	return broadcast.Snapshot(rm, rt.cfg.Clock()), nil
}

// Subscribe attaches to a room's broadcast stream. The returned snapshot
// must be delivered to the consumer before any subscription frame; frames
// with versions at or below the snapshot version are stale duplicates and
// safe to drop.
//
// The subscription joins the hub before the snapshot is read so no commit
// can fall between the two.
func (rt *Runtime) Subscribe(ctx context.Context, roomID string) (broadcast.Message, *registry.Subscription, error) {
	if _, err := rt.resolve(ctx, roomID); err != nil {
		return broadcast.Message{}, nil, err
	}

	sub := rt.cfg.Registry.Hub(roomID).Subscribe()
	if sub == nil {
		return broadcast.Message{}, nil, apperrors.New(apperrors.CodeRoomTerminated, "room is shut down")
	}

	rm, err := rt.resolve(ctx, roomID)
	if err != nil {
		sub.Close()
		return broadcast.Message{}, nil, err
	}
	return broadcast.Snapshot(rm, rt.cfg.Clock()), sub, nil
}
