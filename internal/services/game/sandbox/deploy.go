package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/action"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/validator"
)

// sourceRef derives the deployment address for validator source bound to a
// room. The room id is folded into the hash so identical source deployed to
// two rooms stays independently addressable, and any source change yields a
// new ref.
func sourceRef(roomID, source string) string {
	sum := sha256.Sum256([]byte(roomID + "\x00" + source))
	return "lua:" + hex.EncodeToString(sum[:])
}

// Deploy admits source into the sandbox and returns its ref. It enforces the
// source size cap, compiles the chunk, and probes the initial-state
// guarantee: a validator must accept a first JOIN on empty state and
// synthesize a playable initial state. On success the source is primed into
// the local cache so the first live invocation skips the resolver.
func (h *Host) Deploy(ctx context.Context, roomID, kind, source string) (string, error) {
	if h == nil {
		return "", apperrors.New(apperrors.CodeValidatorDeployFailed, "sandbox host not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(source) == "" {
		return "", apperrors.New(apperrors.CodeValidatorDeployFailed, "validator source is empty")
	}
	if len(source) > h.cfg.MaxSourceBytes {
		return "", apperrors.New(apperrors.CodeValidatorLimit, "validator source exceeds size limit")
	}

	probe := validator.Input{
		Action:    action.KindJoin,
		Kind:      kind,
		Phase:     room.PhaseLobby,
		PlayerID:  "deploy-probe",
		RoomID:    roomID,
		Timestamp: time.Now().UnixMilli(),
	}
	res, err := h.run(ctx, source, probe)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeValidatorDeployFailed, "probe validator", err)
	}
	if !res.Valid {
		return "", apperrors.WithMetadata(apperrors.CodeValidatorDeployFailed, "validator rejected the deploy probe", map[string]string{"reason": res.Reason})
	}
	if len(res.UpdatedState) == 0 {
		return "", apperrors.New(apperrors.CodeValidatorDeployFailed, "validator synthesized no initial state")
	}

	ref := sourceRef(roomID, source)
	h.sources.Set(ref, source, gocache.DefaultExpiration)
	return ref, nil
}
