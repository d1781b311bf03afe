package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/timeouts"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/action"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/broadcast"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/validator"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/registry"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage"
)

var tracer = otel.Tracer("github.com/davidvanstory/MultiplayerGame/internal/services/game/runtime")

// Config wires the runtime's collaborators.
type Config struct {
	// Store is the authoritative room persistence.
	Store storage.RoomStore

	// Registry provides per-room locks, hubs, and the read cache.
	Registry *registry.Registry

	// Invoker executes deployed validators. Nil restricts rooms to the
	// generic ruleset for standard kinds.
	Invoker validator.Invoker

	// SubmitDeadline bounds one submission end to end. Defaults to
	// timeouts.Submit.
	SubmitDeadline time.Duration

	// ValidatorDeadline bounds one validator invocation. Defaults to
	// timeouts.Validator.
	ValidatorDeadline time.Duration

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time
}

func (c Config) normalized() Config {
	if c.SubmitDeadline <= 0 {
		c.SubmitDeadline = timeouts.Submit
	}
	if c.ValidatorDeadline <= 0 {
		c.ValidatorDeadline = timeouts.Validator
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Runtime processes actions for all rooms in the process.
type Runtime struct {
	cfg Config
}

// New builds a runtime from cfg.
func New(cfg Config) (*Runtime, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("room store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("room registry is required")
	}
	return &Runtime{cfg: cfg.normalized()}, nil
}

// SubmitResult is the submission envelope. Accepted and Duplicate carry the
// authoritative state after the action; a rejection carries only the
// machine-readable reason.
type SubmitResult struct {
	Accepted  bool
	Duplicate bool
	Reason    string
	State     json.RawMessage
	Players   room.Roster
	Version   int64
	Broadcast *broadcast.Message
}

// Submit applies one action to a room. Actions for the same room are
// totally ordered by lock acquisition; cancellation before the lock is
// acquired has no side effects.
func (rt *Runtime) Submit(ctx context.Context, roomID string, act action.Action) (SubmitResult, error) {
	if strings.TrimSpace(roomID) == "" {
		return SubmitResult{}, apperrors.New(apperrors.CodeInvalidActionShape, "room id is required")
	}
	act = act.Normalize()
	if err := act.Validate(); err != nil {
		return SubmitResult{}, err
	}

	ctx, span := tracer.Start(ctx, "runtime.Submit", trace.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.String("action.type", act.Type),
	))
	defer span.End()

	start := rt.cfg.Clock()
	result := "error"
	defer func() {
		metrics.ActionsSubmitted.WithLabelValues(kindLabel(act.Type), result).Inc()
		metrics.ActionDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, rt.cfg.SubmitDeadline)
	defer cancel()

	// Existence and readiness checks happen before taking the lock so
	// spam against unknown room ids never allocates registry entries.
	// The terminal check waits until after the idempotency lookup under
	// the lock so a replayed final action still gets its success envelope.
	rm, err := rt.resolve(ctx, roomID)
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}
	if !rm.Ready() {
		return SubmitResult{}, apperrors.New(apperrors.CodeRoomNotReady, "room conversion is "+string(rm.Conversion))
	}

	release, err := rt.cfg.Registry.Lock(ctx, roomID)
	if err != nil {
		err = apperrors.Wrap(apperrors.CodeTimeoutRetry, "acquire room lock", err)
		span.RecordError(err)
		return SubmitResult{}, err
	}
	defer release()

	rm, err = rt.resolve(ctx, roomID)
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}
	if !rm.Ready() {
		return SubmitResult{}, apperrors.New(apperrors.CodeRoomNotReady, "room conversion is "+string(rm.Conversion))
	}

	// A replayed client sequence returns the committed outcome without
	// re-execution, even when the room has since ended.
	if act.ClientSeq != nil && *act.ClientSeq <= room.HighWater(rm.Metadata, act.PlayerID) {
		result = "duplicate"
		return SubmitResult{
			Accepted:  true,
			Duplicate: true,
			State:     rm.State,
			Players:   rm.Players,
			Version:   rm.Version,
		}, nil
	}
	if rm.Terminal() {
		return SubmitResult{}, apperrors.New(apperrors.CodeRoomTerminated, "room has ended")
	}

	now := rt.cfg.Clock()
	res, err := rt.decide(ctx, rm, validator.Input{
		Action:    act.Type,
		Kind:      rm.Kind,
		Phase:     rm.Phase,
		State:     rm.State,
		Players:   rm.Players.Clone(),
		PlayerID:  act.PlayerID,
		Data:      act.Data,
		RoomID:    rm.RoomID,
		Metadata:  rm.Metadata,
		Timestamp: now.UTC().UnixMilli(),
	})
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}
	if !res.Valid {
		result = "rejected"
		return SubmitResult{Reason: res.Reason}, nil
	}

	// Deadline expiry after validation but before commit discards the
	// validator output entirely.
	if err := ctx.Err(); err != nil {
		err = apperrors.Wrap(apperrors.CodeTimeoutRetry, "submit deadline", err)
		span.RecordError(err)
		return SubmitResult{}, err
	}

	committed, err := rt.commit(ctx, rm, act, res, now)
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}
	rt.cfg.Registry.CacheRoom(committed)

	kind := res.Broadcast
	if kind == "" {
		kind = broadcast.ForAction(act.Type)
	}
	msg := broadcast.Message{
		Kind:      kind,
		RoomID:    committed.RoomID,
		Version:   committed.Version,
		Changes:   changeSummary(act),
		State:     committed.State,
		Players:   committed.Players,
		Timestamp: now.UTC().UnixMilli(),
	}
	rt.cfg.Registry.Hub(committed.RoomID).Broadcast(msg)

	result = "accepted"
	return SubmitResult{
		Accepted:  true,
		State:     committed.State,
		Players:   committed.Players,
		Version:   committed.Version,
		Broadcast: &msg,
	}, nil
}

// resolve returns the room from the read cache when fresh, loading and
// re-caching from the store otherwise.
func (rt *Runtime) resolve(ctx context.Context, roomID string) (room.Room, error) {
	if rm, ok := rt.cfg.Registry.CachedRoom(roomID); ok {
		return rm, nil
	}
	rm, err := rt.cfg.Store.GetRoom(ctx, roomID)
	if err != nil {
		return room.Room{}, fmt.Errorf("resolve room: %w", err)
	}
	rt.cfg.Registry.CacheRoom(rm)
	return rm, nil
}

// decide routes the action to the deployed validator or the generic
// ruleset. Validator infrastructure failures fall back to the generic
// ruleset for standard kinds only.
func (rt *Runtime) decide(ctx context.Context, rm room.Room, in validator.Input) (validator.Result, error) {
	standard := action.Standard(in.Action)
	if rm.ValidatorRef != "" && rt.cfg.Invoker != nil {
		vctx, cancel := context.WithTimeout(ctx, rt.cfg.ValidatorDeadline)
		res, err := rt.cfg.Invoker.Invoke(vctx, rm.ValidatorRef, in)
		cancel()
		if err == nil {
			return res, nil
		}
		if !standard || !fallback(apperrors.CodeOf(err)) {
			return validator.Result{}, fmt.Errorf("invoke validator: %w", err)
		}
		log.Printf("room %s: validator %s failed, using generic ruleset: %v", rm.RoomID, rm.ValidatorRef, err)
		return validator.Generic(in), nil
	}
	if !standard {
		return validator.Result{}, apperrors.New(apperrors.CodeValidatorUnavailable, "custom action requires a deployed validator")
	}
	return validator.Generic(in), nil
}

func fallback(code apperrors.Code) bool {
	switch code {
	case apperrors.CodeValidatorTimeout, apperrors.CodeValidatorUnavailable, apperrors.CodeValidatorLimit:
		return true
	}
	return false
}

// commit applies the accepted result to the room and writes it with a
// version guard. The phase only follows the state document along legal
// transitions; validators cannot reopen an ended game.
func (rt *Runtime) commit(ctx context.Context, prior room.Room, act action.Action, res validator.Result, now time.Time) (room.Room, error) {
	next := prior
	next.Players = prior.Players.Clone()
	if res.UpdatedState != nil {
		next.State = res.UpdatedState
	}
	if res.UpdatedPlayers != nil {
		next.Players = res.UpdatedPlayers
	}
	if res.Metadata != nil {
		next.Metadata = res.Metadata
	}
	if act.ClientSeq != nil {
		md, err := room.WithHighWater(next.Metadata, act.PlayerID, *act.ClientSeq)
		if err != nil {
			return room.Room{}, fmt.Errorf("record client sequence: %w", err)
		}
		next.Metadata = md
	}
	if phase := gjson.GetBytes(next.State, "phase"); phase.Exists() {
		candidate := room.Phase(phase.String())
		if candidate.Valid() && candidate != next.Phase && next.Phase.CanTransitionTo(candidate) {
			next.Phase = candidate
		}
	}
	next.Version = room.NextVersion(prior.Version, now)
	next.UpdatedAt = now.UTC()
	next.LastActivityAt = now.UTC()

	if err := rt.cfg.Store.UpdateRoom(ctx, next, prior.Version); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return room.Room{}, fmt.Errorf("commit room: %w", err)
		}
		return room.Room{}, apperrors.Wrap(apperrors.CodeStoreFailure, "commit room", err)
	}
	return next, nil
}

func changeSummary(act action.Action) json.RawMessage {
	summary := struct {
		Action   string `json:"action"`
		PlayerID string `json:"playerId"`
	}{Action: act.Type, PlayerID: act.PlayerID}
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil
	}
	return raw
}

// kindLabel keeps metric cardinality bounded: custom kinds share a label.
func kindLabel(kind string) string {
	if action.Standard(kind) {
		return kind
	}
	return "custom"
}
