package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/go-lua"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/platform/timeouts"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/validator"
)

var tracer = otel.Tracer("github.com/davidvanstory/MultiplayerGame/internal/services/game/sandbox")

// Defaults applied by Config.normalized.
const (
	defaultMaxSourceBytes = 256 << 10
	defaultMaxOutputBytes = 1 << 20
	defaultSourceTTL      = 15 * time.Minute
	defaultHookInterval   = 10_000
)

// entrypoint is the global function every validator must define.
const entrypoint = "validate"

// Resolver fetches deployed validator source by ref. The converter's
// artifact store implements this for the game service.
type Resolver interface {
	ValidatorSource(ctx context.Context, ref string) (string, error)
}

// Config wires the host's collaborators and resource envelope.
type Config struct {
	// Resolver looks up validator source for refs not found in the local
	// cache. A nil resolver limits the host to sources primed via Deploy.
	Resolver Resolver

	// Deadline bounds one invocation. Defaults to timeouts.Validator.
	Deadline time.Duration

	// MaxSourceBytes caps validator source size at deploy and resolve.
	MaxSourceBytes int

	// MaxOutputBytes caps the combined size of the state, player, and
	// metadata documents a validator returns.
	MaxOutputBytes int

	// SourceTTL bounds how long resolved source stays cached. Refs are
	// content addressed, so the TTL exists only to bound memory.
	SourceTTL time.Duration

	// HookInterval is the instruction count between deadline checks.
	HookInterval int
}

func (c Config) normalized() Config {
	if c.Deadline <= 0 {
		c.Deadline = timeouts.Validator
	}
	if c.MaxSourceBytes <= 0 {
		c.MaxSourceBytes = defaultMaxSourceBytes
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutputBytes
	}
	if c.SourceTTL <= 0 {
		c.SourceTTL = defaultSourceTTL
	}
	if c.HookInterval <= 0 {
		c.HookInterval = defaultHookInterval
	}
	return c
}

// Host runs deployed validators. Safe for concurrent use: every invocation
// gets its own interpreter state.
type Host struct {
	cfg     Config
	sources *gocache.Cache
}

// New builds a host from cfg with defaults applied.
func New(cfg Config) *Host {
	cfg = cfg.normalized()
	return &Host{
		cfg:     cfg,
		sources: gocache.New(cfg.SourceTTL, cfg.SourceTTL/3),
	}
}

// Invoke runs the validator deployed under ref against in. Infrastructure
// failures come back as coded errors; verdicts, accepted or rejected, come
// back as the result.
func (h *Host) Invoke(ctx context.Context, ref string, in validator.Input) (validator.Result, error) {
	if h == nil {
		return validator.Result{}, apperrors.New(apperrors.CodeValidatorUnavailable, "sandbox host not configured")
	}
	if err := ctx.Err(); err != nil {
		return validator.Result{}, err
	}

	ctx, span := tracer.Start(ctx, "sandbox.Invoke", trace.WithAttributes(
		attribute.String("validator.ref", ref),
		attribute.String("action.type", in.Action),
	))
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.ValidatorInvocations.WithLabelValues(outcome).Inc()
		metrics.ValidatorDuration.Observe(time.Since(start).Seconds())
	}()

	source, err := h.source(ctx, ref)
	if err != nil {
		outcome = "unavailable"
		span.RecordError(err)
		return validator.Result{}, err
	}

	res, err := h.run(ctx, source, in)
	if err != nil {
		span.RecordError(err)
		switch apperrors.CodeOf(err) {
		case apperrors.CodeValidatorTimeout:
			outcome = "timeout"
		case apperrors.CodeValidatorLimit:
			outcome = "limit"
		default:
			outcome = "unavailable"
		}
		return validator.Result{}, err
	}
	if res.Valid {
		outcome = "accept"
	} else {
		outcome = "reject"
	}
	return res, nil
}

func (h *Host) source(ctx context.Context, ref string) (string, error) {
	if cached, ok := h.sources.Get(ref); ok {
		if source, ok := cached.(string); ok {
			return source, nil
		}
	}
	if h.cfg.Resolver == nil {
		return "", apperrors.New(apperrors.CodeValidatorUnavailable, "no validator resolver configured")
	}
	source, err := h.cfg.Resolver.ValidatorSource(ctx, ref)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeValidatorUnavailable, "resolve validator source", err)
	}
	if len(source) > h.cfg.MaxSourceBytes {
		return "", apperrors.New(apperrors.CodeValidatorLimit, "validator source exceeds size limit")
	}
	h.sources.Set(ref, source, gocache.DefaultExpiration)
	return source, nil
}

// run executes source in a fresh restricted interpreter. The count hook
// aborts execution once the deadline or the caller's context expires.
func (h *Host) run(ctx context.Context, source string, in validator.Input) (validator.Result, error) {
	payload, err := inputPayload(in)
	if err != nil {
		return validator.Result{}, apperrors.Wrap(apperrors.CodeUnknown, "encode validator input", err)
	}

	l := lua.NewState()
	openRestricted(l)

	deadline := time.Now().Add(h.cfg.Deadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	var expired bool
	lua.SetDebugHook(l, func(state *lua.State, _ lua.Debug) {
		if ctx.Err() != nil || time.Now().After(deadline) {
			expired = true
			lua.Errorf(state, "validator deadline exceeded")
		}
	}, lua.MaskCount, h.cfg.HookInterval)

	if err := lua.LoadString(l, source); err != nil {
		return validator.Result{}, apperrors.Wrap(apperrors.CodeValidatorUnavailable, "compile validator", err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return validator.Result{}, runError("initialize validator", err, expired)
	}

	l.Global(entrypoint)
	if l.TypeOf(-1) != lua.TypeFunction {
		return validator.Result{}, apperrors.New(apperrors.CodeValidatorUnavailable, "validator does not define validate()")
	}
	pushValue(l, payload)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return validator.Result{}, runError("run validator", err, expired)
	}
	if l.TypeOf(-1) != lua.TypeTable {
		return validator.Result{}, apperrors.New(apperrors.CodeValidatorUnavailable, "validator returned a non-table result")
	}
	record, ok := valueAt(l, -1).(map[string]any)
	if !ok {
		return validator.Result{}, apperrors.New(apperrors.CodeValidatorUnavailable, "validator result is not a record")
	}
	return h.decodeResult(record, in)
}

func runError(op string, err error, expired bool) error {
	if expired {
		return apperrors.Wrap(apperrors.CodeValidatorTimeout, op, err)
	}
	return apperrors.Wrap(apperrors.CodeValidatorUnavailable, op, err)
}

// inputPayload converts the invocation input into plain Go data for the trip
// into Lua. State, data, and metadata documents arrive decoded so validator
// code indexes them as tables.
func inputPayload(in validator.Input) (map[string]any, error) {
	state, err := decodeDocument(in.State)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	data, err := decodeDocument(in.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	metadata, err := decodeDocument(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	players, err := rosterPayload(in.Players)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"action":    in.Action,
		"kind":      in.Kind,
		"phase":     string(in.Phase),
		"state":     state,
		"players":   players,
		"playerId":  in.PlayerID,
		"data":      data,
		"roomId":    in.RoomID,
		"metadata":  metadata,
		"timestamp": in.Timestamp,
	}, nil
}

func rosterPayload(players room.Roster) ([]any, error) {
	raw, err := json.Marshal(players)
	if err != nil {
		return nil, fmt.Errorf("players: %w", err)
	}
	var decoded []any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("players: %w", err)
	}
	if decoded == nil {
		decoded = []any{}
	}
	return decoded, nil
}

func (h *Host) decodeResult(record map[string]any, in validator.Input) (validator.Result, error) {
	res := validator.Result{Timestamp: in.Timestamp}
	if valid, ok := record["valid"].(bool); ok {
		res.Valid = valid
	}
	if reason, ok := record["reason"].(string); ok {
		res.Reason = reason
	}
	if kind, ok := record["broadcast"].(string); ok {
		res.Broadcast = kind
	}
	if ts, ok := record["timestamp"].(int); ok && ts > 0 {
		res.Timestamp = int64(ts)
	}

	total := 0
	if value, ok := record["updatedState"]; ok && value != nil {
		doc, err := encodeDocument(value)
		if err != nil {
			return validator.Result{}, apperrors.Wrap(apperrors.CodeValidatorUnavailable, "encode updated state", err)
		}
		res.UpdatedState = doc
		total += len(doc)
	}
	if value, ok := record["updatedPlayers"]; ok && value != nil {
		roster, size, err := decodeRoster(value)
		if err != nil {
			return validator.Result{}, apperrors.Wrap(apperrors.CodeValidatorUnavailable, "decode updated players", err)
		}
		res.UpdatedPlayers = roster
		total += size
	}
	if value, ok := record["metadata"]; ok && value != nil {
		doc, err := encodeDocument(value)
		if err != nil {
			return validator.Result{}, apperrors.Wrap(apperrors.CodeValidatorUnavailable, "encode result metadata", err)
		}
		res.Metadata = doc
		total += len(doc)
	}
	if total > h.cfg.MaxOutputBytes {
		return validator.Result{}, apperrors.New(apperrors.CodeValidatorLimit, "validator output exceeds size limit")
	}
	return res, nil
}

// decodeRoster maps a Lua player list back into a roster. Lua cannot tell an
// empty list from an empty record, so an empty table clears the roster.
func decodeRoster(value any) (room.Roster, int, error) {
	if m, ok := value.(map[string]any); ok && len(m) == 0 {
		return room.Roster{}, 2, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, 0, err
	}
	var roster room.Roster
	if err := json.Unmarshal(raw, &roster); err != nil {
		return nil, 0, err
	}
	return roster, len(raw), nil
}

// Globals scrubbed after opening the base library. Validators get pure
// computation only: no chunk loading, no I/O, and no nondeterminism through
// math.random.
var removedGlobals = []string{"load", "loadstring", "dofile", "loadfile", "require", "print", "collectgarbage"}

func openRestricted(l *lua.State) {
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	lua.Require(l, "string", lua.StringOpen, true)
	l.Pop(1)
	lua.Require(l, "table", lua.TableOpen, true)
	l.Pop(1)
	lua.Require(l, "math", lua.MathOpen, true)
	l.Pop(1)

	for _, name := range removedGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.Global("math")
	l.PushNil()
	l.SetField(-2, "random")
	l.PushNil()
	l.SetField(-2, "randomseed")
	l.Pop(1)
}
