package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/validator"
)

type staticResolver map[string]string

func (r staticResolver) ValidatorSource(_ context.Context, ref string) (string, error) {
	source, ok := r[ref]
	if !ok {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	return source, nil
}

func hostWith(sources map[string]string) *Host {
	return New(Config{Resolver: staticResolver(sources)})
}

func TestInvokeAcceptsAndTransformsState(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:counter": `
			function validate(input)
				local count = (input.state.count or 0) + (input.data.delta or 0)
				return {
					valid = true,
					updatedState = { count = count, phase = "active" },
					broadcast = "MOVE_ACCEPTED",
					timestamp = input.timestamp + 5,
				}
			end
		`,
	})

	in := validator.Input{
		Action:    "MOVE",
		Kind:      "counter-turn-based",
		Phase:     room.PhaseActive,
		State:     json.RawMessage(`{"count":2}`),
		PlayerID:  "p1",
		Data:      json.RawMessage(`{"delta":3}`),
		RoomID:    "room-1",
		Timestamp: 1000,
	}
	res, err := host.Invoke(context.Background(), "lua:counter", in)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Valid {
		t.Fatalf("Valid = false, reason %q", res.Reason)
	}
	if got := gjson.GetBytes(res.UpdatedState, "count").Int(); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}
	if got := gjson.GetBytes(res.UpdatedState, "phase").String(); got != "active" {
		t.Fatalf("phase = %q, want active", got)
	}
	if res.Broadcast != "MOVE_ACCEPTED" {
		t.Fatalf("Broadcast = %q, want MOVE_ACCEPTED", res.Broadcast)
	}
	if res.Timestamp != 1005 {
		t.Fatalf("Timestamp = %d, want 1005", res.Timestamp)
	}
}

func TestInvokeRejectionCarriesReason(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:strict": `
			function validate(input)
				return { valid = false, reason = "NOT_YOUR_TURN" }
			end
		`,
	})

	res, err := host.Invoke(context.Background(), "lua:strict", validator.Input{Action: "MOVE", Timestamp: 7})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Valid {
		t.Fatal("Valid = true, want rejection")
	}
	if res.Reason != "NOT_YOUR_TURN" {
		t.Fatalf("Reason = %q, want NOT_YOUR_TURN", res.Reason)
	}
	if res.Timestamp != 7 {
		t.Fatalf("Timestamp = %d, want input timestamp 7", res.Timestamp)
	}
}

func TestInvokeRosterRoundTrip(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:eliminator": `
			function validate(input)
				local players = input.players
				players[2].eliminated = true
				return { valid = true, updatedPlayers = players }
			end
		`,
	})

	joined := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	in := validator.Input{
		Action: "UPDATE",
		Players: room.Roster{
			{PlayerID: "p1", JoinedAt: joined, Active: true},
			{PlayerID: "p2", JoinedAt: joined.Add(time.Minute), Active: true},
		},
		Timestamp: 1000,
	}
	res, err := host.Invoke(context.Background(), "lua:eliminator", in)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(res.UpdatedPlayers) != 2 {
		t.Fatalf("len(UpdatedPlayers) = %d, want 2", len(res.UpdatedPlayers))
	}
	if res.UpdatedPlayers[0].PlayerID != "p1" || res.UpdatedPlayers[1].PlayerID != "p2" {
		t.Fatalf("roster order = %q, %q", res.UpdatedPlayers[0].PlayerID, res.UpdatedPlayers[1].PlayerID)
	}
	if !res.UpdatedPlayers[0].JoinedAt.Equal(joined) {
		t.Fatalf("JoinedAt = %v, want %v", res.UpdatedPlayers[0].JoinedAt, joined)
	}
	if res.UpdatedPlayers[0].Eliminated {
		t.Fatal("p1 eliminated, want untouched")
	}
	if !res.UpdatedPlayers[1].Eliminated {
		t.Fatal("p2 not eliminated")
	}
}

func TestInvokeEmptyStateBecomesTable(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:seed": `
			function validate(input)
				if type(input.state) ~= "table" then
					return { valid = false, reason = "STATE_NOT_TABLE" }
				end
				if next(input.state) ~= nil then
					return { valid = false, reason = "STATE_NOT_EMPTY" }
				end
				return { valid = true, updatedState = { seeded = true } }
			end
		`,
	})

	res, err := host.Invoke(context.Background(), "lua:seed", validator.Input{Action: "JOIN"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Valid {
		t.Fatalf("Valid = false, reason %q", res.Reason)
	}
	if !gjson.GetBytes(res.UpdatedState, "seeded").Bool() {
		t.Fatalf("UpdatedState = %s, want seeded", res.UpdatedState)
	}
}

func TestInvokeBoardArrayRoundTrip(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:board": `
			function validate(input)
				local board = input.state.board
				board[5] = "X"
				return { valid = true, updatedState = { board = board } }
			end
		`,
	})

	in := validator.Input{
		Action: "MOVE",
		State:  json.RawMessage(`{"board":["","","","","","","","",""]}`),
	}
	res, err := host.Invoke(context.Background(), "lua:board", in)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	board := gjson.GetBytes(res.UpdatedState, "board")
	if !board.IsArray() {
		t.Fatalf("board = %s, want array", board.Raw)
	}
	cells := board.Array()
	if len(cells) != 9 {
		t.Fatalf("len(board) = %d, want 9", len(cells))
	}
	if cells[4].String() != "X" {
		t.Fatalf("board[4] = %q, want X", cells[4].String())
	}
}

func TestInvokeEscapeHatchesRemoved(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:probe": `
			function validate(input)
				if os ~= nil or io ~= nil or load ~= nil or print ~= nil then
					return { valid = false, reason = "ESCAPE_HATCH" }
				end
				if require ~= nil or dofile ~= nil or loadfile ~= nil then
					return { valid = false, reason = "ESCAPE_HATCH" }
				end
				if math.random ~= nil or math.randomseed ~= nil then
					return { valid = false, reason = "NONDETERMINISM" }
				end
				if math.floor == nil or string.format == nil or table.insert == nil then
					return { valid = false, reason = "MISSING_LIBRARY" }
				end
				return { valid = true }
			end
		`,
	})

	res, err := host.Invoke(context.Background(), "lua:probe", validator.Input{Action: "MOVE"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Valid {
		t.Fatalf("sandbox leaked: %s", res.Reason)
	}
}

func TestInvokeRunawayScriptTimesOut(t *testing.T) {
	host := New(Config{
		Resolver: staticResolver(map[string]string{
			"lua:spin": `
				function validate(input)
					local n = 0
					while true do n = n + 1 end
				end
			`,
		}),
		Deadline: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := host.Invoke(context.Background(), "lua:spin", validator.Input{Action: "MOVE"})
	if err == nil {
		t.Fatal("Invoke() error = nil, want timeout")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorTimeout {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorTimeout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("runaway script ran %v before abort", elapsed)
	}
}

func TestInvokeHonorsContextDeadline(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:spin": `
			function validate(input)
				while true do end
			end
		`,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := host.Invoke(ctx, "lua:spin", validator.Input{Action: "MOVE"})
	if err == nil {
		t.Fatal("Invoke() error = nil, want timeout")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorTimeout {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorTimeout)
	}
}

func TestInvokeUnknownRefUnavailable(t *testing.T) {
	host := hostWith(map[string]string{})

	_, err := host.Invoke(context.Background(), "lua:missing", validator.Input{Action: "MOVE"})
	if err == nil {
		t.Fatal("Invoke() error = nil, want unavailable")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorUnavailable {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorUnavailable)
	}
}

func TestInvokeRuntimeErrorUnavailable(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:broken": `
			function validate(input)
				error("boom")
			end
		`,
	})

	_, err := host.Invoke(context.Background(), "lua:broken", validator.Input{Action: "MOVE"})
	if err == nil {
		t.Fatal("Invoke() error = nil, want unavailable")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorUnavailable {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorUnavailable)
	}
}

func TestInvokeMissingEntrypointUnavailable(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:empty": `local x = 1`,
	})

	_, err := host.Invoke(context.Background(), "lua:empty", validator.Input{Action: "MOVE"})
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorUnavailable {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorUnavailable)
	}
}

func TestInvokeNonTableResultUnavailable(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:scalar": `
			function validate(input)
				return true
			end
		`,
	})

	_, err := host.Invoke(context.Background(), "lua:scalar", validator.Input{Action: "MOVE"})
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorUnavailable {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorUnavailable)
	}
}

func TestInvokeOutputCapEnforced(t *testing.T) {
	host := New(Config{
		Resolver: staticResolver(map[string]string{
			"lua:bloat": `
				function validate(input)
					return { valid = true, updatedState = { blob = string.rep("x", 1024) } }
				end
			`,
		}),
		MaxOutputBytes: 256,
	})

	_, err := host.Invoke(context.Background(), "lua:bloat", validator.Input{Action: "MOVE"})
	if err == nil {
		t.Fatal("Invoke() error = nil, want limit")
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorLimit {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorLimit)
	}
}

func TestInvokeFreshStatePerInvocation(t *testing.T) {
	host := hostWith(map[string]string{
		"lua:leaky": `
			function validate(input)
				local seen = leaked ~= nil
				leaked = true
				if seen then
					return { valid = false, reason = "STATE_LEAKED" }
				end
				return { valid = true }
			end
		`,
	})

	for i := 0; i < 3; i++ {
		res, err := host.Invoke(context.Background(), "lua:leaky", validator.Input{Action: "MOVE"})
		if err != nil {
			t.Fatalf("Invoke() #%d error = %v", i, err)
		}
		if !res.Valid {
			t.Fatalf("Invoke() #%d: %s", i, res.Reason)
		}
	}
}

func TestInvokeNilHostUnavailable(t *testing.T) {
	var host *Host
	_, err := host.Invoke(context.Background(), "lua:any", validator.Input{Action: "MOVE"})
	if code := apperrors.CodeOf(err); code != apperrors.CodeValidatorUnavailable {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeValidatorUnavailable)
	}
}

func TestInvokeCancelledContext(t *testing.T) {
	host := hostWith(map[string]string{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := host.Invoke(ctx, "lua:any", validator.Input{Action: "MOVE"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
