package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/action"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/broadcast"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
)

// Generic player limits applied when neither metadata nor the kind declares
// otherwise.
const (
	defaultTurnBasedMaxPlayers = 2
	defaultMaxPlayers          = 8
	defaultTurnBasedMinPlayers = 2
	defaultMinPlayers          = 1
)

var boardDimsPattern = regexp.MustCompile(`(\d+)x(\d+)`)

// Generic decides a standard-kind action without a deployed validator.
// Custom kinds are rejected: they require a validator.
func Generic(in Input) Result {
	if !action.Standard(in.Action) {
		return Reject(string(apperrors.CodeValidatorUnavailable), in.Timestamp)
	}
	if len(strings.TrimSpace(string(in.State))) == 0 {
		in.State = InitialState(in.Kind)
	}
	switch in.Action {
	case action.KindJoin:
		return genericJoin(in)
	case action.KindStart:
		return genericStart(in)
	case action.KindMove:
		return genericMove(in)
	case action.KindUpdate:
		return genericUpdate(in)
	default:
		return genericEnd(in)
	}
}

// InitialState synthesizes the empty-room state for a kind: lobby phase
// plus the scaffolding turn-based and board kinds expect.
func InitialState(kind string) json.RawMessage {
	state := []byte(`{"phase":"lobby","round":0}`)
	if turnBasedKind(kind) {
		state, _ = sjson.SetBytes(state, "currentTurn", nil)
	}
	if boardKind(kind) {
		state, _ = sjson.SetRawBytes(state, "board", []byte(`{}`))
	}
	return state
}

func genericJoin(in Input) Result {
	if in.Phase == room.PhaseEnded {
		return Reject(string(apperrors.CodeGameNotActive), in.Timestamp)
	}
	if in.Players.Contains(in.PlayerID) {
		return Reject(string(apperrors.CodeDuplicatePlayer), in.Timestamp)
	}
	if in.Phase == room.PhaseActive && turnBasedKind(in.Kind) {
		return Reject(string(apperrors.CodeGameAlreadyActive), in.Timestamp)
	}
	if len(in.Players) >= maxPlayersFor(in) {
		return Reject(string(apperrors.CodeGameFull), in.Timestamp)
	}

	record := room.Player{
		PlayerID: in.PlayerID,
		JoinedAt: time.UnixMilli(in.Timestamp).UTC(),
		Active:   true,
	}
	if profile := gjson.GetBytes(in.Data, "profile"); profile.Exists() {
		record.Profile = json.RawMessage(profile.Raw)
	}
	players := append(in.Players.Clone(), record)

	state := in.State
	if turnBasedKind(in.Kind) && !turnAssigned(state) {
		state, _ = sjson.SetBytes(state, "currentTurn", in.PlayerID)
	}
	return Accept(state, players, broadcast.KindPlayerJoined, in.Timestamp)
}

func genericStart(in Input) Result {
	if in.Phase == room.PhaseActive {
		return Reject(string(apperrors.CodeGameAlreadyActive), in.Timestamp)
	}
	if in.Phase == room.PhaseEnded {
		return Reject(string(apperrors.CodeGameNotActive), in.Timestamp)
	}
	if len(in.Players) < minPlayersFor(in) {
		return Reject(string(apperrors.CodeNotEnoughPlayers), in.Timestamp)
	}

	state := in.State
	state, _ = sjson.SetBytes(state, "phase", string(room.PhaseActive))
	state, _ = sjson.SetBytes(state, "round", 1)
	state, _ = sjson.SetBytes(state, "startedAt", in.Timestamp)
	if turnBasedKind(in.Kind) && !turnAssigned(state) {
		if first, ok := in.Players.NextTurn(""); ok {
			state, _ = sjson.SetBytes(state, "currentTurn", first)
		}
	}
	return Accept(state, nil, broadcast.KindGameStarted, in.Timestamp)
}

func genericMove(in Input) Result {
	if in.Phase != room.PhaseActive {
		return Reject(string(apperrors.CodeGameNotActive), in.Timestamp)
	}
	mover, ok := in.Players.Find(in.PlayerID)
	if !ok || !mover.Active || mover.Eliminated {
		return Reject(string(apperrors.CodeIllegalMove), in.Timestamp)
	}
	turnBased := turnBasedKind(in.Kind)
	if turnBased {
		if cur := gjson.GetBytes(in.State, "currentTurn").String(); cur != "" && cur != in.PlayerID {
			return Reject(string(apperrors.CodeNotYourTurn), in.Timestamp)
		}
	}

	state := in.State
	players := in.Players

	rowField := gjson.GetBytes(in.Data, "row")
	colField := gjson.GetBytes(in.Data, "col")
	if rowField.Exists() && colField.Exists() {
		rows, cols := boardDims(in.Kind)
		row, col := int(rowField.Int()), int(colField.Int())
		if row < 0 || row >= rows || col < 0 || col >= cols {
			return Reject(string(apperrors.CodeIllegalMove), in.Timestamp)
		}
		cells := boardCells(state)
		key := fmt.Sprintf("%d,%d", row, col)
		if _, taken := cells[key]; taken {
			return Reject(string(apperrors.CodeIllegalMove), in.Timestamp)
		}
		cells[key] = in.PlayerID
		raw, err := json.Marshal(cells)
		if err == nil {
			state, _ = sjson.SetRawBytes(state, "board", raw)
		}
	}

	if delta := gjson.GetBytes(in.Data, "delta"); delta.Exists() {
		counter := gjson.GetBytes(state, "counter").Float() + delta.Float()
		state, _ = sjson.SetBytes(state, "counter", counter)
	}

	if points := gjson.GetBytes(in.Data, "points"); points.Exists() {
		players = players.Clone()
		for i := range players {
			if players[i].PlayerID != in.PlayerID {
				continue
			}
			score := points.Float()
			if players[i].Score != nil {
				score += *players[i].Score
			}
			players[i].Score = &score
		}
	}

	if winner := findWinner(in, state, players); winner != "" {
		state, _ = sjson.SetBytes(state, "winner", winner)
		state, _ = sjson.SetBytes(state, "phase", string(room.PhaseEnded))
		state, _ = sjson.SetBytes(state, "endedAt", in.Timestamp)
		return Accept(state, players, broadcast.KindGameEnded, in.Timestamp)
	}

	if turnBased {
		if next, ok := players.NextTurn(in.PlayerID); ok {
			state, _ = sjson.SetBytes(state, "currentTurn", next)
		}
	}
	return Accept(state, players, broadcast.KindMoveMade, in.Timestamp)
}

func genericUpdate(in Input) Result {
	if in.Phase == room.PhaseEnded {
		return Reject(string(apperrors.CodeGameNotActive), in.Timestamp)
	}
	if !in.Players.Contains(in.PlayerID) {
		return Reject(string(apperrors.CodeIllegalMove), in.Timestamp)
	}

	state := in.State
	if data := gjson.ParseBytes(in.Data); data.IsObject() {
		data.ForEach(func(key, value gjson.Result) bool {
			if key.String() == "player" {
				return true
			}
			state, _ = sjson.SetRawBytes(state, escapePath(key.String()), []byte(value.Raw))
			return true
		})
	}

	players := in.Players
	if patch := gjson.GetBytes(in.Data, "player"); patch.IsObject() {
		players = players.Clone()
		for i := range players {
			if players[i].PlayerID != in.PlayerID {
				continue
			}
			applyPlayerPatch(&players[i], patch)
		}
	}
	return Accept(state, players, broadcast.KindStateUpdate, in.Timestamp)
}

func genericEnd(in Input) Result {
	if in.Phase != room.PhaseActive {
		return Reject(string(apperrors.CodeGameNotActive), in.Timestamp)
	}
	if !in.Players.Contains(in.PlayerID) {
		return Reject(string(apperrors.CodeIllegalMove), in.Timestamp)
	}

	state := in.State
	state, _ = sjson.SetBytes(state, "phase", string(room.PhaseEnded))
	state, _ = sjson.SetBytes(state, "endedAt", in.Timestamp)

	finalScores := make(map[string]float64)
	for _, p := range in.Players {
		if p.Score != nil {
			finalScores[p.PlayerID] = *p.Score
		}
	}
	if len(finalScores) > 0 {
		state, _ = sjson.SetBytes(state, "finalScores", finalScores)
	}
	return Accept(state, nil, broadcast.KindGameEnded, in.Timestamp)
}

// findWinner evaluates the generic win conditions after a move: shared
// counter or any player's score reaching the target, three in a row on a
// 3x3 board, or a single non-eliminated player remaining.
func findWinner(in Input, state json.RawMessage, players room.Roster) string {
	if target := gjson.GetBytes(state, "target"); target.Exists() {
		if counter := gjson.GetBytes(state, "counter"); counter.Exists() && counter.Float() >= target.Float() {
			return in.PlayerID
		}
		for _, p := range players {
			if p.Score != nil && *p.Score >= target.Float() {
				return p.PlayerID
			}
		}
	}

	rows, cols := boardDims(in.Kind)
	if rows == 3 && cols == 3 {
		if winner := threeInARow(boardCells(state)); winner != "" {
			return winner
		}
	}

	if len(players) > 1 {
		alive := ""
		count := 0
		for _, p := range players {
			if p.Active && !p.Eliminated {
				alive = p.PlayerID
				count++
			}
		}
		if count == 1 {
			return alive
		}
	}
	return ""
}

func threeInARow(cells map[string]string) string {
	if len(cells) < 3 {
		return ""
	}
	lines := [][3]string{
		{"0,0", "0,1", "0,2"},
		{"1,0", "1,1", "1,2"},
		{"2,0", "2,1", "2,2"},
		{"0,0", "1,0", "2,0"},
		{"0,1", "1,1", "2,1"},
		{"0,2", "1,2", "2,2"},
		{"0,0", "1,1", "2,2"},
		{"0,2", "1,1", "2,0"},
	}
	for _, line := range lines {
		first := cells[line[0]]
		if first == "" {
			continue
		}
		if cells[line[1]] == first && cells[line[2]] == first {
			return first
		}
	}
	return ""
}

func boardCells(state json.RawMessage) map[string]string {
	cells := make(map[string]string)
	board := gjson.GetBytes(state, "board")
	if !board.IsObject() {
		return cells
	}
	board.ForEach(func(key, value gjson.Result) bool {
		cells[key.String()] = value.String()
		return true
	})
	return cells
}

func applyPlayerPatch(p *room.Player, patch gjson.Result) {
	if score := patch.Get("score"); score.Exists() {
		value := score.Float()
		p.Score = &value
	}
	if lives := patch.Get("lives"); lives.Exists() {
		value := int(lives.Int())
		p.Lives = &value
	}
	if active := patch.Get("active"); active.Exists() {
		p.Active = active.Bool()
	}
	if eliminated := patch.Get("eliminated"); eliminated.Exists() {
		p.Eliminated = eliminated.Bool()
	}
	if profile := patch.Get("profile"); profile.Exists() {
		p.Profile = json.RawMessage(profile.Raw)
	}
}

func turnBasedKind(kind string) bool {
	return strings.Contains(kind, "turn-based") || boardKind(kind)
}

func boardKind(kind string) bool {
	return strings.Contains(kind, "board")
}

// boardDims extracts NxM from the kind tag, defaulting to 3x3.
func boardDims(kind string) (int, int) {
	match := boardDimsPattern.FindStringSubmatch(kind)
	if len(match) != 3 {
		return 3, 3
	}
	rows, _ := strconv.Atoi(match[1])
	cols, _ := strconv.Atoi(match[2])
	if rows <= 0 || cols <= 0 {
		return 3, 3
	}
	return rows, cols
}

func turnAssigned(state json.RawMessage) bool {
	cur := gjson.GetBytes(state, "currentTurn")
	return cur.Exists() && cur.Type != gjson.Null && cur.String() != ""
}

func maxPlayersFor(in Input) int {
	if declared := room.MaxPlayers(in.Metadata); declared > 0 {
		return declared
	}
	if turnBasedKind(in.Kind) {
		return defaultTurnBasedMaxPlayers
	}
	return defaultMaxPlayers
}

func minPlayersFor(in Input) int {
	if declared := room.MinPlayers(in.Metadata); declared > 0 {
		return declared
	}
	if turnBasedKind(in.Kind) {
		return defaultTurnBasedMinPlayers
	}
	return defaultMinPlayers
}

// escapePath guards gjson/sjson path syntax inside game-supplied keys.
func escapePath(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
