package room

import (
	"encoding/json"
	"strings"
	"time"
)

// Phase is the lifecycle phase of a room.
type Phase string

// Room lifecycle phases. Transitions are one-way: lobby to active on an
// accepted START, active to ended on an accepted END or a win condition.
const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseLobby, PhaseActive, PhaseEnded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the phase may move to next.
func (p Phase) CanTransitionTo(next Phase) bool {
	switch p {
	case PhaseLobby:
		return next == PhaseActive
	case PhaseActive:
		return next == PhaseEnded
	}
	return false
}

// ConversionStatus is the lifecycle state of producing the room's artifact
// pair (instrumented document + validator).
type ConversionStatus string

// Conversion lifecycle states.
const (
	ConversionPending    ConversionStatus = "pending"
	ConversionProcessing ConversionStatus = "processing"
	ConversionComplete   ConversionStatus = "complete"
	ConversionFailed     ConversionStatus = "failed"
)

// Valid reports whether s is a known conversion status.
func (s ConversionStatus) Valid() bool {
	switch s {
	case ConversionPending, ConversionProcessing, ConversionComplete, ConversionFailed:
		return true
	}
	return false
}

// Terminal reports whether the conversion has finished either way.
func (s ConversionStatus) Terminal() bool {
	return s == ConversionComplete || s == ConversionFailed
}

// Player is one roster record. Score and Lives stay nil until the game
// assigns them so zero is distinguishable from unset.
type Player struct {
	PlayerID   string          `json:"playerId"`
	JoinedAt   time.Time       `json:"joinedAt"`
	Profile    json.RawMessage `json:"profile,omitempty"`
	Score      *float64        `json:"score,omitempty"`
	Lives      *int            `json:"lives,omitempty"`
	Active     bool            `json:"active"`
	Eliminated bool            `json:"eliminated"`
}

// Roster is the insertion-ordered player list. Insertion order defines turn
// rotation for turn-based kinds, so the JSON form is an array.
type Roster []Player

// Find returns the player record for playerID.
func (r Roster) Find(playerID string) (Player, bool) {
	for _, p := range r {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Player{}, false
}

// Contains reports whether playerID is on the roster.
func (r Roster) Contains(playerID string) bool {
	_, ok := r.Find(playerID)
	return ok
}

// ActiveCount returns the number of active, non-eliminated players.
func (r Roster) ActiveCount() int {
	count := 0
	for _, p := range r {
		if p.Active && !p.Eliminated {
			count++
		}
	}
	return count
}

// NextTurn returns the next active, non-eliminated player after the given
// one in insertion order, wrapping around. When after is unknown the first
// eligible player is returned. The second result is false when nobody is
// eligible.
func (r Roster) NextTurn(after string) (string, bool) {
	if len(r) == 0 {
		return "", false
	}
	start := -1
	for i, p := range r {
		if p.PlayerID == after {
			start = i
			break
		}
	}
	for offset := 1; offset <= len(r); offset++ {
		candidate := r[(start+offset)%len(r)]
		if candidate.Active && !candidate.Eliminated {
			return candidate.PlayerID, true
		}
	}
	return "", false
}

// Clone returns a deep-enough copy for mutation without aliasing the
// original slice.
func (r Roster) Clone() Roster {
	if r == nil {
		return nil
	}
	out := make(Roster, len(r))
	copy(out, r)
	return out
}

// Room is one multiplayer game instance.
type Room struct {
	RoomID          string
	Kind            string
	DocumentRef     string
	ValidatorRef    string
	State           json.RawMessage
	Players         Roster
	Metadata        json.RawMessage
	Version         int64
	Phase           Phase
	Conversion      ConversionStatus
	ConversionError string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastActivityAt  time.Time
}

// Terminal reports whether the room accepts only snapshot and subscribe.
func (r Room) Terminal() bool {
	return r.Phase == PhaseEnded
}

// Ready reports whether the room accepts action submissions.
func (r Room) Ready() bool {
	return r.Conversion == ConversionComplete
}

// New builds a room in lobby phase with conversion already complete, the
// shape produced by direct creation without a conversion run.
func New(roomID, kind string, initialState json.RawMessage, now time.Time) Room {
	roomID = strings.TrimSpace(roomID)
	now = now.UTC()
	if len(initialState) == 0 {
		initialState = json.RawMessage(`{}`)
	}
	return Room{
		RoomID:         roomID,
		Kind:           strings.TrimSpace(kind),
		State:          initialState,
		Players:        Roster{},
		Metadata:       json.RawMessage(`{}`),
		Version:        NextVersion(0, now),
		Phase:          PhaseLobby,
		Conversion:     ConversionComplete,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
}

// NewPending builds a room awaiting conversion.
func NewPending(roomID string, now time.Time) Room {
	r := New(roomID, "", nil, now)
	r.Conversion = ConversionPending
	return r
}

// NextVersion returns the version assigned to the next committed mutation:
// strictly greater than current, floored at the wall clock in milliseconds
// so versions stay comparable across restarts.
func NextVersion(current int64, now time.Time) int64 {
	next := current + 1
	if ms := now.UTC().UnixMilli(); ms > next {
		next = ms
	}
	return next
}
