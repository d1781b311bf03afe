// Package synth renders Lua validators for converted games. The rules come
// from a template parameterized by the analyzer report, so a tic-tac-toe
// document yields a 3x3 turn-enforcing validator while a quiz yields a
// free-for-all scoring one. The output satisfies the sandbox deploy probe:
// a first JOIN on empty state synthesizes the initial lobby state.
package synth

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/analyzer"
)

// Default player limits when the caller provides none.
const (
	defaultTurnBasedMinPlayers = 2
	defaultTurnBasedMaxPlayers = 2
	defaultMinPlayers          = 1
	defaultMaxPlayers          = 8
	defaultStartLives          = 3
)

//go:embed templates/validator.lua.tmpl
var templateFS embed.FS

var validatorTmpl = template.Must(template.ParseFS(templateFS, "templates/validator.lua.tmpl"))

// Params tune the synthesized rules beyond what analysis provides. Zero
// values pick kind-appropriate defaults.
type Params struct {
	MinPlayers int
	MaxPlayers int
	StartLives int
}

// view is the template input.
type view struct {
	Kind        string
	MinPlayers  int
	MaxPlayers  int
	TurnBased   bool
	Board       bool
	BoardRows   int
	BoardCols   int
	ThreeInARow bool
	Score       bool
	Lives       bool
	StartLives  int
}

// Source renders the validator for an analyzed document.
func Source(rep analyzer.Report, p Params) (string, error) {
	var sb strings.Builder
	if err := validatorTmpl.Execute(&sb, buildView(rep, p)); err != nil {
		return "", fmt.Errorf("render validator template: %w", err)
	}
	return sb.String(), nil
}

// Limits reports the player limits the rendered validator will enforce, so
// lobby guidance elsewhere in the conversion agrees with the rules.
func Limits(rep analyzer.Report, p Params) (minPlayers, maxPlayers int) {
	v := buildView(rep, p)
	return v.MinPlayers, v.MaxPlayers
}

func buildView(rep analyzer.Report, p Params) view {
	board := rep.Mechanics.Board
	rows, cols := rep.Elements.BoardRows, rep.Elements.BoardCols
	if board && (rows <= 0 || cols <= 0) {
		rows, cols = 3, 3
	}
	turnBased := rep.Mechanics.Turns || (board && !rep.Mechanics.Realtime)

	minPlayers, maxPlayers := p.MinPlayers, p.MaxPlayers
	if minPlayers <= 0 {
		minPlayers = defaultMinPlayers
		if turnBased {
			minPlayers = defaultTurnBasedMinPlayers
		}
	}
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
		if turnBased {
			maxPlayers = defaultTurnBasedMaxPlayers
		}
	}
	if maxPlayers < minPlayers {
		maxPlayers = minPlayers
	}

	startLives := p.StartLives
	if startLives <= 0 {
		startLives = defaultStartLives
	}

	return view{
		Kind:        rep.Kind,
		MinPlayers:  minPlayers,
		MaxPlayers:  maxPlayers,
		TurnBased:   turnBased,
		Board:       board,
		BoardRows:   rows,
		BoardCols:   cols,
		ThreeInARow: board && rows == 3 && cols == 3,
		Score:       rep.Mechanics.Score,
		Lives:       rep.Mechanics.Lives,
		StartLives:  startLives,
	}
}
