// Package prompt builds the conversion instructions sent to the language
// model. The prompt adapts to the analyzer report so a turn-based board
// game gets arbitration guidance while a realtime canvas game gets
// reconciliation guidance, keeping the instruction set small for simple
// documents.
package prompt

import (
	"fmt"
	"strings"

	"github.com/davidvanstory/MultiplayerGame/internal/bridge"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/analyzer"
)

// Params carries the room facts woven into the prompt.
type Params struct {
	RoomID     string
	MinPlayers int
	MaxPlayers int
}

// Build renders the conversion prompt for one analyzed document. The
// document is included verbatim at the end so the model rewrites the real
// markup instead of inventing a new game.
func Build(document string, rep analyzer.Report, p Params) string {
	var sb strings.Builder

	sb.WriteString("Convert the single-player browser game below into a multiplayer client.\n")
	sb.WriteString("The server owns all game state. The client renders state and submits actions.\n\n")

	writeProfile(&sb, rep)
	writeContract(&sb)
	writeMechanics(&sb, rep)
	writeLobby(&sb, p)

	sb.WriteString("Return the complete converted HTML document and nothing else.\n")
	sb.WriteString("Do not wrap the document in markdown fences.\n\n")
	sb.WriteString("SOURCE DOCUMENT:\n")
	sb.WriteString(document)
	return sb.String()
}

func writeProfile(sb *strings.Builder, rep analyzer.Report) {
	sb.WriteString("GAME PROFILE:\n")
	fmt.Fprintf(sb, "- kind: %s\n", rep.Kind)
	if rep.Title != "" {
		fmt.Fprintf(sb, "- title: %s\n", rep.Title)
	}
	if rep.Elements.BoardRows > 0 {
		fmt.Fprintf(sb, "- board: %dx%d\n", rep.Elements.BoardRows, rep.Elements.BoardCols)
	}
	if n := len(rep.Elements.Buttons); n > 0 {
		fmt.Fprintf(sb, "- controls: %d buttons\n", n)
	}
	fmt.Fprintf(sb, "- complexity: %s\n", rep.Bucket)
	sb.WriteString("\n")
}

func writeContract(sb *strings.Builder) {
	sb.WriteString("RULES:\n")
	fmt.Fprintf(sb, "1. Keep every %s, %s and %s attribute exactly where it is.\n",
		bridge.MarkerAction, bridge.MarkerState, bridge.MarkerTouch)
	sb.WriteString("2. All player actions go through window.GameEventBridge.submit(action). Never mutate game state directly in response to input.\n")
	sb.WriteString("3. Render game state only from the snapshots and broadcasts the bridge delivers via window.GameEventBridge.onState(handler).\n")
	sb.WriteString("4. Remove any direct network calls, timers that advance game state, and localStorage persistence. The server replaces them.\n")
	sb.WriteString("5. Identify the local player with the playerId the bridge exposes. Other players appear in the shared state.\n")
	sb.WriteString("\n")
}

func writeMechanics(sb *strings.Builder, rep analyzer.Report) {
	var lines []string
	if rep.Mechanics.Turns {
		lines = append(lines,
			"Show whose turn it is and disable action controls when it is not the local player's turn. The server rejects out-of-turn actions; surface its rejection reason instead of guessing.")
	}
	if rep.Mechanics.Board {
		lines = append(lines,
			"Redraw the full board from each state update. Never keep a client-side copy as the source of truth.")
	}
	if rep.Mechanics.Score {
		lines = append(lines,
			"Replace the single score display with a per-player scoreboard driven by the shared state.")
	}
	if rep.Mechanics.Lives {
		lines = append(lines,
			"Track lives per player from the shared state, not from a local counter.")
	}
	if rep.Mechanics.Timer {
		lines = append(lines,
			"Countdown displays may tick locally, but the authoritative remaining time comes from state updates.")
	}
	if rep.Mechanics.Realtime {
		lines = append(lines,
			"Keep the render loop, but treat local simulation as prediction. Reconcile positions against each authoritative update and snap on divergence.")
	}
	if rep.Mechanics.WinCondition {
		lines = append(lines,
			"The server decides wins and draws. Render the outcome from state; delete local win detection.")
	}
	if len(lines) == 0 {
		return
	}
	sb.WriteString("GAME MECHANICS:\n")
	for i, line := range lines {
		fmt.Fprintf(sb, "%d. %s\n", i+1, line)
	}
	sb.WriteString("\n")
}

func writeLobby(sb *strings.Builder, p Params) {
	sb.WriteString("LOBBY:\n")
	fmt.Fprintf(sb, "- Add a lobby view listing joined players for room %s.\n", p.RoomID)
	if p.MaxPlayers > 0 {
		fmt.Fprintf(sb, "- The room seats %d to %d players.\n", p.MinPlayers, p.MaxPlayers)
	}
	sb.WriteString("- Submit a JOIN action on entry and a START action from a host control once enough players joined.\n")
	sb.WriteString("- Hide the game view until the shared state reports an active phase.\n")
	sb.WriteString("\n")
}
