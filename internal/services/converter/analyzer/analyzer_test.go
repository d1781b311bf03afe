package analyzer

import (
	"strings"
	"testing"
)

const ticTacToeDoc = `<!DOCTYPE html>
<html>
<head><title>Tic Tac Toe</title></head>
<body>
<h1>Tic Tac Toe</h1>
<p>Players take turns placing marks on the 3x3 board.</p>
<table id="board">
<tr><td class="cell" onclick="mark(0)"></td><td class="cell" onclick="mark(1)"></td><td class="cell" onclick="mark(2)"></td></tr>
<tr><td class="cell" onclick="mark(3)"></td><td class="cell" onclick="mark(4)"></td><td class="cell" onclick="mark(5)"></td></tr>
<tr><td class="cell" onclick="mark(6)"></td><td class="cell" onclick="mark(7)"></td><td class="cell" onclick="mark(8)"></td></tr>
</table>
<button id="reset">New Game</button>
<script>
var board = ["","","","","","","","",""];
var currentPlayer = "X";
function mark(i) {
  if (board[i] !== "") { return; }
  board[i] = currentPlayer;
  if (checkWinner()) { alert(currentPlayer + " wins"); }
  currentPlayer = currentPlayer === "X" ? "O" : "X";
}
</script>
</body>
</html>`

const quizDoc = `<!DOCTYPE html>
<html>
<head><title>Trivia Night</title></head>
<body>
<div id="question">Loading question...</div>
<button class="answer" onclick="pick(0)">A</button>
<button class="answer" onclick="pick(1)">B</button>
<button class="answer" onclick="pick(2)">C</button>
<button class="answer" onclick="pick(3)">D</button>
<p>Score: <span id="score">0</span></p>
<script>
let score = 0;
const questions = [{prompt: "Capital of France?", options: ["Paris", "Lyon"], correct: 0}];
function pick(i) {
  if (i === questions[0].correct) { score++; }
  localStorage.setItem("highscore", score);
}
</script>
</body>
</html>`

const platformerDoc = `<!DOCTYPE html>
<html>
<body>
<canvas id="game" width="640" height="480"></canvas>
<script>
const ctx = document.getElementById("game").getContext("2d");
let player = {x: 40, y: 400, vy: 0};
const gravity = 0.5;
const platforms = [{x: 0, y: 440, w: 640}];
function jump() { player.vy = -10; }
document.addEventListener("keydown", function (e) { if (e.key === " ") { jump(); } });
function loop() {
  player.vy += gravity;
  player.y += player.vy;
  requestAnimationFrame(loop);
}
requestAnimationFrame(loop);
</script>
</body>
</html>`

func TestAnalyzeTicTacToe(t *testing.T) {
	rep := Analyze(ticTacToeDoc)

	if rep.Kind != "board-3x3-turn-based" {
		t.Fatalf("kind = %q, want board-3x3-turn-based", rep.Kind)
	}
	if rep.Title != "Tic Tac Toe" {
		t.Errorf("title = %q", rep.Title)
	}
	if rep.Elements.BoardRows != 3 || rep.Elements.BoardCols != 3 {
		t.Errorf("board dims = %dx%d, want 3x3", rep.Elements.BoardRows, rep.Elements.BoardCols)
	}
	if rep.Elements.CellCount != 9 {
		t.Errorf("cell count = %d, want 9", rep.Elements.CellCount)
	}
	if len(rep.Elements.Buttons) != 1 || rep.Elements.Buttons[0].Label != "New Game" {
		t.Errorf("buttons = %+v", rep.Elements.Buttons)
	}
	if rep.Interactions.ClickTargets != 10 {
		t.Errorf("click targets = %d, want 10", rep.Interactions.ClickTargets)
	}
	if !rep.Mechanics.Turns || !rep.Mechanics.Board || !rep.Mechanics.WinCondition {
		t.Errorf("mechanics = %+v", rep.Mechanics)
	}
	if rep.Mechanics.Realtime {
		t.Error("realtime detected in a turn-based game")
	}
	if len(rep.State.Globals) != 2 {
		t.Fatalf("globals = %v, want board and currentPlayer", rep.State.Globals)
	}
	if rep.Bucket != BucketSimple {
		t.Errorf("bucket = %q (score %d), want simple", rep.Bucket, rep.Complexity)
	}
}

func TestAnalyzeQuiz(t *testing.T) {
	rep := Analyze(quizDoc)

	if rep.Kind != "quiz" {
		t.Fatalf("kind = %q, want quiz", rep.Kind)
	}
	if got := len(rep.Elements.Buttons); got != 4 {
		t.Errorf("buttons = %d, want 4", got)
	}
	if rep.Interactions.ClickTargets != 4 {
		t.Errorf("click targets = %d, want 4", rep.Interactions.ClickTargets)
	}
	if !rep.Mechanics.Score {
		t.Error("score mechanic not detected")
	}
	if !rep.State.UsesStorage {
		t.Error("localStorage use not detected")
	}
	if rep.Mechanics.Turns {
		t.Error("turns detected in a quiz with no turn handling")
	}
}

func TestAnalyzePlatformer(t *testing.T) {
	rep := Analyze(platformerDoc)

	if rep.Kind != "platformer-realtime" {
		t.Fatalf("kind = %q, want platformer-realtime", rep.Kind)
	}
	if !rep.Elements.HasCanvas {
		t.Error("canvas not detected")
	}
	if !rep.Mechanics.Realtime || !rep.Mechanics.Physics {
		t.Errorf("mechanics = %+v", rep.Mechanics)
	}
	if !rep.Interactions.Keyboard {
		t.Error("keyboard input not detected")
	}
	if rep.Bucket != BucketModerate {
		t.Errorf("bucket = %q (score %d), want moderate", rep.Bucket, rep.Complexity)
	}
}

func TestAnalyzeIgnoresComments(t *testing.T) {
	doc := `<html><body><h1>My Page</h1>
<!-- This is a trivia quiz with questions and answers on a board grid -->
<script>var x = 1; // dice roll board grid</script>
</body></html>`

	rep := Analyze(doc)
	if rep.Kind != FallbackKind {
		t.Fatalf("kind = %q, want %q", rep.Kind, FallbackKind)
	}
	if rep.Mechanics.Board {
		t.Error("board mechanic inferred from comment text")
	}
}

func TestBoardFromExplicitToken(t *testing.T) {
	doc := `<html><body>
<p>Connect tokens on the 4x4 board grid. Players alternate turns.</p>
<script>let boardState = []; let currentTurn = 0;</script>
</body></html>`

	rep := Analyze(doc)
	if rep.Elements.BoardRows != 4 || rep.Elements.BoardCols != 4 {
		t.Fatalf("board dims = %dx%d, want 4x4", rep.Elements.BoardRows, rep.Elements.BoardCols)
	}
	if rep.Kind != "board-4x4-turn-based" {
		t.Errorf("kind = %q, want board-4x4-turn-based", rep.Kind)
	}
	if len(rep.State.Globals) != 2 {
		t.Errorf("globals = %v, want boardState and currentTurn", rep.State.Globals)
	}
}

func TestBoardFromCountedCells(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<html><body><div class="row">`)
	for i := 0; i < 9; i++ {
		sb.WriteString(`<div class="cell" data-mp-action="claim"></div>`)
	}
	sb.WriteString(`</div><p>Take turns claiming squares on the board until one side wins.</p></body></html>`)

	rep := Analyze(sb.String())
	if rep.Elements.CellCount != 9 {
		t.Fatalf("cell count = %d, want 9", rep.Elements.CellCount)
	}
	if rep.Elements.BoardRows != 3 || rep.Elements.BoardCols != 3 {
		t.Errorf("board dims = %dx%d, want inferred 3x3", rep.Elements.BoardRows, rep.Elements.BoardCols)
	}
	if rep.Interactions.ClickTargets != 9 {
		t.Errorf("click targets = %d, want 9 marked cells", rep.Interactions.ClickTargets)
	}
	if rep.Kind != "board-3x3-turn-based" {
		t.Errorf("kind = %q", rep.Kind)
	}
}

func TestBoardProseAloneHasNoDims(t *testing.T) {
	doc := `<html><body><p>Move pieces around the board and grid freely.</p></body></html>`

	rep := Analyze(doc)
	if rep.Elements.BoardRows != 0 || rep.Elements.BoardCols != 0 {
		t.Fatalf("board dims = %dx%d, want none without a token or counted cells",
			rep.Elements.BoardRows, rep.Elements.BoardCols)
	}
	if !rep.Mechanics.Board {
		t.Error("board mechanic should still be flagged from prose")
	}
}

func TestAnalyzeNetworkAndGamepad(t *testing.T) {
	doc := `<html><body><button id="fire">Fire</button>
<script>
const socket = new WebSocket("wss://relay.example/ws");
fetch("/scores").then(function (r) { return r.json(); });
const peer = new RTCPeerConnection();
navigator.getGamepads();
</script></body></html>`

	rep := Analyze(doc)
	if !rep.Network.Socket || !rep.Network.HTTP || !rep.Network.Peer {
		t.Fatalf("network = %+v, want all transports detected", rep.Network)
	}
	if !rep.Interactions.Gamepad {
		t.Error("gamepad API use not detected")
	}
	if rep.Interactions.ClickTargets != 1 {
		t.Errorf("click targets = %d, want 1", rep.Interactions.ClickTargets)
	}
}

func TestAnalyzeEmptyDocument(t *testing.T) {
	rep := Analyze("")
	if rep.Kind != FallbackKind {
		t.Fatalf("kind = %q, want %q", rep.Kind, FallbackKind)
	}
	if rep.Bucket != BucketSimple {
		t.Errorf("bucket = %q, want simple", rep.Bucket)
	}
	if rep.Complexity != 0 {
		t.Errorf("complexity = %d, want 0", rep.Complexity)
	}
}
