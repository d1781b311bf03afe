// Package analyzer classifies source game documents. The report it produces
// drives prompt construction, marker instrumentation, and validator
// synthesis. Analysis is best effort: a document with no recognizable
// signals yields a custom-game report, never an error, so the pipeline
// always has something to work with.
package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/davidvanstory/MultiplayerGame/internal/bridge"
)

// FallbackKind is reported when no characteristic passes the signal
// threshold.
const FallbackKind = "custom-game"

// Complexity buckets.
const (
	BucketSimple   = "simple"
	BucketModerate = "moderate"
	BucketComplex  = "complex"
)

// Mechanics flags the gameplay features detected in the document.
type Mechanics struct {
	Turns        bool `json:"turns"`
	Board        bool `json:"board"`
	Score        bool `json:"score"`
	Timer        bool `json:"timer"`
	Levels       bool `json:"levels"`
	Lives        bool `json:"lives"`
	Realtime     bool `json:"realtime"`
	WinCondition bool `json:"winCondition"`
	Physics      bool `json:"physics"`
	Rounds       bool `json:"rounds"`
}

// Button is one interactive control found in the markup.
type Button struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label,omitempty"`
}

// Elements inventories the document structure.
type Elements struct {
	Buttons   []Button `json:"buttons,omitempty"`
	HasForm   bool     `json:"hasForm"`
	HasCanvas bool     `json:"hasCanvas"`
	BoardRows int      `json:"boardRows,omitempty"`
	BoardCols int      `json:"boardCols,omitempty"`
	CellCount int      `json:"cellCount,omitempty"`
}

// Interactions inventories how the player drives the game.
type Interactions struct {
	ClickTargets int  `json:"clickTargets"`
	Draggable    bool `json:"draggable"`
	Keyboard     bool `json:"keyboard"`
	Touch        bool `json:"touch"`
	Gamepad      bool `json:"gamepad"`
}

// StateManagement inventories where the game keeps its state.
type StateManagement struct {
	Globals     []string `json:"globals,omitempty"`
	UsesStorage bool     `json:"usesStorage"`
}

// Network inventories transport features already present in the source.
type Network struct {
	Socket bool `json:"socket"`
	HTTP   bool `json:"http"`
	Peer   bool `json:"peer"`
}

// Report is the structural analysis of one source document.
type Report struct {
	Kind         string          `json:"kind"`
	Title        string          `json:"title,omitempty"`
	Mechanics    Mechanics       `json:"mechanics"`
	Elements     Elements        `json:"elements"`
	Interactions Interactions    `json:"interactions"`
	State        StateManagement `json:"state"`
	Network      Network         `json:"network"`
	Complexity   int             `json:"complexity"`
	Bucket       string          `json:"bucket"`
}

var (
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	// Line comments keep the character before // so protocol separators in
	// URLs survive the strip.
	lineComment = regexp.MustCompile(`(^|[^:"'])//[^\n]*`)

	boardToken = regexp.MustCompile(`\b([2-9])\s*[xX×]\s*([2-9])\b`)

	storageRe  = regexp.MustCompile(`\b(?:localStorage|sessionStorage)\b`)
	socketRe   = regexp.MustCompile(`\bWebSocket\b|socket\.io|\bio\s*\(`)
	httpRe     = regexp.MustCompile(`\bfetch\s*\(|XMLHttpRequest|\baxios\b`)
	peerRe     = regexp.MustCompile(`RTCPeerConnection|\bpeerjs\b|DataChannel`)
	keyboardRe = regexp.MustCompile(`addEventListener\s*\(\s*['"]key|onkeydown|onkeyup|onkeypress|event\.key\b|e\.key\b`)
	touchRe    = regexp.MustCompile(`touchstart|touchend|touchmove|ontouch|pointerdown`)
	gamepadRe  = regexp.MustCompile(`getgamepads|\bgamepads?\b`)
	dragRe     = regexp.MustCompile(`dragstart|dragend|ondrag|\bdraggable\b`)

	globalDecl = regexp.MustCompile(`\b(?:var|let|const)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=`)
	windowDecl = regexp.MustCompile(`window\.([A-Za-z_$][A-Za-z0-9_$]*)\s*=`)
)

// stateNameHints are identifier fragments that mark a global as game state.
var stateNameHints = []string{
	"state", "board", "score", "turn", "player", "level", "lives",
	"round", "game", "grid", "deck", "timer", "health",
}

// Analyze inspects a raw document and returns its structural report.
func Analyze(document string) Report {
	var rep Report

	doc, err := html.Parse(strings.NewReader(document))
	if err == nil {
		collectElements(doc, &rep)
	}

	// Comments are untrusted: a characteristic named only inside a comment
	// must never classify the document, so signal scans run over stripped
	// text.
	stripped := stripComments(document)
	scripts := scriptText(doc)
	scriptStripped := stripComments(scripts)

	rep.Mechanics = detectMechanics(stripped, scriptStripped, rep.Elements)
	rep.Interactions = detectInteractions(stripped, rep.Interactions)
	rep.State = detectState(scriptStripped)
	rep.Network = Network{
		Socket: socketRe.MatchString(scriptStripped),
		HTTP:   httpRe.MatchString(scriptStripped),
		Peer:   peerRe.MatchString(scriptStripped),
	}

	inferBoard(stripped, &rep)
	rep.Kind = buildKind(classify(stripped), rep)
	rep.Complexity, rep.Bucket = complexity(rep, len(scriptStripped))
	return rep
}

func stripComments(text string) string {
	text = htmlCommentRe.ReplaceAllString(text, "")
	text = blockComment.ReplaceAllString(text, "")
	return lineComment.ReplaceAllString(text, "$1")
}

func collectElements(doc *html.Node, rep *Report) {
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "title":
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				rep.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "button":
			rep.Elements.Buttons = append(rep.Elements.Buttons, Button{
				ID:    attr(n, "id"),
				Label: strings.TrimSpace(text(n)),
			})
		case "input":
			kind := strings.ToLower(attr(n, "type"))
			if kind == "button" || kind == "submit" {
				rep.Elements.Buttons = append(rep.Elements.Buttons, Button{
					ID:    attr(n, "id"),
					Label: attr(n, "value"),
				})
			}
		case "form":
			rep.Elements.HasForm = true
		case "canvas":
			rep.Elements.HasCanvas = true
		case "table":
			rows, cols := tableDims(n)
			if rows*cols > rep.Elements.BoardRows*rep.Elements.BoardCols {
				rep.Elements.BoardRows = rows
				rep.Elements.BoardCols = cols
			}
		}
		if hasCellMarker(n) {
			rep.Elements.CellCount++
		}
		if clickable(n) {
			rep.Interactions.ClickTargets++
		}
		if attr(n, "draggable") == "true" {
			rep.Interactions.Draggable = true
		}
		if attr(n, bridge.MarkerTouch) != "" {
			rep.Interactions.Touch = true
		}
	})
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

func scriptText(doc *html.Node) string {
	if doc == nil {
		return ""
	}
	var sb strings.Builder
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			sb.WriteString(text(n))
			sb.WriteString("\n")
		}
	})
	return sb.String()
}

func tableDims(table *html.Node) (rows, cols int) {
	walk(table, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return
		}
		rows++
		count := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
				count++
			}
		}
		if count > cols {
			cols = count
		}
	})
	return rows, cols
}

func hasCellMarker(n *html.Node) bool {
	ident := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	for _, hint := range []string{"cell", "tile", "square"} {
		if strings.Contains(ident, hint) {
			return true
		}
	}
	return false
}

// clickable reports whether the element reacts to clicks, counting each
// element once even when it is both a button and carries a handler.
func clickable(n *html.Node) bool {
	if attr(n, "onclick") != "" || attr(n, bridge.MarkerAction) != "" {
		return true
	}
	switch n.Data {
	case "button":
		return true
	case "input":
		kind := strings.ToLower(attr(n, "type"))
		return kind == "button" || kind == "submit"
	}
	return false
}

func detectMechanics(doc, script string, elems Elements) Mechanics {
	lower := strings.ToLower(doc)
	return Mechanics{
		Turns:        matchAny(lower, `\bturns?\b`, `currentturn`, `currentplayer`, `whoseturn`, `playerturn`),
		Board:        elems.BoardRows > 0 || elems.CellCount > 0 || matchAny(lower, `\bboard\b`, `\bgrid\b`),
		Score:        matchAny(lower, `\bscore\b`, `\bpoints\b`, `highscore`),
		Timer:        matchAny(lower, `\btimer\b`, `countdown`, `timeleft`, `time_left`) || strings.Contains(script, "setInterval"),
		Levels:       matchAny(lower, `\blevels?\b`, `\bstages?\b`, `\bworlds?\b`),
		Lives:        matchAny(lower, `\blives\b`, `\bhealth\b`, `\bhp\b`),
		Realtime:     strings.Contains(script, "requestAnimationFrame") || matchAny(lower, `\bvelocity\b`, `game\s*loop`),
		WinCondition: matchAny(lower, `\bwins?\b`, `\bwinners?\b`, `victory`, `game\s*over`, `\bdraw\b`),
		Physics:      matchAny(lower, `\bgravity\b`, `\bvelocity\b`, `friction`, `collision`),
		Rounds:       matchAny(lower, `\bround\b`, `\brounds\b`),
	}
}

func detectInteractions(doc string, inter Interactions) Interactions {
	inter.Keyboard = keyboardRe.MatchString(doc)
	inter.Gamepad = gamepadRe.MatchString(strings.ToLower(doc))
	if touchRe.MatchString(doc) {
		inter.Touch = true
	}
	if dragRe.MatchString(doc) {
		inter.Draggable = true
	}
	return inter
}

func detectState(script string) StateManagement {
	state := StateManagement{UsesStorage: storageRe.MatchString(script)}
	seen := map[string]bool{}
	for _, re := range []*regexp.Regexp{globalDecl, windowDecl} {
		for _, m := range re.FindAllStringSubmatch(script, -1) {
			name := m[1]
			if seen[name] || !stateLike(name) {
				continue
			}
			seen[name] = true
			state.Globals = append(state.Globals, name)
		}
	}
	return state
}

func stateLike(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range stateNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// inferBoard fills board dimensions only from an explicit NxM token or from
// counted cells; prose like "the board" never invents numbers.
func inferBoard(doc string, rep *Report) {
	if rep.Elements.BoardRows > 0 && rep.Elements.BoardCols > 0 {
		return
	}
	if m := boardToken.FindStringSubmatch(doc); m != nil {
		rows, _ := strconv.Atoi(m[1])
		cols, _ := strconv.Atoi(m[2])
		rep.Elements.BoardRows = rows
		rep.Elements.BoardCols = cols
		return
	}
	if rep.Elements.CellCount > 0 {
		side := int(math.Sqrt(float64(rep.Elements.CellCount)))
		if side > 1 && side*side == rep.Elements.CellCount {
			rep.Elements.BoardRows = side
			rep.Elements.BoardCols = side
		}
	}
}

func matchAny(text string, patterns ...string) bool {
	for _, pattern := range patterns {
		if regexp.MustCompile(pattern).MatchString(text) {
			return true
		}
	}
	return false
}

func buildKind(primary string, rep Report) string {
	if primary == "" {
		return FallbackKind
	}
	parts := []string{primary}
	if primary == "board" && rep.Elements.BoardRows > 0 && rep.Elements.BoardCols > 0 {
		parts = []string{fmt.Sprintf("board-%dx%d", rep.Elements.BoardRows, rep.Elements.BoardCols)}
	}
	switch {
	case rep.Mechanics.Turns && primary != "turn-based":
		parts = append(parts, "turn-based")
	case rep.Mechanics.Realtime && primary != "realtime":
		parts = append(parts, "realtime")
	}
	return strings.Join(parts, "-")
}

func complexity(rep Report, scriptLen int) (int, string) {
	score := 0
	for _, flag := range []bool{
		rep.Mechanics.Turns, rep.Mechanics.Board, rep.Mechanics.Score,
		rep.Mechanics.Timer, rep.Mechanics.Levels, rep.Mechanics.Lives,
		rep.Mechanics.Realtime, rep.Mechanics.WinCondition,
		rep.Mechanics.Physics, rep.Mechanics.Rounds,
	} {
		if flag {
			score++
		}
	}
	if rep.Elements.HasCanvas {
		score += 3
	}
	if rep.Network.Socket || rep.Network.Peer {
		score += 3
	}
	if rep.Interactions.Keyboard {
		score++
	}
	if rep.Interactions.Touch {
		score++
	}
	score += scriptLen / 4096

	switch {
	case score < 6:
		return score, BucketSimple
	case score < 14:
		return score, BucketModerate
	default:
		return score, BucketComplex
	}
}
