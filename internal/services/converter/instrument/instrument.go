// Package instrument rewrites source game documents for multiplayer play.
// Markers tags the interactive elements the analyzer found so the bridge
// can observe them, and Inject embeds the bridge script with its room
// configuration. Both operate on the parsed tree and re-render, so hand
// written markup is normalized but never escaped inside scripts.
package instrument

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/davidvanstory/MultiplayerGame/internal/bridge"
	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/analyzer"
)

// IDs of the injected script elements. Re-injecting replaces them instead
// of stacking duplicates.
const (
	configScriptID = "mp-room-config"
	bridgeScriptID = "mp-bridge"
)

// stateIDHints mark display elements worth mirroring into shared state.
var stateIDHints = []string{
	"score", "status", "message", "timer", "question", "result",
	"board", "turn", "lives", "level", "round", "winner", "health",
}

var (
	onclickCall = regexp.MustCompile(`^\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*\(([^)]*)\)`)
	slugStrip   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Markers adds bridge marker attributes to the elements the analysis
// identified as interactive or state-bearing. Markers already present in
// the source are preserved verbatim.
func Markers(document string, rep analyzer.Report) (string, error) {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeAnalysisFailed, "parse document for markers", err)
	}

	seq := 0
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if actionable(n) && attr(n, bridge.MarkerAction) == "" {
			setAttr(n, bridge.MarkerAction, actionName(n, &seq))
		}
		if name := stateName(n); name != "" && attr(n, bridge.MarkerState) == "" {
			setAttr(n, bridge.MarkerState, name)
		}
		if n.Data == "canvas" && rep.Interactions.Touch && attr(n, bridge.MarkerTouch) == "" {
			setAttr(n, bridge.MarkerTouch, "surface")
		}
	})
	return render(doc)
}

// Inject embeds the room configuration and the bridge script at the end of
// the document body. The configuration script comes first so the bridge
// finds it at startup. Calling Inject on an already injected document
// replaces both scripts.
func Inject(document string, cfg bridge.RoomConfig) (string, error) {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeAnalysisFailed, "parse document for injection", err)
	}
	body := findElement(doc, "body")
	if body == nil {
		return "", apperrors.New(apperrors.CodeAnalysisFailed, "document has no body element")
	}

	// json.Marshal escapes <, > and & so the payload can never close the
	// surrounding script element.
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeAnalysisFailed, "encode room config", err)
	}

	removeScript(body, configScriptID)
	removeScript(body, bridgeScriptID)

	body.AppendChild(scriptNode(configScriptID,
		"window.__MP_ROOM_CONFIG__ = "+string(payload)+";"))
	body.AppendChild(scriptNode(bridgeScriptID, string(bridge.Script())))
	return render(doc)
}

func actionable(n *html.Node) bool {
	if attr(n, "onclick") != "" {
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

// actionName derives a stable action identifier: the element id when set,
// otherwise the onclick call, otherwise the visible label.
func actionName(n *html.Node, seq *int) string {
	if s := slug(attr(n, "id")); s != "" {
		return s
	}
	if m := onclickCall.FindStringSubmatch(attr(n, "onclick")); m != nil {
		name := slug(m[1])
		if args := slug(m[2]); args != "" {
			name += "-" + args
		}
		if name != "" {
			return name
		}
	}
	if n.Data == "button" {
		if s := slug(text(n)); s != "" {
			return s
		}
	}
	if n.Data == "input" {
		if s := slug(attr(n, "value")); s != "" {
			return s
		}
	}
	*seq++
	return fmt.Sprintf("action-%d", *seq)
}

func stateName(n *html.Node) string {
	id := attr(n, "id")
	lower := strings.ToLower(id)
	for _, hint := range stateIDHints {
		if strings.Contains(lower, hint) {
			return id
		}
	}
	return ""
}

func slug(s string) string {
	s = slugStrip.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

func scriptNode(id, content string) *html.Node {
	n := &html.Node{
		Type: html.ElementNode,
		Data: "script",
		Attr: []html.Attribute{{Key: "id", Val: id}},
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: content})
	return n
}

func removeScript(body *html.Node, id string) {
	var victim *html.Node
	walk(body, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && attr(n, "id") == id {
			victim = n
		}
	})
	if victim != nil && victim.Parent != nil {
		victim.Parent.RemoveChild(victim)
	}
}

func findElement(doc *html.Node, name string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.Data == name {
			found = n
		}
	})
	return found
}

func render(doc *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", apperrors.Wrap(apperrors.CodeAnalysisFailed, "render document", err)
	}
	return buf.String(), nil
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

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
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
