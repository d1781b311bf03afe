package llm

import (
	"fmt"
	"strings"
)

// ExtractDocument pulls the HTML document out of a model reply. Replies are
// instructed to contain nothing else, but fences and lead-in prose still
// appear, so extraction tolerates both. Replies without a closing body or
// html tag are rejected as truncated rather than published half-finished.
func ExtractDocument(reply string) (string, error) {
	text := strings.TrimSpace(reply)
	if text == "" {
		return "", fmt.Errorf("empty model reply")
	}
	text = stripFences(text)

	lower := strings.ToLower(text)
	start := strings.Index(lower, "<!doctype")
	if start < 0 {
		start = strings.Index(lower, "<html")
	}
	if start < 0 {
		return "", fmt.Errorf("model reply contains no html document")
	}
	text = text[start:]
	lower = lower[start:]

	end := strings.LastIndex(lower, "</html>")
	switch {
	case end >= 0:
		text = text[:end+len("</html>")]
	case strings.Contains(lower, "</body>"):
		// Tolerated: some documents omit the final html closer.
	default:
		return "", fmt.Errorf("model reply looks truncated: no closing body or html tag")
	}
	return text, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
