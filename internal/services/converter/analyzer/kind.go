package analyzer

import (
	"regexp"
	"strings"
)

// classifyThreshold is the minimum weighted score a characteristic needs
// before it names the document. A single strong signal clears it; a single
// generic word does not.
const classifyThreshold = 3

// signal is one detection pattern with its specificity weight.
type signal struct {
	re     *regexp.Regexp
	weight int
}

// characteristic groups the signals that identify one game family. The
// slice order below is the tie-break priority: more specific families come
// first so a shooter with a score counter classifies as a shooter.
type characteristic struct {
	name    string
	signals []signal
}

func sig(weight int, pattern string) signal {
	return signal{re: regexp.MustCompile(pattern), weight: weight}
}

var characteristics = []characteristic{
	{name: "shooter", signals: []signal{
		sig(3, `\b(bullet|ammo|projectile)s?\b`),
		sig(2, `\bshoot(ing)?\b`),
		sig(2, `\bweapons?\b`),
		sig(1, `\benem(y|ies)\b`),
	}},
	{name: "platformer", signals: []signal{
		sig(3, `\bplatforms?\b`),
		sig(2, `\bjump(ing)?\b`),
		sig(2, `\bgravity\b`),
		sig(1, `\bvelocity\b`),
	}},
	{name: "racing", signals: []signal{
		sig(3, `\blaps?\b`),
		sig(3, `\brac(e|ing)\b`),
		sig(2, `\btracks?\b`),
		sig(1, `\bspeed\b`),
	}},
	{name: "rpg", signals: []signal{
		sig(3, `\binventory\b`),
		sig(3, `\bquests?\b`),
		sig(2, `\b(mana|xp|experience)\b`),
		sig(1, `\bhp\b`),
	}},
	{name: "card", signals: []signal{
		sig(3, `\bdecks?\b`),
		sig(3, `\bshuffle\b`),
		sig(2, `\bcards?\b`),
		sig(1, `\bdeal(t|ing)?\b`),
	}},
	{name: "dice", signals: []signal{
		sig(3, `\bdice\b`),
		sig(2, `\broll(ed|ing)?\b`),
		sig(2, `\bd(4|6|8|10|12|20)\b`),
	}},
	{name: "word", signals: []signal{
		sig(3, `\banagram\b`),
		sig(2, `\bwords?\b`),
		sig(2, `\bletters?\b`),
		sig(1, `\bguess(es|ed)?\b`),
	}},
	{name: "quiz", signals: []signal{
		sig(3, `\btrivia\b`),
		sig(3, `\bquiz(zes)?\b`),
		sig(2, `\bquestions?\b`),
		sig(1, `\banswers?\b`),
	}},
	{name: "puzzle", signals: []signal{
		sig(3, `\bpuzzles?\b`),
		sig(2, `\bsolv(e|ed|ing)\b`),
		sig(1, `\bmatch(es|ed|ing)?\b`),
		sig(1, `\bswap(ped|ping)?\b`),
	}},
	{name: "strategy", signals: []signal{
		sig(3, `\bstrategy\b`),
		sig(2, `\bresources?\b`),
		sig(2, `\bunits?\b`),
		sig(1, `\bbuild(ing)?\b`),
	}},
	{name: "board", signals: []signal{
		sig(2, `\bboard\b`),
		sig(2, `\bgrid\b`),
		sig(1, `\bcells?\b`),
		sig(1, `\btiles?\b`),
	}},
	{name: "turn-based", signals: []signal{
		sig(3, `current\s*player|currentplayer|whoseturn`),
		sig(2, `\bturns?\b`),
		sig(1, `\bpass\b`),
	}},
	{name: "realtime", signals: []signal{
		sig(3, `requestanimationframe`),
		sig(2, `game\s*loop`),
		sig(1, `setinterval`),
	}},
	{name: "canvas", signals: []signal{
		sig(2, `<canvas\b`),
		sig(2, `getcontext\s*\(\s*['"]2d['"]`),
		sig(1, `\bsprites?\b`),
	}},
}

// classify returns the name of the best-scoring characteristic, or the
// empty string when nothing clears the threshold. Ties go to the earlier
// entry in the priority list, and structural evidence (a real table grid,
// a canvas element) boosts the matching family so markup outweighs prose.
func classify(stripped string) string {
	lower := strings.ToLower(stripped)

	bestName := ""
	bestScore := 0
	for _, ch := range characteristics {
		score := 0
		for _, s := range ch.signals {
			if s.re.MatchString(lower) {
				score += s.weight
			}
		}
		switch ch.name {
		case "board":
			if strings.Contains(lower, "<table") || strings.Contains(lower, "<td") {
				score += 2
			}
		case "canvas":
			if strings.Contains(lower, "<canvas") {
				score += 1
			}
		}
		if score > bestScore {
			bestName = ch.name
			bestScore = score
		}
	}
	if bestScore < classifyThreshold {
		return ""
	}
	return bestName
}
