package parser

import "strings"

// segmentJoiners are the conjunction markers a compound prompt may use.
// A joiner only splits when the text after it begins with an action verb,
// so "expand", "band" and friends never trigger a cut.
var segmentJoiners = []string{" and ", " then ", " also ", " + ", ", "}

// actionVerbs is the closed set of verbs a segment may start with. Checked
// longest-first so "liquid stake" wins over "stake" and "take a loan" over
// "take".
var actionVerbs = []string{
	"take out a loan", "take a loan", "get a loan", "native stake",
	"liquid stake", "pull out", "take out", "pay back", "pay off",
	"loan me", "swap", "send", "transfer", "tip", "unstake", "stake",
	"buy", "sell", "ape", "memo", "write", "create", "close", "dump",
	"convert", "trade", "exchange", "provide", "add", "remove", "open",
	"deactivate", "withdraw", "supply", "deposit", "lend", "borrow",
	"repay", "put", "invest", "lock", "settle", "return", "pull", "pay",
	"spend", "delegate", "yolo", "long", "short", "exit", "change",
}

// SegmentPrompt splits a compound prompt into independently parseable
// segments. Splitting preserves the verb: each segment after a joiner begins
// with the verb that licensed the cut. A prompt with no joiner comes back as
// a singleton; empty segments are discarded.
func SegmentPrompt(prompt string) []string {
	lower := strings.ToLower(prompt)
	var segments []string
	start := 0

	for i := 0; i < len(prompt); {
		advanced := false
		for _, joiner := range segmentJoiners {
			end := i + len(joiner)
			if end > len(lower) || lower[i:end] != joiner {
				continue
			}
			if !startsWithVerb(lower[end:]) {
				continue
			}
			if seg := strings.TrimSpace(prompt[start:i]); seg != "" {
				segments = append(segments, seg)
			}
			start = end
			i = end
			advanced = true
			break
		}
		if !advanced {
			i++
		}
	}

	if seg := strings.TrimSpace(prompt[start:]); seg != "" {
		segments = append(segments, seg)
	}
	return segments
}

// startsWithVerb reports whether lowered text begins with an action verb
// followed by a word boundary.
func startsWithVerb(lowered string) bool {
	for _, verb := range actionVerbs {
		if !strings.HasPrefix(lowered, verb) {
			continue
		}
		if len(lowered) == len(verb) || lowered[len(verb)] == ' ' {
			return true
		}
	}
	return false
}
