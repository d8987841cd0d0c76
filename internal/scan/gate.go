package scan

import (
	"unicode"

	"github.com/crateside/sleeve/internal/model"
)

// minSignalChars is the minimum number of meaningful characters Tier-1 must
// have extracted before the expensive tier is worth invoking. Paired with
// the confidence check below, this is the authoritative threshold: weakening
// either clause spends money on hopeless escalations, tightening either one
// fails recoverable scans.
const minSignalChars = 3

// MeaningfulChars counts the runes in s that carry identification signal:
// everything except whitespace and punctuation.
func MeaningfulChars(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		n++
	}
	return n
}

// ShouldEscalate decides whether a Tier-1 escalation candidate justifies the
// cost of a Tier-2 attempt. Pure, no I/O.
func ShouldEscalate(c model.EscalationCandidate) bool {
	if MeaningfulChars(c.ExtractedText) < minSignalChars {
		return false
	}
	return c.Confidence == model.ConfidenceMedium || c.Confidence == model.ConfidenceHigh
}
