// Package normalize derives canonical cache keys from free-text
// artist/album pairs. The same derivation runs at cache-write and
// cache-read time; any asymmetry would break deduplication.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// qualifierVocab lists trailing edition/pressing markers that label the same
// record under a different printing. Matching tokens are stripped from the
// end of a title so variant sleeves converge on one cache key.
var qualifierVocab = map[string]bool{
	"anniversary": true,
	"bonus":       true,
	"deluxe":      true,
	"edition":     true,
	"expanded":    true,
	"mono":        true,
	"reissue":     true,
	"reissued":    true,
	"remaster":    true,
	"remastered":  true,
	"remix":       true,
	"remixed":     true,
	"stereo":      true,
	"version":     true,
}

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	ordinalRe    = regexp.MustCompile(`^\d+(st|nd|rd|th)?$`)

	// foldDiacritics decomposes, drops combining marks, recomposes.
	foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Clean canonicalizes a single free-text field: lowercase, fold diacritics,
// strip punctuation, collapse whitespace, then drop trailing qualifier
// tokens from the suppression vocabulary. Clean is idempotent.
func Clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}

	// Punctuation becomes space so "(remastered)" and "- remastered"
	// reduce to plain trailing tokens.
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			return r
		}
		return ' '
	}, s)

	s = strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))

	tokens := strings.Fields(s)
	dropped := false
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		switch {
		case qualifierVocab[last]:
			tokens = tokens[:len(tokens)-1]
			dropped = true
		// "50th anniversary", "2019 remaster": the ordinal travels with
		// the qualifier it modifies.
		case dropped && ordinalRe.MatchString(last):
			tokens = tokens[:len(tokens)-1]
		default:
			return strings.Join(tokens, " ")
		}
	}
	return strings.Join(tokens, " ")
}

// Key derives the cache key for a resolved identity. The artist (secondary
// name) leads so keys group by artist when listed.
func Key(album, artist string) string {
	return Clean(artist) + "|" + Clean(album)
}
