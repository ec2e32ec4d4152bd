// Package matcher resolves which markets on different venues describe the same
// real-world event, and which selections inside a matched pair describe the
// same outcome. Matching is fuzzy: names are normalised and compared with a
// Ratcliff/Obershelp similarity ratio.
package matcher

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// CanonicalMatchOdds is the canonical key for "match result" markets.
const CanonicalMatchOdds = "match_odds"

var (
	clubSuffix = regexp.MustCompile(`\s+FC$|\s+United$|\s+City$`)
	nonWord    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

// eventSeparators is tried in order; the first one present wins.
var eventSeparators = []string{" vs ", " v ", " - ", " @ "}

// marketTypeSynonyms maps venue-specific labels (matched as substrings of the
// lowercased label) to the canonical market key. Order matters.
var marketTypeSynonyms = []struct {
	label     string
	canonical string
}{
	{"match odds", CanonicalMatchOdds},
	{"match betting", CanonicalMatchOdds},
	{"1x2", CanonicalMatchOdds},
	{"win-draw-win", CanonicalMatchOdds},
	{"winner", CanonicalMatchOdds},
	{"match_odds", CanonicalMatchOdds},
	{"h2h", CanonicalMatchOdds},
}

// NormalizeName canonicalises a team or selection name: strips a trailing
// club suffix (FC, United, City), drops punctuation, lowercases and trims.
func NormalizeName(raw string) string {
	name := clubSuffix.ReplaceAllString(raw, "")
	name = nonWord.ReplaceAllString(name, "")
	return strings.TrimSpace(strings.ToLower(name))
}

// NormalizeMarketType maps a venue market label to its canonical key, or
// returns the lowercased label when no synonym applies.
func NormalizeMarketType(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	for _, syn := range marketTypeSynonyms {
		if strings.Contains(lower, syn.label) {
			return syn.canonical
		}
	}
	return lower
}

// Similarity returns the Ratcliff/Obershelp ratio of a and b in [0,1]:
// 1.0 for identical strings, 0.0 when they share no characters.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

// ExtractTeams splits an event name into normalised home and away names. When
// no known separator is present the whole name is returned as home and away
// is empty.
func ExtractTeams(eventName string) (home, away string) {
	for _, sep := range eventSeparators {
		if before, after, ok := strings.Cut(eventName, sep); ok {
			return NormalizeName(before), NormalizeName(after)
		}
	}
	return NormalizeName(eventName), ""
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
