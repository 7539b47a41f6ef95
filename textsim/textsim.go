// Package textsim provides token-set Jaccard similarity used to detect
// near-duplicate follow-up suggestions.
package textsim

import (
	"strings"
	"unicode"
)

// stopwords removed before comparing token sets, so suggestions that only
// differ in function words still count as duplicates.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "and": true, "or": true, "is": true, "are": true,
	"what": true, "how": true, "do": true, "does": true, "i": true, "you": true,
	"can": true, "with": true, "about": true, "me": true, "my": true,
}

// tokenSet lowercases, splits on non-letter/digit runes, and drops stopwords.
func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" && !stopwords[f] {
			set[f] = true
		}
	}
	return set
}

// Jaccard returns the token-set Jaccard similarity of a and b, in [0,1],
// after stopword removal. Two empty token sets are considered identical (1).
func Jaccard(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Duplicate reports whether a and b are near-duplicates: Jaccard > 0.5.
func Duplicate(a, b string) bool {
	return Jaccard(a, b) > 0.5
}
