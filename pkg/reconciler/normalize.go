package reconciler

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// NormalizeName canonicalizes an entity name for matching: lowercase,
// ampersands spelled out, punctuation dropped, whitespace collapsed.
// "The Food Bank & Pantry, Inc." and "the food bank and pantry inc"
// normalize identically.
func NormalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// addressAbbrev maps spelled-out street suffixes and directionals to
// their USPS abbreviations, applied per token after name normalization
var addressAbbrev = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"drive":     "dr",
	"road":      "rd",
	"lane":      "ln",
	"court":     "ct",
	"place":     "pl",
	"circle":    "cir",
	"highway":   "hwy",
	"parkway":   "pkwy",
	"square":    "sq",
	"terrace":   "ter",
	"trail":     "trl",
	"suite":     "ste",
	"apartment": "apt",
	"building":  "bldg",
	"floor":     "fl",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
	"northeast": "ne",
	"northwest": "nw",
	"southeast": "se",
	"southwest": "sw",
}

// NormalizeAddress canonicalizes an address line the same way names
// are, then folds street suffixes and directionals to their USPS
// abbreviations, so "123 West Main Street" matches "123 W. Main St."
func NormalizeAddress(s string) string {
	s = NormalizeName(s)
	if s == "" {
		return s
	}
	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		if abbr, ok := addressAbbrev[tok]; ok {
			tokens[i] = abbr
		}
	}
	return strings.Join(tokens, " ")
}

// Similarity returns the Levenshtein ratio of two normalized strings:
// 1 is identical, 0 shares nothing. Two empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
