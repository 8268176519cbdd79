package validator

import (
	"regexp"
	"strings"

	"github.com/ladleio/ladle/pkg/hsds"
)

// testNamePattern flags organization and service names that scrapers
// pick up from staging sites and seeded databases. Word-bounded so
// "Protest Kitchen" and "Attleboro Pantry" pass. "mock" is deliberately
// absent: the development provider's canned record must flow through
// the full pipeline.
var testNamePattern = regexp.MustCompile(`(?i)\b(test|testing|tests|sample|demo|example|fake|dummy|placeholder|lorem|ipsum|asdf|qwerty|xxx|zzz|todo|tbd|n/a)\b`)

// placeholderAddresses are address lines that appear verbatim in form
// defaults and tutorial datasets. Compared after normalization.
var placeholderAddresses = map[string]struct{}{
	"123 main st":       {},
	"123 main street":   {},
	"1234 main st":      {},
	"1234 main street":  {},
	"123 test st":       {},
	"123 fake st":       {},
	"123 anywhere st":   {},
	"123 any street":    {},
	"555 example ave":   {},
	"1 example st":      {},
	"address":           {},
	"no address":        {},
	"none":              {},
	"unknown":           {},
	"n/a":               {},
	"na":                {},
	"tbd":               {},
	"same as above":     {},
	"123 sesame street": {},
}

// IsTestData reports whether the record is seeded test or placeholder
// content rather than a real listing. A positive flag blocks
// acceptance regardless of score.
func IsTestData(rec *hsds.AlignedRecord) bool {
	if testNamePattern.MatchString(rec.Organization.Name) {
		return true
	}
	for _, svc := range rec.Services {
		if testNamePattern.MatchString(svc.Name) {
			return true
		}
	}
	return false
}

// HasPlaceholderAddress reports whether the record's address line is a
// known placeholder. Suspicious but not proof of test data on its own.
func HasPlaceholderAddress(rec *hsds.AlignedRecord) bool {
	if rec.Location == nil {
		return false
	}
	_, ok := placeholderAddresses[normalizeAddressLine(rec.Location.Address1)]
	return ok
}

// normalizeAddressLine lowercases, collapses runs of whitespace, and
// drops trailing punctuation so "123  Main St." matches "123 main st"
func normalizeAddressLine(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	joined := strings.Join(fields, " ")
	return strings.TrimRight(joined, ".,;")
}
