// Package ingest is the HTTP boundary for facility, lab and fleet
// submissions. It normalizes payloads into engine records; malformed
// optional fields are substituted with safe defaults rather than
// rejecting the whole submission, since partial surveillance data
// beats none.
package ingest

import (
	"strings"
)

// canonicalIndicators maps reported disease names and common aliases
// to one canonical form, so "TB", "T.B." and "tuberculosis" feed the
// same rolling series.
var canonicalIndicators = map[string]string{
	"malaria":                 "malaria",
	"dengue":                  "dengue",
	"dengue fever":            "dengue",
	"chikungunya":             "chikungunya",
	"tb":                      "tuberculosis",
	"t.b.":                    "tuberculosis",
	"tuberculosis":            "tuberculosis",
	"cholera":                 "cholera",
	"typhoid":                 "typhoid",
	"typhoid fever":           "typhoid",
	"covid":                   "covid19",
	"covid-19":                "covid19",
	"covid19":                 "covid19",
	"corona":                  "covid19",
	"diarrhea":                "diarrhea",
	"diarrhoea":               "diarrhea",
	"acute diarrheal":         "diarrhea",
	"hepatitis":               "hepatitis",
	"hepatitis a":             "hepatitis",
	"hepatitis b":             "hepatitis",
	"jaundice":                "hepatitis",
	"leptospirosis":           "leptospirosis",
	"swine flu":               "h1n1",
	"h1n1":                    "h1n1",
	"influenza":               "influenza",
	"flu":                     "influenza",
	"measles":                 "measles",
	"respiratory":             "respiratory_infection",
	"ari":                     "respiratory_infection",
	"fever":                   "fever_unspecified",
	"fever of unknown origin": "fever_unspecified",
}

// NormalizeIndicator folds a reported indicator name to its canonical
// series key. Unknown names are kept, lowercased with underscores, so
// a new disease still gets a series instead of being dropped.
func NormalizeIndicator(name string) string {
	folded := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := canonicalIndicators[folded]; ok {
		return canonical
	}
	folded = strings.ReplaceAll(folded, "-", " ")
	if canonical, ok := canonicalIndicators[folded]; ok {
		return canonical
	}
	return strings.ReplaceAll(folded, " ", "_")
}

// nonNegative substitutes 0 for a negative reported count and tells
// the caller a substitution happened.
func nonNegative(v int) (int, bool) {
	if v < 0 {
		return 0, true
	}
	return v, false
}

// nonNegativePtr applies the same policy to optional counts.
func nonNegativePtr(v *int) (*int, bool) {
	if v == nil || *v >= 0 {
		return v, false
	}
	zero := 0
	return &zero, true
}
