package domain

import (
	"regexp"
	"strings"
)

const (
	// LabelUnincorporated is reported for a city claim at an address outside any city.
	LabelUnincorporated = "Unincorporated area"
	// LabelUnknown is reported for a county claim when the district has no county.
	LabelUnknown = "Unknown"
)

// jurisdictionAffixes are stripped from names in order. Comma forms come
// before the bare forms so "Sacramento, City of" leaves no trailing comma.
var jurisdictionAffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i),\s*city of\b`),
	regexp.MustCompile(`(?i)\bcity of\b`),
	regexp.MustCompile(`(?i)\bcity\b`),
	regexp.MustCompile(`(?i),\s*county of\b`),
	regexp.MustCompile(`(?i)\bcounty of\b`),
	regexp.MustCompile(`(?i)\bcounty\b`),
}

// NormalizeJurisdiction reduces a jurisdiction name to its bare place name:
// "City of Sacramento", "Sacramento, City of" and "Sacramento County" all
// become "sacramento".
func NormalizeJurisdiction(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return ""
	}
	for _, re := range jurisdictionAffixes {
		normalized = re.ReplaceAllString(normalized, "")
	}
	return strings.TrimSpace(normalized)
}

// IsCityClaim reports whether a claim names a city. It is a plain
// case-insensitive substring test for "city" anywhere in the claim, so a
// county whose own name contains "city" is classified as a city claim.
func IsCityClaim(claim string) bool {
	return strings.Contains(strings.ToLower(claim), "city")
}

// MatchJurisdiction compares a claimed jurisdiction against the city and
// county of a resolved district. City claims are checked against the city,
// everything else against the county. The returned label is the raw name
// the claim was compared with, or a fallback when that name is absent.
func MatchJurisdiction(claimed string, actualCity, actualCounty *string) (bool, string) {
	normalizedClaim := NormalizeJurisdiction(claimed)
	city, hasCity := present(actualCity)
	county, hasCounty := present(actualCounty)

	if IsCityClaim(claimed) {
		if hasCity {
			return normalizedClaim == NormalizeJurisdiction(city), city
		}
		if hasCounty {
			return false, county
		}
		return false, LabelUnincorporated
	}

	if hasCounty {
		return normalizedClaim == NormalizeJurisdiction(county), county
	}
	return false, LabelUnknown
}

func present(s *string) (string, bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "", false
	}
	return *s, true
}
