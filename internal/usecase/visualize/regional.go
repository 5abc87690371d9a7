package visualize

import (
	"regexp"
	"strings"
)

var regionalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(regions?|regional|regionally)\b`),
	regexp.MustCompile(`\bby (state|city|area|territory|location)\b`),
	regexp.MustCompile(`\b(geographic|geographical|geographically|geography|territor(y|ies)|map)\b`),
	regexp.MustCompile(`\b(north|south)(east|west)(ern)?\b`),
	regexp.MustCompile(`\b(midwest(ern)?|west coast|east coast|gulf coast|mountain west)\b`),
	regexp.MustCompile(`\bcompare\b.*\bstates\b`),
	regexp.MustCompile(`\b(across|between) (states|regions|markets)\b`),
}

// IsRegionalQuery reports whether query asks for a geographic breakdown.
func IsRegionalQuery(query string) bool {
	q := strings.ToLower(query)
	for _, p := range regionalPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}
