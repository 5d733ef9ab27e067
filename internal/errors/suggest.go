package errors

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how different a candidate may be and still be
// offered as a suggestion.
const maxSuggestDistance = 3

// Closest returns the candidate nearest to name by edit distance, or ""
// when nothing is close enough. Ties resolve to the lexically first
// candidate.
func Closest(name string, candidates []string) string {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	best, bestDist := "", maxSuggestDistance+1
	for _, c := range sorted {
		if c == name {
			continue
		}
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Suggest returns a "did you mean" hint for name, or "" when no candidate
// is close.
func Suggest(name string, candidates []string) string {
	if c := Closest(name, candidates); c != "" {
		return "Did you mean " + quote(c) + "?"
	}
	return ""
}

func quote(s string) string {
	return `"` + s + `"`
}
