package contacts

import "strings"

// Blended similarity scoring. Bands, evaluated in order:
//
//	exact match                      1.0
//	exact first/last name-part match 0.85 - 0.9
//	substring containment            0.7 + length-ratio bonus (< 1.0)
//	prefix of a name part            0.6 - 0.8
//	otherwise                        normalized Levenshtein similarity x 0.65
//
// The fuzzy band is scaled down so a pure edit-distance hit never outranks a
// structural match.
const (
	firstNameScore   = 0.9
	lastNameScore    = 0.85
	substringBase    = 0.7
	substringBonus   = 0.25
	prefixBase       = 0.6
	prefixBonus      = 0.2
	fuzzyScale       = 0.65
	variantBoost     = 0.05
	AutoResolveScore = 0.8
	SuggestionFloor  = 0.35
)

// Score rates how well a candidate contact name matches the search term.
// Both inputs are compared case-insensitively. Result is in [0, 1].
func Score(search, candidate string) float64 {
	s := strings.ToLower(strings.TrimSpace(search))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if s == "" || c == "" {
		return 0
	}

	if s == c {
		return 1.0
	}

	parts := strings.Fields(c)
	for i, part := range parts {
		if s == part {
			if i == 0 {
				return firstNameScore
			}
			return lastNameScore
		}
	}

	if strings.Contains(c, s) {
		// Bonus shrinks as the candidate dwarfs the search term; stays < 1.0.
		return substringBase + substringBonus*float64(len(s))/float64(len(c))
	}

	// Search extending beyond a stored name part ("Richards" vs "Richard").
	for _, part := range parts {
		if strings.HasPrefix(s, part) {
			return prefixBase + prefixBonus*float64(len(part))/float64(len(s))
		}
	}

	return fuzzyScale * similarity(s, c)
}

// similarity is 1 - dist/maxLen, the normalized Levenshtein similarity.
func similarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes the edit distance between two strings using the
// space-optimized two-row dynamic program over runes.
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	// Iterate over the shorter string as columns.
	if len(ar) > len(br) {
		ar, br = br, ar
	}

	prev := make([]int, len(ar)+1)
	curr := make([]int, len(ar)+1)
	for i := range prev {
		prev[i] = i
	}

	for i := 1; i <= len(br); i++ {
		curr[0] = i
		for j := 1; j <= len(ar); j++ {
			cost := 1
			if br[i-1] == ar[j-1] {
				cost = 0
			}
			curr[j] = minOf(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(ar)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
