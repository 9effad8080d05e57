// Package normalize turns raw shopping-list entries into clean search
// terms and provides the token helpers used by candidate ranking.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// a quantity with an optional attached unit, eg "2", "1.5", "3/4", "2kg", "500 ml"
	quantityToken = regexp.MustCompile(`^\d+(?:[./]\d+)?(?:x\d+)?([a-z]+)?$`)

	// bare units that may appear as their own token, eg "kg Chicken"
	unitWords = map[string]bool{
		"kg": true, "g": true, "gram": true, "grams": true, "mg": true,
		"ml": true, "l": true, "litre": true, "litres": true, "liter": true, "liters": true,
		"oz": true, "ounce": true, "ounces": true, "lb": true, "lbs": true, "pound": true, "pounds": true,
		"pack": true, "packs": true, "pk": true, "count": true, "ct": true,
		"tbsp": true, "tsp": true, "cup": true, "cups": true,
		"dozen": true, "each": true, "bunch": true, "punnet": true,
	}

	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	multiSpace = regexp.MustCompile(`\s+`)
)

// SearchTerm strips quantity and unit tokens from a raw item name so
// that it can be used as a retailer search query. If stripping leaves
// nothing, the original trimmed name is returned instead. The function
// is pure and idempotent.
func SearchTerm(name string) string {
	trimmed := strings.TrimSpace(multiSpace.ReplaceAllString(name, " "))
	if trimmed == "" {
		return trimmed
	}

	kept := []string{}
	for _, word := range strings.Fields(trimmed) {
		lower := strings.ToLower(strings.Trim(word, ",.;:"))
		if lower == "" {
			continue
		}
		if unitWords[lower] {
			continue
		}
		if m := quantityToken.FindStringSubmatch(lower); m != nil {
			// a number with an unknown suffix ("2nd") is kept, a known
			// unit suffix ("2kg") or no suffix at all is dropped
			if m[1] == "" || unitWords[m[1]] {
				continue
			}
		}
		kept = append(kept, word)
	}

	if len(kept) == 0 {
		return trimmed
	}
	return strings.Join(kept, " ")
}

// Comparable lower-cases s and strips all non-alphanumeric characters,
// producing the canonical form used for substring comparison.
func Comparable(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// Tokens splits s into lower-cased alphanumeric tokens, dropping
// single-character leftovers.
func Tokens(s string) []string {
	parts := strings.Fields(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) > 1 {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Singularize strips a trailing "s". It is deliberately naive; the
// ranking only uses it as a weaker secondary match.
func Singularize(token string) string {
	if len(token) > 3 && strings.HasSuffix(token, "s") {
		return token[:len(token)-1]
	}
	return token
}
