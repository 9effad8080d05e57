// Package rank scores DOM-derived product candidates against a
// normalized search term. Scoring is purely deterministic: identical
// input always produces identical ordering.
package rank

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/cartpilot/cartpilot/internal/normalize"
	"github.com/cartpilot/cartpilot/internal/types"
)

const (
	fullMatchBonus    = 120
	tokenBonus        = 25
	singularBonus     = 18
	fuzzyBonus        = 8
	outOfStockPenalty = 40

	// fuzzy matching only applies to longer tokens, short ones produce
	// too many false positives
	fuzzyMinLen      = 5
	fuzzyMaxDistance = 1

	DefaultLimit = 5
)

// Score rates how well a tile's combined text matches the search term.
// Higher is better; the result can go negative for out-of-stock tiles
// with weak text overlap.
func Score(term, tileText string, outOfStock bool) int {
	score := 0
	comparableText := normalize.Comparable(tileText)
	if full := normalize.Comparable(term); full != "" && strings.Contains(comparableText, full) {
		score += fullMatchBonus
	}

	tokens := normalize.Tokens(tileText)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	for _, token := range normalize.Tokens(term) {
		switch {
		case tokenSet[token]:
			score += tokenBonus
		case tokenSet[normalize.Singularize(token)] || containsSingular(tokenSet, token):
			score += singularBonus
		case fuzzyMatch(tokenSet, token):
			score += fuzzyBonus
		}
	}

	if outOfStock {
		score -= outOfStockPenalty
	}
	return score
}

// Rank scores all candidates, drops everything at or below zero and
// returns the top limit candidates ordered by score (candidate id
// breaks ties so the ordering stays stable). Pre-selected candidates
// bypass this floor at the call site, not here.
func Rank(term string, candidates []types.ProductCandidate, limit int) []types.ProductCandidate {
	return rank(term, candidates, limit, true)
}

// RankAll orders candidates the same way but keeps zero and negative
// scorers. Callers use it when the floor would empty the list so that
// visual verification can still pre-select a candidate past it.
func RankAll(term string, candidates []types.ProductCandidate, limit int) []types.ProductCandidate {
	return rank(term, candidates, limit, false)
}

func rank(term string, candidates []types.ProductCandidate, limit int, floor bool) []types.ProductCandidate {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ranked := make([]types.ProductCandidate, 0, len(candidates))
	for _, c := range candidates {
		text := c.Text
		if text == "" {
			text = c.Title
		}
		c.Score = Score(term, text, c.OutOfStock)
		if !floor || c.Score > 0 {
			ranked = append(ranked, c)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// containsSingular also matches when only the tile side needs the
// trailing "s" stripped, eg query "eggs" against tile "egg carton".
func containsSingular(tokenSet map[string]bool, token string) bool {
	singular := normalize.Singularize(token)
	if singular != token && tokenSet[singular] {
		return true
	}
	for t := range tokenSet {
		if normalize.Singularize(t) == token {
			return true
		}
	}
	return false
}

func fuzzyMatch(tokenSet map[string]bool, token string) bool {
	if len(token) < fuzzyMinLen {
		return false
	}
	for t := range tokenSet {
		if len(t) < fuzzyMinLen {
			continue
		}
		diff := len(t) - len(token)
		if diff < -fuzzyMaxDistance || diff > fuzzyMaxDistance {
			continue
		}
		if levenshtein.ComputeDistance(token, t) <= fuzzyMaxDistance {
			return true
		}
	}
	return false
}
