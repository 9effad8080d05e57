package rank

import (
	"testing"

	"github.com/cartpilot/cartpilot/internal/types"
)

func TestFullQueryBeatsTokenOverlap(t *testing.T) {
	full := Score("chicken breast", "Free Range Chicken Breast 500g $12", false)
	partial := Score("chicken breast", "Chicken Thigh Fillets and Turkey Breast $9", false)
	if full <= partial {
		t.Errorf("full-query match (%d) must beat token-only match (%d)", full, partial)
	}
}

func TestOutOfStockPenalty(t *testing.T) {
	inStock := Score("chicken breast", "Chicken Breast 500g", false)
	outOfStock := Score("chicken breast", "Chicken Breast 500g", true)
	if inStock-outOfStock < 40 {
		t.Errorf("out-of-stock candidate must score at least 40 lower: in=%d out=%d", inStock, outOfStock)
	}
}

func TestSingularizedMatchScoresLower(t *testing.T) {
	exact := Score("eggs", "Free Range Eggs 12 pack", false)
	singular := Score("eggs", "Egg Carton Large", false)
	if singular >= exact {
		t.Errorf("singular-only match (%d) must score below exact (%d)", singular, exact)
	}
	if singular <= 0 {
		t.Errorf("singular-only match should still score positive, got %d", singular)
	}
}

func TestFuzzyTokenMatch(t *testing.T) {
	fuzzy := Score("yoghurt", "Greek Yogurt Natural 1kg", false)
	if fuzzy <= 0 {
		t.Errorf("one-edit token should contribute a fuzzy bonus, got %d", fuzzy)
	}
	none := Score("yoghurt", "Dishwashing Liquid", false)
	if none != 0 {
		t.Errorf("unrelated tile should score 0, got %d", none)
	}
}

func TestRankDeterministicAndFloored(t *testing.T) {
	candidates := []types.ProductCandidate{
		{ID: "cp-1", Title: "Chicken Breast Fillet", Text: "Chicken Breast Fillet 500g $11"},
		{ID: "cp-2", Title: "Dog Food", Text: "Dog Food Chicken Flavour"},
		{ID: "cp-3", Title: "Chicken Breast", Text: "Chicken Breast 1kg $18"},
		{ID: "cp-4", Title: "Paper Towel", Text: "Paper Towel 6 pack"},
	}

	first := Rank("chicken breast", candidates, 5)
	second := Rank("chicken breast", candidates, 5)

	if len(first) != len(second) {
		t.Fatalf("ranking not deterministic: %d vs %d results", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Score != second[i].Score {
			t.Fatalf("ranking not deterministic at %d: %+v vs %+v", i, first[i], second[i])
		}
	}

	for _, c := range first {
		if c.Score <= 0 {
			t.Errorf("candidate %s with score %d must not survive the floor", c.ID, c.Score)
		}
		if c.ID == "cp-4" {
			t.Error("unrelated candidate survived ranking")
		}
	}
	if len(first) == 0 || first[0].ID != "cp-1" && first[0].ID != "cp-3" {
		t.Errorf("expected a chicken breast tile on top, got %+v", first)
	}
}

func TestRankAllKeepsFlooredCandidates(t *testing.T) {
	candidates := []types.ProductCandidate{
		{ID: "cp-1", Title: "Dishwashing Liquid", Text: "Dishwashing Liquid 1L $4.00"},
		{ID: "cp-2", Title: "Paper Towel", Text: "Paper Towel 6 pack", OutOfStock: true},
	}

	if floored := Rank("milk", candidates, 5); len(floored) != 0 {
		t.Fatalf("Rank must drop zero-scoring candidates, kept %+v", floored)
	}

	all := RankAll("milk", candidates, 5)
	if len(all) != 2 {
		t.Fatalf("RankAll returned %d candidates; want all 2", len(all))
	}
	// ordering still holds: the out-of-stock penalty sinks cp-2
	if all[0].ID != "cp-1" || all[1].ID != "cp-2" {
		t.Errorf("RankAll ordering wrong: %+v", all)
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	candidates := make([]types.ProductCandidate, 0, 10)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		candidates = append(candidates, types.ProductCandidate{ID: id, Text: "milk bottle $2"})
	}
	ranked := Rank("milk", candidates, 3)
	if len(ranked) != 3 {
		t.Errorf("Rank returned %d candidates; want 3", len(ranked))
	}
	// equal scores fall back to id ordering
	if ranked[0].ID != "a" || ranked[1].ID != "b" || ranked[2].ID != "c" {
		t.Errorf("tie-break ordering wrong: %+v", ranked)
	}
}
