package normalize

import "testing"

func TestSearchTerm(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2kg Chicken Breast", "Chicken Breast"},
		{"Chicken Breast", "Chicken Breast"},
		{"500 ml Olive Oil", "Olive Oil"},
		{"1.5l Milk", "Milk"},
		{"3/4 cup Sugar", "Sugar"},
		{"Eggs dozen", "Eggs"},
		{"6 pack Yoghurt", "Yoghurt"},
		{"12 ct Dinner Rolls", "Dinner Rolls"},
		{"3", "3"},
		{"2kg", "2kg"},
		{"  spaced   out  ", "spaced out"},
		{"", ""},
		{"2nd Breakfast Muesli", "2nd Breakfast Muesli"},
	}

	for _, tt := range tests {
		result := SearchTerm(tt.input)
		if result != tt.expected {
			t.Errorf("SearchTerm(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSearchTermIdempotent(t *testing.T) {
	inputs := []string{
		"2kg Chicken Breast",
		"500 ml Olive Oil",
		"3",
		"6 pack Yoghurt",
		"Bananas",
		"",
	}

	for _, input := range inputs {
		once := SearchTerm(input)
		twice := SearchTerm(once)
		if once != twice {
			t.Errorf("SearchTerm not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestComparable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Chicken Breast", "chickenbreast"},
		{"Coca-Cola 1.25L", "cocacola125l"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Comparable(tt.input); got != tt.expected {
			t.Errorf("Comparable(%q) = %q; want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Free-Range Eggs, 12pk!")
	expected := []string{"free", "range", "eggs", "12pk"}
	if len(got) != len(expected) {
		t.Fatalf("Tokens() = %v; want %v", got, expected)
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Errorf("Tokens()[%d] = %q; want %q", i, got[i], expected[i])
		}
	}
}

func TestSingularize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"eggs", "egg"},
		{"egg", "egg"},
		{"gas", "gas"}, // too short to strip
		{"breasts", "breast"},
	}

	for _, tt := range tests {
		if got := Singularize(tt.input); got != tt.expected {
			t.Errorf("Singularize(%q) = %q; want %q", tt.input, got, tt.expected)
		}
	}
}
