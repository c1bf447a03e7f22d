package db

import (
	"math"
	"testing"

	"health-kb/embedding"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []float64
		expect float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 2}, []float64{-1, -2}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"both zero", []float64{0, 0}, []float64{0, 0}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, test := range tests {
		if got := CosineSimilarity(test.a, test.b); math.Abs(got-test.expect) > 1e-12 {
			t.Errorf("%s: expected %v, got %v", test.name, test.expect, got)
		}
	}
}

func TestSelfSimilarity(t *testing.T) {
	for _, text := range []string{"a", "hypertension", "Heart disease prevention focuses on diet and exercise."} {
		v := embedding.PseudoEmbed(text, 768)
		if got := CosineSimilarity(v, v); math.Abs(got-1) > 1e-9 {
			t.Errorf("Self similarity of %q: expected 1, got %v", text, got)
		}
	}
}

func TestNormalizeVector(t *testing.T) {
	v := []float64{3, 4}
	NormalizeVector(v)
	if math.Abs(v[0]-0.6) > 1e-12 || math.Abs(v[1]-0.8) > 1e-12 {
		t.Errorf("Expected [0.6 0.8], got %v", v)
	}

	zero := []float64{0, 0}
	NormalizeVector(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Zero vector must stay zero, got %v", zero)
	}
}

func TestDotProductAndMagnitude(t *testing.T) {
	if got := DotProduct([]float64{1, 2, 3}, []float64{4, 5, 6}); got != 32 {
		t.Errorf("Expected 32, got %v", got)
	}
	if got := DotProduct([]float64{1}, []float64{1, 2}); got != 0 {
		t.Errorf("Expected 0 for mismatched lengths, got %v", got)
	}
	if got := VectorMagnitude([]float64{3, 4}); got != 5 {
		t.Errorf("Expected 5, got %v", got)
	}
}

func TestRank(t *testing.T) {
	records := []VectorRecord{
		{ID: "low", Vector: []float64{0, 1}},
		{ID: "tie1", Vector: []float64{1, 0}},
		{ID: "mid", Vector: []float64{1, 1}},
		{ID: "tie2", Vector: []float64{5, 0}},
	}

	results := Rank([]float64{1, 0}, records, 3)
	expect := []string{"tie1", "tie2", "mid"}
	if len(results) != len(expect) {
		t.Fatalf("Expected %d results, got %d", len(expect), len(results))
	}
	for i, id := range expect {
		if results[i].Record.ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, results[i].Record.ID)
		}
	}

	if got := Rank([]float64{1, 0}, nil, 3); got == nil || len(got) != 0 {
		t.Errorf("Expected empty results for no records, got %v", got)
	}
	if got := Rank([]float64{1, 0}, records, 100); len(got) != 4 {
		t.Errorf("Expected all records, got %d", len(got))
	}
}
