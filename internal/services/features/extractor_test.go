package features

import (
	"math"
	"testing"
)

func TestMinMaxRoundTrip(t *testing.T) {
	m := [][]float64{
		{10, 100, 5},
		{20, 100, 7},
		{15, 100, 6},
	}
	s, err := FitMinMax(m)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	n := s.Transform(m)
	if n[0][0] != 0 || n[1][0] != 1 || n[2][0] != 0.5 {
		t.Fatalf("column 0 not scaled: %v", n)
	}
	if n[1][1] != 0 {
		t.Fatalf("constant column should map to 0, got %v", n[1][1])
	}
	if got := s.Inverse(2, n[2][2]); math.Abs(got-6) > 1e-12 {
		t.Fatalf("inverse = %v, want 6", got)
	}
}

func TestFitMinMaxRejectsRaggedRows(t *testing.T) {
	if _, err := FitMinMax([][]float64{{1, 2}, {3}}); err == nil {
		t.Fatalf("expected error for ragged matrix")
	}
}
