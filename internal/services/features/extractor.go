package features

import (
	"fmt"
	"math"
)

// Scaler holds per-column min/max learned from one input window.
type Scaler struct {
	Min []float64
	Max []float64
}

// FitMinMax learns column ranges from matrix (rows x cols).
func FitMinMax(matrix [][]float64) (Scaler, error) {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		return Scaler{}, fmt.Errorf("empty matrix")
	}
	cols := len(matrix[0])
	s := Scaler{Min: make([]float64, cols), Max: make([]float64, cols)}
	for c := 0; c < cols; c++ {
		s.Min[c], s.Max[c] = math.Inf(1), math.Inf(-1)
	}
	for i, row := range matrix {
		if len(row) != cols {
			return Scaler{}, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		for c, v := range row {
			s.Min[c] = math.Min(s.Min[c], v)
			s.Max[c] = math.Max(s.Max[c], v)
		}
	}
	return s, nil
}

// Transform maps each column to [0, 1]. Constant columns map to 0.
func (s Scaler) Transform(matrix [][]float64) [][]float64 {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		out[i] = make([]float64, len(row))
		for c, v := range row {
			span := s.Max[c] - s.Min[c]
			if span == 0 {
				continue
			}
			out[i][c] = (v - s.Min[c]) / span
		}
	}
	return out
}

// Inverse maps a normalized value of column c back to its original scale.
func (s Scaler) Inverse(c int, v float64) float64 {
	return s.Min[c] + v*(s.Max[c]-s.Min[c])
}
