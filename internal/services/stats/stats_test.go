package stats

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDescribe(t *testing.T) {
	s := Describe([]float64{4, 1, 3, 2})
	if s.N != 4 || !near(s.Mean, 2.5) || !near(s.Std, math.Sqrt(1.25)) {
		t.Fatalf("unexpected moments: %+v", s)
	}
	if !near(s.Median, 2.5) || !near(s.Q1, 1.75) || !near(s.Q3, 3.25) || !near(s.IQR, 1.5) {
		t.Fatalf("unexpected quantiles: %+v", s)
	}
	if s.Min != 1 || s.Max != 4 {
		t.Fatalf("unexpected range: %+v", s)
	}
}

func TestDescribeEmpty(t *testing.T) {
	if s := Describe(nil); s.N != 0 || s.Mean != 0 {
		t.Fatalf("expected zero stats, got %+v", s)
	}
}

func TestPctDiff(t *testing.T) {
	if got := PctDiff(106, 100); !near(got, 6) {
		t.Fatalf("PctDiff = %v", got)
	}
	if got := PctDiff(0, 0); got != 0 {
		t.Fatalf("PctDiff(0,0) = %v", got)
	}
	if got := PctDiff(1, 0); !math.IsInf(got, 1) {
		t.Fatalf("PctDiff(1,0) = %v", got)
	}
}

func TestKSTest(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	d, p := KSTest(a, a)
	if d != 0 || p != 1 {
		t.Fatalf("identical samples: d=%v p=%v", d, p)
	}

	b := []float64{101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	d, p = KSTest(a, b)
	if !near(d, 1) {
		t.Fatalf("disjoint samples: d=%v", d)
	}
	if p >= 0.05 {
		t.Fatalf("disjoint samples should be significant, p=%v", p)
	}
}

func TestKSTestExactSmallSamples(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		// only the two corner paths leave the band: p = 2 / C(n+m, n)
		{"3v3 disjoint", []float64{1, 2, 3}, []float64{4, 5, 6}, 0.1},
		{"7v30 disjoint", seq(7, 200), seq(30, 1), 2.0 / 10295472},
		// D = 1/3 is the smallest attainable value here, so p = 1
		{"3v3 interleaved", []float64{1, 3, 5}, []float64{2, 4, 6}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, p := KSTest(tc.a, tc.b)
			if math.Abs(p-tc.want) > 1e-6*tc.want {
				t.Fatalf("p = %v, want %v", p, tc.want)
			}
		})
	}
}

func seq(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func TestSlope(t *testing.T) {
	if got := Slope([]float64{5, 4, 3, 2}); !near(got, -1) {
		t.Fatalf("Slope = %v", got)
	}
	if got := Slope([]float64{3}); got != 0 {
		t.Fatalf("Slope of single point = %v", got)
	}
}

func TestErrorMetrics(t *testing.T) {
	mae, mape, rmse := ErrorMetrics([]float64{1, 3}, []float64{2, 4})
	if !near(mae, 2) || !near(mape, 3) || !near(rmse, math.Sqrt(5)) {
		t.Fatalf("got mae=%v mape=%v rmse=%v", mae, mape, rmse)
	}
}
