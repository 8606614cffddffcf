// Package stats holds the descriptive and two-sample statistics used by the
// drift detector and the performance validator.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"FinGuard/internal/domain/models"
)

// Describe computes window statistics with population standard deviation.
// An empty input returns the zero value.
func Describe(x []float64) models.WindowStats {
	if len(x) == 0 {
		return models.WindowStats{}
	}
	sorted := sortedCopy(x)
	mean, std := stat.PopMeanStdDev(sorted, nil)
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	return models.WindowStats{
		N:      len(x),
		Mean:   mean,
		Std:    std,
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: Quantile(sorted, 0.5),
		Q1:     q1,
		Q3:     q3,
		IQR:    q3 - q1,
	}
}

// Quantile interpolates between closest ranks at h = (n-1)p, the same rule
// as numpy's default percentile. sorted must be ascending.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= n {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// PctDiff returns |a-b|/|b|*100. A zero base yields 0 when a is also 0 and
// +Inf otherwise.
func PctDiff(a, b float64) float64 {
	if b == 0 {
		if a == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(a-b) / math.Abs(b) * 100
}

// exactKSLimit bounds n*m for the exact small-sample p-value; larger pairs
// use the asymptotic tail.
const exactKSLimit = 10000

// KSTest runs the two-sample Kolmogorov-Smirnov test and returns the D
// statistic with its two-sided p-value, exact for small samples.
func KSTest(a, b []float64) (d, p float64) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 1
	}
	sa, sb := sortedCopy(a), sortedCopy(b)
	d = stat.KolmogorovSmirnov(sa, nil, sb, nil)

	if len(a)*len(b) <= exactKSLimit {
		return d, ksExact(len(a), len(b), d)
	}
	n, m := float64(len(a)), float64(len(b))
	en := math.Sqrt(n * m / (n + m))
	return d, ksSurvival((en + 0.12 + 0.11/en) * d)
}

// ksExact returns P(D >= d) for sample sizes n and m by counting the
// monotone lattice paths from (0,0) to (n,m) that stay strictly inside the
// band |i/n - j/m| < d.
func ksExact(n, m int, d float64) float64 {
	if d <= 0 {
		return 1
	}
	// every attainable D is a multiple of 1/(n*m)
	bound := math.Round(d * float64(n) * float64(m))
	row := make([]float64, m+1)
	for i := 0; i <= n; i++ {
		for j := 0; j <= m; j++ {
			if math.Abs(float64(i*m-j*n)) >= bound {
				row[j] = 0
				continue
			}
			if i == 0 && j == 0 {
				row[j] = 1
				continue
			}
			v := 0.0
			if i > 0 {
				v += row[j]
			}
			if j > 0 {
				v += row[j-1]
			}
			row[j] = v
		}
	}
	if row[m] == 0 {
		return 1
	}
	total, _ := math.Lgamma(float64(n + m + 1))
	fn, _ := math.Lgamma(float64(n + 1))
	fm, _ := math.Lgamma(float64(m + 1))
	return clamp01(1 - math.Exp(math.Log(row[m])-(total-fn-fm)))
}

// ksSurvival is the Kolmogorov distribution tail Q(lambda).
func ksSurvival(lambda float64) float64 {
	if lambda < 1e-3 {
		return 1
	}
	const eps1, eps2 = 1e-6, 1e-16
	a2 := -2 * lambda * lambda
	sum, prev := 0.0, 0.0
	sign := 2.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return clamp01(sum)
		}
		sign = -sign
		prev = math.Abs(term)
	}
	return 1
}

// Slope fits y = alpha + beta*x by least squares over x = 0..n-1 and returns beta.
func Slope(y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	return beta
}

// ErrorMetrics returns MAE, mean percentage error and RMSE.
func ErrorMetrics(errs, errPcts []float64) (mae, mape, rmse float64) {
	if len(errs) == 0 {
		return 0, 0, 0
	}
	sq := make([]float64, len(errs))
	for i, e := range errs {
		sq[i] = e * e
	}
	mae = stat.Mean(errs, nil)
	if len(errPcts) > 0 {
		mape = stat.Mean(errPcts, nil)
	}
	rmse = math.Sqrt(stat.Mean(sq, nil))
	return mae, mape, rmse
}

func sortedCopy(x []float64) []float64 {
	out := append([]float64(nil), x...)
	sort.Float64s(out)
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
