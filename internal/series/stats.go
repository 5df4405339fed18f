package series

import "math"

// Minimum sample counts below which a statistic returns null.
const (
	MinCorrelationSamples = 5
	MinZScoreDeltas       = 20
	Min5YWeeklyPoints     = 52
)

// Mean returns the arithmetic mean, or (0, false) if xs is empty.
func Mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// StdDev returns the population standard deviation, or (0, false) if
// len(xs) < 2.
func StdDev(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	mean, _ := Mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs))), true
}

// ZScore computes (x - mean(xs)) / stddev(xs), guarding zero variance and
// requiring at least MinZScoreDeltas samples in xs. Returns (0, false) if
// the guard fails; callers must treat false as "null", never coerce to 0.
func ZScore(x float64, xs []float64) (float64, bool) {
	if len(xs) < MinZScoreDeltas {
		return 0, false
	}
	mean, _ := Mean(xs)
	sd, ok := StdDev(xs)
	if !ok || sd < 1e-12 {
		return 0, false
	}
	return (x - mean) / sd, true
}

// ClampZ clamps a z-score to [-4, 4].
func ClampZ(z float64) float64 {
	return Clamp(z, -4, 4)
}

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// PearsonCorrelation computes the Pearson correlation coefficient of two
// equal-length series, guarding zero variance (denominator < 1e-12 → 0) and
// requiring at least MinCorrelationSamples paired observations. ok is false
// when the sample count guard fails.
func PearsonCorrelation(xs, ys []float64) (corr float64, ok bool) {
	n := len(xs)
	if n != len(ys) || n < MinCorrelationSamples {
		return 0, false
	}

	mx, _ := Mean(xs)
	my, _ := Mean(ys)

	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}

	denom := math.Sqrt(sxx * syy)
	if denom < 1e-12 {
		return 0, true
	}
	return sxy / denom, true
}

// LogReturns converts a price series into log returns: r[i] = ln(p[i]/p[i-1]).
// With all prices positive the output is one element shorter than the
// input. A return whose start or end price is non-positive is omitted, not
// zeroed, so each non-positive price removes the returns on both sides of it.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// Delta returns the change in value over n periods: xs[last] - xs[last-n],
// or (0, false) if xs doesn't have n+1 points.
func Delta(xs []float64, n int) (float64, bool) {
	if len(xs) < n+1 {
		return 0, false
	}
	last := len(xs) - 1
	return xs[last] - xs[last-n], true
}

// IsFinite reports whether x is neither NaN nor +/-Inf, used at every
// numeric-routine boundary to enforce the ValidationFailure contract.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
