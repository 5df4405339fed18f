package series

import "testing"

func TestPearsonCorrelationPerfect(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 6, 8, 10}
	corr, ok := PearsonCorrelation(xs, ys)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if corr < 0.999 {
		t.Errorf("expected correlation ~1.0, got %f", corr)
	}
}

func TestPearsonCorrelationInsufficientSamples(t *testing.T) {
	xs := []float64{1, 2, 3}
	ys := []float64{1, 2, 3}
	_, ok := PearsonCorrelation(xs, ys)
	if ok {
		t.Errorf("expected ok=false for fewer than MinCorrelationSamples")
	}
}

func TestPearsonCorrelationZeroVariance(t *testing.T) {
	xs := []float64{5, 5, 5, 5, 5, 5}
	ys := []float64{1, 2, 3, 4, 5, 6}
	corr, ok := PearsonCorrelation(xs, ys)
	if !ok {
		t.Fatalf("expected ok=true (sample count satisfied)")
	}
	if corr != 0 {
		t.Errorf("expected zero-variance guard to yield 0, got %f", corr)
	}
}

func TestZScoreRequiresMinSamples(t *testing.T) {
	few := make([]float64, 10)
	if _, ok := ZScore(1.0, few); ok {
		t.Errorf("expected false with fewer than MinZScoreDeltas samples")
	}

	enough := make([]float64, MinZScoreDeltas)
	for i := range enough {
		enough[i] = float64(i)
	}
	z, ok := ZScore(100, enough)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if z <= 0 {
		t.Errorf("expected positive z-score for an outlier above the distribution, got %f", z)
	}
}

func TestClampZBounds(t *testing.T) {
	if ClampZ(10) != 4 {
		t.Errorf("expected clamp to 4")
	}
	if ClampZ(-10) != -4 {
		t.Errorf("expected clamp to -4")
	}
}

func TestLogReturnsSkipsNonPositive(t *testing.T) {
	prices := []float64{100, 110, 0, 120}
	rets := LogReturns(prices)
	if len(rets) != 1 {
		t.Fatalf("expected 1 valid return (100->110; 110->0 and 0->120 skipped), got %d", len(rets))
	}
}
