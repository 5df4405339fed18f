package calibration

import "testing"

func TestLCGDeterministic(t *testing.T) {
	a := NewLCG(42)
	b := NewLCG(42)
	for i := 0; i < 100; i++ {
		if a.Next() != b.Next() {
			t.Fatalf("two LCGs seeded identically diverged at step %d", i)
		}
	}
}

func TestSeedForHorizonDecorrelates(t *testing.T) {
	s30 := SeedForHorizon(42, 30)
	s90 := SeedForHorizon(42, 90)
	if s30 == s90 {
		t.Errorf("expected different horizons to produce different seeds")
	}
}

func TestClampAndRenormalizeRespectsBounds(t *testing.T) {
	weights := []float64{0.9, 0.05, 0.05}
	out := clampAndRenormalize(weights, 0.1, 0.6, 1.0)

	var sum float64
	for _, w := range out {
		if w < 0.1-1e-6 || w > 0.6+1e-6 {
			t.Errorf("weight %f out of [0.1, 0.6]", w)
		}
		sum += w
	}
	if sum < 0.98 || sum > 1.02 {
		t.Errorf("expected weights to sum close to 1.0, got %f", sum)
	}
}
