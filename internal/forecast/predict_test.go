package forecast

import (
	"testing"

	"github.com/regimebrain/brain/pkg/types"
)

func TestBuildHorizonForecastEnforcesMonotonicity(t *testing.T) {
	// Deliberately out of order and out of bounds.
	hf := buildHorizonForecast(types.Horizon90D, 0.1, -0.5, 0.05)
	if !(hf.Q05 <= hf.Q50 && hf.Q50 <= hf.Q95) {
		t.Fatalf("expected monotone quantiles, got q05=%f q50=%f q95=%f", hf.Q05, hf.Q50, hf.Q95)
	}
}

func TestBuildHorizonForecastTailRisk(t *testing.T) {
	hf := buildHorizonForecast(types.Horizon30D, -0.04, 0.0, 0.04)
	// riskBand for 30D is 0.04; (q50-q05)/riskBand = 0.04/0.04 = 1.0
	if hf.TailRisk < 0.99 {
		t.Errorf("expected tailRisk ~1.0, got %f", hf.TailRisk)
	}
}

func TestXorshift32Deterministic(t *testing.T) {
	a := newXorshift32(7)
	b := newXorshift32(7)
	for i := 0; i < 50; i++ {
		if a.next() != b.next() {
			t.Fatalf("deterministic streams diverged at step %d", i)
		}
	}
}
