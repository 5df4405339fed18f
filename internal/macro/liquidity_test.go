package macro

import (
	"testing"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/pkg/types"
)

func ctxWithZ4(v float64) types.SeriesContext {
	z := v
	return types.SeriesContext{DeltaZScore: map[int]*float64{4: &z}}
}

func TestLiquidityImpulseAllThreeAvailable(t *testing.T) {
	e := NewLiquidityEngine(zap.NewNop())
	asOf, _ := types.ParseDate("2024-07-01")

	walcl := ctxWithZ4(1.0)
	rrp := ctxWithZ4(0.2)
	tga := ctxWithZ4(0.1)

	state := e.Compute(asOf, walcl, rrp, tga)
	// impulseRaw = (1.0 - 0.2 - 0.1) * 3 / 3 = 0.7
	if diff := state.Impulse - 0.7; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected impulse 0.7, got %f", state.Impulse)
	}
	if state.Regime != types.LiquidityNeutral {
		t.Errorf("expected NEUTRAL at 0.7 (threshold 0.75), got %s", state.Regime)
	}
}

func TestLiquidityImpulseTwoOfThreeAvailable(t *testing.T) {
	e := NewLiquidityEngine(zap.NewNop())
	asOf, _ := types.ParseDate("2024-07-01")

	walcl := ctxWithZ4(1.0)
	rrp := types.SeriesContext{} // unavailable
	tga := ctxWithZ4(0.1)

	state := e.Compute(asOf, walcl, rrp, tga)
	// impulseRaw = (1.0 - 0.1) * 3 / 2 = 1.35
	if diff := state.Impulse - 1.35; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected impulse 1.35, got %f", state.Impulse)
	}
	if state.Available != 2 {
		t.Errorf("expected available=2, got %d", state.Available)
	}
	if state.Regime != types.LiquidityExpansion {
		t.Errorf("expected EXPANSION above 0.75, got %s", state.Regime)
	}
}

func TestLiquidityConfidenceFormula(t *testing.T) {
	e := NewLiquidityEngine(zap.NewNop())
	asOf, _ := types.ParseDate("2024-07-01")

	walcl := ctxWithZ4(2.0)
	rrp := ctxWithZ4(0)
	tga := ctxWithZ4(0)

	state := e.Compute(asOf, walcl, rrp, tga)
	// impulse = 2.0*3/3 = 2.0, clamped to [-3,3] stays 2.0
	// confidence = 0.6*(3/3) + 0.4*min(1, 2.0/2) = 0.6 + 0.4 = 1.0
	if diff := state.Confidence - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected confidence 1.0, got %f", state.Confidence)
	}
}
