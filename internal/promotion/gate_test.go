package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

func TestEvaluatePromotesOnAllGatesPassing(t *testing.T) {
	g := NewGate(zap.NewNop(), config.DefaultPromotionConfig())
	asOf, _ := types.ParseDate("2026-07-31")

	in := Input{
		Report: types.SimulatorReport{
			HitRateDeltaPP:       map[types.Horizon]float64{types.Horizon30D: 3.0, types.Horizon90D: 0.5},
			FlipRatePerYear:      2,
			MaxOverrideIntensity: 0.2,
			Samples: []types.SimulatorSample{
				{Scenario: types.ScenarioBase, OverrideIntensity: decimal.NewFromFloat(0.2)},
			},
		},
		Calibration:     types.CalibrationVersion{CreatedAt: asOf.Time().Add(-24 * time.Hour)},
		AsOf:            asOf,
		RouterFallbacks: 0,
	}

	out := g.Evaluate(in)
	if out.Verdict != types.VerdictPromote {
		t.Fatalf("expected promote verdict, got %s with reasons %v", out.Verdict, out.Reasons)
	}
}

func TestEvaluateRejectsOnStaleCalibrationAndFlipRate(t *testing.T) {
	g := NewGate(zap.NewNop(), config.DefaultPromotionConfig())
	asOf, _ := types.ParseDate("2026-07-31")

	in := Input{
		Report: types.SimulatorReport{
			HitRateDeltaPP:  map[types.Horizon]float64{types.Horizon30D: 3.0},
			FlipRatePerYear: 20,
		},
		Calibration: types.CalibrationVersion{CreatedAt: asOf.Time().Add(-30 * 24 * time.Hour)},
		AsOf:        asOf,
	}

	out := g.Evaluate(in)
	if out.Verdict != types.VerdictReject {
		t.Fatalf("expected reject verdict with multiple gate failures, got %s", out.Verdict)
	}
}

func TestEvaluateOverrideIntensityScenarioSpecificThreshold(t *testing.T) {
	g := NewGate(zap.NewNop(), config.DefaultPromotionConfig())
	asOf, _ := types.ParseDate("2026-07-31")

	in := Input{
		Report: types.SimulatorReport{
			HitRateDeltaPP:  map[types.Horizon]float64{types.Horizon30D: 3.0},
			FlipRatePerYear: 1,
			Samples: []types.SimulatorSample{
				{Scenario: types.ScenarioTail, OverrideIntensity: decimal.NewFromFloat(0.55)},
			},
		},
		Calibration: types.CalibrationVersion{CreatedAt: asOf.Time().Add(-time.Hour)},
		AsOf:        asOf,
	}

	out := g.Evaluate(in)
	if !out.Gates["maxOverrideIntensity"] {
		t.Errorf("expected TAIL-scenario override intensity of 0.55 to pass under the 0.60 TAIL ceiling")
	}
}
