package optimizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

func baseAllocation() types.Allocation {
	return types.Allocation{
		SPX:  decimal.NewFromFloat(0.4),
		BTC:  decimal.NewFromFloat(0.3),
		DXY:  decimal.NewFromFloat(0.1),
		Cash: decimal.NewFromFloat(0.2),
	}
}

func TestRunOffModeIdentity(t *testing.T) {
	o := NewOptimizer(zap.NewNop(), config.DefaultOptimizerConfig())
	in := Inputs{
		Current:   baseAllocation(),
		Mode:      types.OptimizerOff,
		Scenario:  types.ScenarioBase,
		Forecasts: map[types.Asset]AssetForecast{types.AssetSPX: {Mean: 0.05, Q05: -0.02}, types.AssetBTC: {Mean: 0.05, Q05: -0.02}},
	}
	out := o.Run(in)
	if out.Applied {
		t.Fatalf("expected off mode to not apply deltas")
	}
	if !out.Final.SPX.Equal(in.Current.SPX) {
		t.Errorf("expected identity allocation in off mode, got %v", out.Final)
	}
}

func TestRunTailClipsPositiveDeltas(t *testing.T) {
	o := NewOptimizer(zap.NewNop(), config.DefaultOptimizerConfig())
	in := Inputs{
		Current:  baseAllocation(),
		Mode:     types.OptimizerOn,
		Scenario: types.ScenarioTail,
		Forecasts: map[types.Asset]AssetForecast{
			types.AssetSPX: {Mean: 0.20, Q05: -0.01},
			types.AssetBTC: {Mean: 0.20, Q05: -0.01},
		},
	}
	out := o.Run(in)
	if out.Deltas[types.AssetSPX].GreaterThan(decimal.Zero) {
		t.Errorf("expected TAIL to clip positive SPX delta to 0, got %v", out.Deltas[types.AssetSPX])
	}
	if out.Deltas[types.AssetBTC].GreaterThan(decimal.Zero) {
		t.Errorf("expected TAIL to clip positive BTC delta to 0, got %v", out.Deltas[types.AssetBTC])
	}
}

func TestRunRiskOffSyncCapsBTCDelta(t *testing.T) {
	o := NewOptimizer(zap.NewNop(), config.DefaultOptimizerConfig())
	in := Inputs{
		Current:    baseAllocation(),
		Mode:       types.OptimizerOn,
		Scenario:   types.ScenarioBase,
		CrossAsset: types.CrossAssetRiskOffSync,
		Forecasts: map[types.Asset]AssetForecast{
			types.AssetSPX: {Mean: -0.02, Q05: -0.01},
			types.AssetBTC: {Mean: 0.10, Q05: -0.01},
		},
	}
	out := o.Run(in)
	btcDelta, _ := out.Deltas[types.AssetBTC].Float64()
	spxDelta, _ := out.Deltas[types.AssetSPX].Float64()
	if btcDelta > spxDelta {
		t.Errorf("expected RISK_OFF_SYNC to cap btcDelta at spxDelta, got btc=%v spx=%v", btcDelta, spxDelta)
	}
}

func TestRunFinalAllocationSumsToOne(t *testing.T) {
	o := NewOptimizer(zap.NewNop(), config.DefaultOptimizerConfig())
	in := Inputs{
		Current:  baseAllocation(),
		Mode:     types.OptimizerOn,
		Scenario: types.ScenarioBase,
		Forecasts: map[types.Asset]AssetForecast{
			types.AssetSPX: {Mean: 0.05, Q05: -0.02},
			types.AssetBTC: {Mean: 0.05, Q05: -0.02},
		},
	}
	out := o.Run(in)
	sum := out.Final.SPX.Add(out.Final.BTC).Add(out.Final.DXY).Add(out.Final.Cash)
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
		t.Errorf("expected allocation to sum to ~1, got %v", sum)
	}
}
