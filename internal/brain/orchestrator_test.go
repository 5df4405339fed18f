package brain

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

func baseWorldState() types.WorldState {
	return types.WorldState{
		Regime: types.MacroRegimeState{
			Dominant:  types.RegimeNeutral,
			Posterior: map[types.MacroRegime]float64{types.RegimeNeutral: 0.8, types.RegimeStress: 0.1},
		},
		Liquidity:  types.LiquidityState{Regime: types.LiquidityNeutral},
		CrossAsset: types.CrossAssetPack{Label: types.CrossAssetMixed},
		Guard:      types.Guard{Level: types.GuardNone},
		Forecasts: map[types.Asset]map[types.Horizon]types.HorizonForecast{
			types.AssetSPX: {types.Horizon90D: {TailRisk: 0.05}},
			types.AssetBTC: {types.Horizon90D: {TailRisk: 0.05}},
		},
	}
}

func TestDecideBaseScenarioNoDirectives(t *testing.T) {
	o := NewOrchestrator(zap.NewNop(), config.DefaultBrainConfig())
	ws := baseWorldState()

	scenario, directives, _ := o.Decide(ws)
	if scenario.Dominant != types.ScenarioBase {
		t.Fatalf("expected BASE scenario, got %s", scenario.Dominant)
	}
	if len(directives.Caps) != 0 || len(directives.Haircuts) != 0 {
		t.Fatalf("expected no caps/haircuts in calm base scenario, got %+v", directives)
	}
}

func TestDecideGuardBlockShortCircuits(t *testing.T) {
	o := NewOrchestrator(zap.NewNop(), config.DefaultBrainConfig())
	ws := baseWorldState()
	ws.Guard.Level = types.GuardBlock
	ws.CrossAsset.Label = types.CrossAssetRiskOnSync

	_, directives, _ := o.Decide(ws)
	if directives.RiskMode != types.RiskModeRiskOff {
		t.Fatalf("expected RISK_OFF under guard BLOCK, got %s", directives.RiskMode)
	}
	for _, asset := range []types.Asset{types.AssetSPX, types.AssetBTC} {
		cap, ok := directives.Caps[asset]
		if !ok || !cap.Equal(decimal.NewFromFloat(0.05)) {
			t.Errorf("expected 0.05 cap on %s, got %v", asset, directives.Caps[asset])
		}
	}
	if len(directives.Scales) != 0 {
		t.Fatalf("expected BLOCK to short-circuit scenario/cross-asset scaling, got %+v", directives.Scales)
	}
}

func TestDecideTailScenarioFromForecast(t *testing.T) {
	o := NewOrchestrator(zap.NewNop(), config.DefaultBrainConfig())
	ws := baseWorldState()
	ws.Forecasts[types.AssetSPX][types.Horizon90D] = types.HorizonForecast{TailRisk: 0.40}

	scenario, directives, _ := o.Decide(ws)
	if scenario.Dominant != types.ScenarioTail {
		t.Fatalf("expected TAIL scenario from elevated 90D tail risk, got %s", scenario.Dominant)
	}
	if directives.RiskMode != types.RiskModeRiskOff {
		t.Fatalf("expected RISK_OFF under TAIL scenario, got %s", directives.RiskMode)
	}
}

func TestDecideRiskOnSyncBullExtensionOnlyInBase(t *testing.T) {
	o := NewOrchestrator(zap.NewNop(), config.DefaultBrainConfig())
	ws := baseWorldState()
	ws.CrossAsset.Label = types.CrossAssetRiskOnSync

	_, directives, _ := o.Decide(ws)
	spxScale, ok := directives.Scales[types.AssetSPX]
	if !ok {
		t.Fatalf("expected a bull-extension scale directive on SPX")
	}
	if spxScale.GreaterThan(decimal.NewFromFloat(1.10)) {
		t.Errorf("expected bull extension capped at 1.10, got %v", spxScale)
	}
	if !spxScale.GreaterThan(decimal.NewFromFloat(1.0)) {
		t.Errorf("expected bull extension above 1.0, got %v", spxScale)
	}
}

