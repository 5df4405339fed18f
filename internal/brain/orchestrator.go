// Package brain implements the Brain Orchestrator: scenario
// derivation, precedence-ordered directive emission, and evidence assembly
// over a WorldState + forecast bundle.
package brain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

// Orchestrator assembles the scenario, directives, and evidence for one
// WorldState.
type Orchestrator struct {
	logger *zap.Logger
	cfg    config.BrainConfig
}

func NewOrchestrator(logger *zap.Logger, cfg config.BrainConfig) *Orchestrator {
	return &Orchestrator{logger: logger.Named("brain"), cfg: cfg}
}

// Decide runs the full orchestration: scenario -> directives -> evidence.
func (o *Orchestrator) Decide(ws types.WorldState) (types.ScenarioPack, types.Directives, types.Evidence) {
	scenario := o.deriveScenario(ws)
	directives, tailAmplified := o.emitDirectives(ws, scenario)
	evidence := o.buildEvidence(ws, scenario, directives, tailAmplified)
	return scenario, directives, evidence
}

// deriveScenario classifies the dominant market scenario from the 90D
// forecast tail risk, the macro regime's STRESS posterior, the guard level,
// and the liquidity regime.
func (o *Orchestrator) deriveScenario(ws types.WorldState) types.ScenarioPack {
	tailRisk90 := maxTailRisk90(ws.Forecasts)

	stressProb := 0.0
	if p, ok := ws.Regime.Posterior[types.RegimeStress]; ok {
		stressProb = p
	}
	switch ws.Guard.Level {
	case types.GuardWarn:
		stressProb += 0.15
	case types.GuardCrisis:
		stressProb += 0.30
	case types.GuardBlock:
		stressProb += 0.45
	}
	if ws.Liquidity.Regime == types.LiquidityContraction {
		stressProb += 0.10
	}
	if stressProb > o.cfg.StressProbCap {
		stressProb = o.cfg.StressProbCap
	}

	var dominant types.Scenario
	switch {
	case tailRisk90 >= o.cfg.TailRiskThreshold90D,
		ws.Guard.Level >= types.GuardCrisis && tailRisk90 >= o.cfg.GuardTailRiskFloor:
		dominant = types.ScenarioTail
	case stressProb >= o.cfg.RiskStressProbFloor:
		dominant = types.ScenarioRisk
	default:
		dominant = types.ScenarioBase
	}

	pTail := clamp01(tailRisk90)
	pRisk := clamp01(stressProb)
	pBase := 1 - pTail - pRisk
	if pBase < 0 {
		pBase = 0
	}
	total := pTail + pRisk + pBase
	if total < 1e-9 {
		pBase = 1
		total = 1
	}

	probs := map[types.Scenario]float64{
		types.ScenarioTail: pTail / total,
		types.ScenarioRisk: pRisk / total,
		types.ScenarioBase: pBase / total,
	}

	return types.ScenarioPack{
		Dominant:      dominant,
		Probabilities: probs,
		Confidence:    clamp01(probs[dominant]),
	}
}

// emitDirectives runs the fixed-precedence directive cascade.
// tailAmplified reports whether the TAIL scenario's own scale-down fired,
// which gates the RISK_ON_SYNC bull-extension below.
func (o *Orchestrator) emitDirectives(ws types.WorldState, scenario types.ScenarioPack) (types.Directives, bool) {
	d := types.Directives{
		Caps:     map[types.Asset]decimal.Decimal{},
		Haircuts: map[types.Asset]decimal.Decimal{},
		Scales:   map[types.Asset]decimal.Decimal{},
		RiskMode: types.RiskModeNeutral,
	}

	switch ws.Guard.Level {
	case types.GuardBlock:
		d.Caps[types.AssetSPX] = decimal.NewFromFloat(0.05)
		d.Caps[types.AssetBTC] = decimal.NewFromFloat(0.05)
		d.RiskMode = types.RiskModeRiskOff
		d.Warnings = append(d.Warnings, "GUARD BLOCK")
		return d, false
	case types.GuardCrisis:
		d.Haircuts[types.AssetBTC] = decimal.NewFromFloat(0.60)
		d.Haircuts[types.AssetSPX] = decimal.NewFromFloat(0.75)
		d.RiskMode = types.RiskModeRiskOff
		d.Warnings = append(d.Warnings, "GUARD CRISIS")
		return d, false
	case types.GuardWarn:
		d.Haircuts[types.AssetBTC] = decimal.NewFromFloat(0.85)
		d.Haircuts[types.AssetSPX] = decimal.NewFromFloat(0.90)
		d.Warnings = append(d.Warnings, "GUARD WARN")
	}

	tailAmplified := false
	switch scenario.Dominant {
	case types.ScenarioTail:
		d.Scales[types.AssetBTC] = mulScale(d.Scales[types.AssetBTC], 0.85)
		d.Scales[types.AssetSPX] = mulScale(d.Scales[types.AssetSPX], 0.85)
		d.RiskMode = types.RiskModeRiskOff
		tailAmplified = true
	case types.ScenarioRisk:
		d.Scales[types.AssetBTC] = mulScale(d.Scales[types.AssetBTC], 0.92)
		d.Scales[types.AssetSPX] = mulScale(d.Scales[types.AssetSPX], 0.92)
		if d.RiskMode == types.RiskModeNeutral {
			d.RiskMode = types.RiskModeNeutral
		}
	}

	switch ws.CrossAsset.Label {
	case types.CrossAssetRiskOffSync:
		d.Haircuts[types.AssetBTC] = minHaircut(d.Haircuts[types.AssetBTC], 0.85)
	case types.CrossAssetFlightToQuality:
		d.Scales[types.AssetSPX] = minScale(d.Scales[types.AssetSPX], 0.95)
	case types.CrossAssetDecoupled:
		d.Scales[types.AssetBTC] = mulScale(d.Scales[types.AssetBTC], 0.92)
		d.Scales[types.AssetSPX] = mulScale(d.Scales[types.AssetSPX], 0.92)
	case types.CrossAssetRiskOnSync:
		if scenario.Dominant == types.ScenarioBase && !tailAmplified {
			d.Scales[types.AssetBTC] = capScale(mulScale(d.Scales[types.AssetBTC], 1.05), 1.10)
			d.Scales[types.AssetSPX] = capScale(mulScale(d.Scales[types.AssetSPX], 1.05), 1.10)
			if d.RiskMode == types.RiskModeNeutral {
				d.RiskMode = types.RiskModeRiskOn
			}
		}
	}

	return d, tailAmplified
}

func maxTailRisk90(forecasts map[types.Asset]map[types.Horizon]types.HorizonForecast) float64 {
	max := 0.0
	for _, byHorizon := range forecasts {
		if hf, ok := byHorizon[types.Horizon90D]; ok {
			if hf.TailRisk > max {
				max = hf.TailRisk
			}
		}
	}
	return max
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// mulScale multiplies an existing scale directive (defaulting to 1.0 when
// absent) by factor.
func mulScale(existing decimal.Decimal, factor float64) decimal.Decimal {
	base := existing
	if base.IsZero() {
		base = decimal.NewFromInt(1)
	}
	return base.Mul(decimal.NewFromFloat(factor))
}

func minScale(existing decimal.Decimal, cap float64) decimal.Decimal {
	base := existing
	if base.IsZero() {
		base = decimal.NewFromInt(1)
	}
	capD := decimal.NewFromFloat(cap)
	if base.LessThan(capD) {
		return base
	}
	return capD
}

func capScale(value decimal.Decimal, cap float64) decimal.Decimal {
	capD := decimal.NewFromFloat(cap)
	if value.GreaterThan(capD) {
		return capD
	}
	return value
}

func minHaircut(existing decimal.Decimal, cap float64) decimal.Decimal {
	capD := decimal.NewFromFloat(cap)
	if existing.IsZero() {
		return capD
	}
	if existing.LessThan(capD) {
		return existing
	}
	return capD
}

// buildEvidence assembles the explanation payload accompanying a decision.
func (o *Orchestrator) buildEvidence(ws types.WorldState, scenario types.ScenarioPack, d types.Directives, tailAmplified bool) types.Evidence {
	headline := fmt.Sprintf("%s scenario, guard %s, cross-asset %s", scenario.Dominant, ws.Guard.Level, ws.CrossAsset.Label)

	var drivers []string
	drivers = append(drivers, fmt.Sprintf("macro regime %s (persistence %.2f)", ws.Regime.Dominant, ws.Regime.Persistence))
	drivers = append(drivers, fmt.Sprintf("liquidity %s (impulse %.2f)", ws.Liquidity.Regime, ws.Liquidity.Impulse))
	drivers = append(drivers, fmt.Sprintf("cross-asset %s (confidence %.2f)", ws.CrossAsset.Label, ws.CrossAsset.Confidence))

	var conflicts []string
	if ws.Liquidity.Regime == types.LiquidityExpansion && ws.Guard.Level >= types.GuardCrisis {
		conflicts = append(conflicts, "liquidity expansion alongside an elevated crisis guard")
	}
	if scenario.Dominant == types.ScenarioBase && ws.CrossAsset.Label == types.CrossAssetRiskOffSync {
		conflicts = append(conflicts, "base scenario alongside a risk-off-sync cross-asset regime")
	}

	var whatWouldFlip []string
	if scenario.Dominant != types.ScenarioTail {
		whatWouldFlip = append(whatWouldFlip, "90D tail risk rising above the scenario threshold would flip to TAIL")
	}
	if ws.Guard.Level < types.GuardWarn {
		whatWouldFlip = append(whatWouldFlip, "credit composite or VIX crossing the warn threshold would introduce haircuts")
	}

	return types.Evidence{
		Headline:      headline,
		Drivers:       drivers,
		Conflicts:     conflicts,
		WhatWouldFlip: whatWouldFlip,
	}
}
