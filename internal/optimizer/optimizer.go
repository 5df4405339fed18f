// Package optimizer implements the Capital Allocation Optimizer: a
// small-delta wrapper around the Allocation Policy's output, scored from
// forecast evidence and bounded by TAIL/cross-asset/cash-floor safety
// constraints.
package optimizer

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

// AssetForecast bundles the forecast fields the optimizer's score function
// reads for one asset.
type AssetForecast struct {
	Mean float64
	Q05  float64
}

// Inputs bundles everything the optimizer needs for one reference date.
type Inputs struct {
	Current        types.Allocation
	Mode           types.OptimizerMode
	Posture        types.Posture
	Scenario       types.Scenario
	CrossAsset     types.CrossAssetRegime
	ContagionScore float64
	Forecasts      map[types.Asset]AssetForecast
}

// Optimizer computes bounded deltas on top of a cascade's output.
type Optimizer struct {
	logger *zap.Logger
	cfg    config.OptimizerConfig
}

func NewOptimizer(logger *zap.Logger, cfg config.OptimizerConfig) *Optimizer {
	return &Optimizer{logger: logger.Named("optimizer"), cfg: cfg}
}

// Run computes the optimizer's scored deltas and, depending on mode,
// applies them to produce the final allocation.
func (o *Optimizer) Run(in Inputs) types.OptimizerOutput {
	maxDelta := o.maxDeltaFor(in.Posture, in.Scenario)

	rationales := make([]types.AssetRationale, 0, 2)
	deltas := map[types.Asset]decimal.Decimal{}

	for _, asset := range []types.Asset{types.AssetSPX, types.AssetBTC} {
		fc := in.Forecasts[asset]
		guardPenalty := 0.0
		if in.Posture == types.PostureDefensive {
			guardPenalty = o.cfg.WGuard
		}
		score := fc.Mean*o.cfg.WReturn - math.Abs(fc.Q05)*o.cfg.WTail - in.ContagionScore*o.cfg.WCorr - guardPenalty
		delta := clamp(score*o.cfg.K, -maxDelta, maxDelta)

		rationales = append(rationales, types.AssetRationale{
			Asset:        asset,
			ExpectedTilt: decimal.NewFromFloat(fc.Mean * o.cfg.WReturn),
			TailPenalty:  decimal.NewFromFloat(math.Abs(fc.Q05) * o.cfg.WTail),
			CorrPenalty:  decimal.NewFromFloat(in.ContagionScore * o.cfg.WCorr),
			GuardPenalty: decimal.NewFromFloat(guardPenalty),
			Score:        decimal.NewFromFloat(score),
			Delta:        decimal.NewFromFloat(delta),
		})
		deltas[asset] = decimal.NewFromFloat(delta)
	}

	spxDelta, _ := deltas[types.AssetSPX].Float64()
	btcDelta, _ := deltas[types.AssetBTC].Float64()

	// Safety constraint: TAIL clips positive deltas to 0 (risk reduction only).
	if in.Scenario == types.ScenarioTail {
		if spxDelta > 0 {
			spxDelta = 0
		}
		if btcDelta > 0 {
			btcDelta = 0
		}
	}

	// Safety constraint: RISK_OFF_SYNC caps btcDelta at spxDelta.
	if in.CrossAsset == types.CrossAssetRiskOffSync && btcDelta > spxDelta {
		btcDelta = spxDelta
	}

	spx, _ := in.Current.SPX.Float64()
	btc, _ := in.Current.BTC.Float64()
	cash, _ := in.Current.Cash.Float64()

	newSPX := spx + spxDelta
	newBTC := btc + btcDelta
	newCash := cash - spxDelta - btcDelta

	// Enforce the cash floor by subtracting the deficit from the larger
	// risk position.
	if newCash < o.cfg.CashFloor {
		deficit := o.cfg.CashFloor - newCash
		if newBTC >= newSPX {
			newBTC -= deficit
		} else {
			newSPX -= deficit
		}
		newCash = o.cfg.CashFloor
	}

	newSPX = math.Max(newSPX, 0)
	newBTC = math.Max(newBTC, 0)
	newCash = math.Max(newCash, 0)
	dxy, _ := in.Current.DXY.Float64()

	// The optimizer only tilts spx/btc/cash directly; dxy is carried through
	// unchanged and folded into the final normalization so all four parts
	// still sum to 1.
	total := newSPX + newBTC + newCash + dxy
	if total > 1e-9 {
		newSPX /= total
		newBTC /= total
		newCash /= total
		dxy /= total
	}

	final := types.Allocation{
		SPX:  decimal.NewFromFloat(newSPX).Round(6),
		BTC:  decimal.NewFromFloat(newBTC).Round(6),
		DXY:  decimal.NewFromFloat(dxy).Round(6),
		Cash: decimal.NewFromFloat(newCash).Round(6),
	}

	applied := in.Mode == types.OptimizerOn
	if !applied {
		final = in.Current
	}

	return types.OptimizerOutput{
		Mode:      in.Mode,
		Rationale: rationales,
		Deltas: map[types.Asset]decimal.Decimal{
			types.AssetSPX: decimal.NewFromFloat(spxDelta),
			types.AssetBTC: decimal.NewFromFloat(btcDelta),
		},
		Final:   final,
		Applied: applied,
	}
}

func (o *Optimizer) maxDeltaFor(posture types.Posture, scenario types.Scenario) float64 {
	maxDelta := o.cfg.MaxDeltaBase
	if posture == types.PostureDefensive {
		maxDelta = o.cfg.MaxDeltaDefensive
	}
	if scenario == types.ScenarioTail && maxDelta > o.cfg.MaxDeltaTail {
		maxDelta = o.cfg.MaxDeltaTail
	}
	return maxDelta
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
