package forecast

import (
	"sort"

	"github.com/regimebrain/brain/internal/series"
	"github.com/regimebrain/brain/pkg/types"
)

// Predict mixes per-regime quantile predictions weighted by regimePosterior
// into a HorizonForecast per configured horizon.
func (f *Forecaster) Predict(model types.TrainedModel, features []float64, regimePosterior map[types.MacroRegime]float64) map[types.Horizon]types.HorizonForecast {
	effective := effectiveWeights(model)
	mixWeights := normalizedMixWeights(regimePosterior, effective)

	out := make(map[types.Horizon]types.HorizonForecast, len(model.Horizons))
	for _, horizon := range model.Horizons {
		q := map[types.Quantile]float64{}
		for _, tau := range f.cfg.Quantiles {
			var mixed float64
			for regime, weight := range mixWeights {
				qw, ok := effective[regime]
				if !ok {
					continue
				}
				horizonWeights, ok := qw[horizon]
				if !ok {
					continue
				}
				model, ok := horizonWeights[tau]
				if !ok {
					continue
				}
				mixed += weight * predictRaw(model.W, model.B, features)
			}
			q[tau] = mixed
		}

		out[horizon] = buildHorizonForecast(horizon, q[types.Q05], q[types.Q50], q[types.Q95])
	}
	return out
}

// effectiveWeights returns, for every regime, the weight set it should use
// at inference: its own trained weights if it survived training, else
// NEUTRAL's weights as fallback, else absent if NEUTRAL itself was
// dropped.
func effectiveWeights(model types.TrainedModel) map[types.MacroRegime]map[types.Horizon]map[types.Quantile]types.QuantileWeights {
	out := make(map[types.MacroRegime]map[types.Horizon]map[types.Quantile]types.QuantileWeights)
	neutral, neutralOK := model.Weights[types.RegimeNeutral]
	for _, regime := range types.AllMacroRegimes {
		if w, ok := model.Weights[regime]; ok {
			out[regime] = w
			continue
		}
		if neutralOK {
			out[regime] = neutral
		}
	}
	return out
}

// normalizedMixWeights renormalizes the regime posterior over regimes that
// have effective weights available, redistributing mass from any regime
// that has none (the residual edge case where NEUTRAL itself was dropped).
func normalizedMixWeights(posterior map[types.MacroRegime]float64, effective map[types.MacroRegime]map[types.Horizon]map[types.Quantile]types.QuantileWeights) map[types.MacroRegime]float64 {
	var total float64
	out := make(map[types.MacroRegime]float64)
	for regime, p := range posterior {
		if _, ok := effective[regime]; !ok {
			continue
		}
		out[regime] = p
		total += p
	}
	if total < 1e-12 {
		return out
	}
	if total < 0.99 || total > 1.01 {
		for r := range out {
			out[r] /= total
		}
	}
	return out
}

// buildHorizonForecast enforces quantile monotonicity and return bounds
// and derives mean/tailRisk.
func buildHorizonForecast(horizon types.Horizon, q05, q50, q95 float64) types.HorizonForecast {
	bounds := returnBounds[horizon]
	q05 = series.Clamp(q05, bounds.lo, bounds.hi)
	q50 = series.Clamp(q50, bounds.lo, bounds.hi)
	q95 = series.Clamp(q95, bounds.lo, bounds.hi)

	vals := []float64{q05, q50, q95}
	sort.Float64s(vals)
	q05, q50, q95 = vals[0], vals[1], vals[2]

	mean := (q05 + q50 + q95) / 3
	riskBand := types.RiskBand[horizon]
	var tailRisk float64
	if riskBand > 1e-12 {
		tailRisk = series.Clamp((q50-q05)/riskBand, 0, 1)
	}

	return types.HorizonForecast{
		Horizon:  horizon,
		Mean:     mean,
		Q05:      q05,
		Q50:      q50,
		Q95:      q95,
		TailRisk: tailRisk,
	}
}

type bound struct{ lo, hi float64 }

var returnBounds = map[types.Horizon]bound{
	types.Horizon30D:  {-0.25, 0.25},
	types.Horizon90D:  {-0.40, 0.40},
	types.Horizon180D: {-0.60, 0.60},
	types.Horizon365D: {-0.90, 0.90},
}
