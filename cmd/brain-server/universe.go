package main

import (
	"github.com/regimebrain/brain/internal/calibration"
	"github.com/regimebrain/brain/internal/macro"
	"github.com/regimebrain/brain/pkg/types"
)

// riskAssets are the two instruments the allocation cascade and optimizer
// actually size; DXY is carried through as a currency hedge leg and GOLD is
// cross-asset context only, never allocated.
var riskAssets = []types.Asset{types.AssetSPX, types.AssetBTC}

// scoredAssets is every asset the Macro Score Engine runs for, one
// MacroScore per WorldState entry.
var scoredAssets = []types.Asset{types.AssetSPX, types.AssetBTC, types.AssetDXY}

// crossAssetSeriesIDs are the closing-price series feeding the Cross-Asset
// Regime Engine's rolling correlations.
var crossAssetSeriesIDs = map[types.Asset]string{
	types.AssetSPX:  "SPX",
	types.AssetBTC:  "BTC",
	types.AssetDXY:  "DXY",
	types.AssetGold: "GOLD",
}

// liquiditySeriesIDs are the three Fed balance-sheet series the Liquidity
// Impulse Engine combines.
var liquiditySeriesIDs = struct {
	WALCL, RRP, TGA string
}{WALCL: "WALCL", RRP: "RRP", TGA: "TGA"}

// guardSeriesIDs are the stress inputs the Crisis Guard evaluates.
var guardSeriesIDs = struct {
	Credit, VIX string
}{Credit: "CREDIT_COMPOSITE", VIX: "VIX"}

// candidateSeries enumerates the macro series eligible for inclusion in a
// calibrated weight vector, with the sign of their expected effect on
// forward risk-asset returns: CPI and PCE surprises to the upside signal
// tightening (bearish, sign -1); NFP strength signals growth (bullish,
// sign +1).
var candidateSeries = []calibration.CandidateSeries{
	{SeriesID: "CPI", Sign: -1},
	{SeriesID: "NFP", Sign: 1},
	{SeriesID: "PCE", Sign: -1},
}

// defaultWeightSet returns the equal-weight, uncalibrated component specs
// used until a calibration version has been promoted for an asset. It is
// identical across horizons and assets: a neutral starting point the
// calibrator is meant to improve on.
func defaultWeightSet(horizons []types.Horizon) macro.WeightSet {
	specs := make([]macro.ComponentSpec, 0, len(candidateSeries))
	w := 1.0 / float64(len(candidateSeries))
	lag := map[string]int{"CPI": 30, "NFP": 5, "PCE": 30}
	for _, c := range candidateSeries {
		specs = append(specs, macro.ComponentSpec{
			SeriesID: c.SeriesID,
			Weight:   w,
			LagDays:  lag[c.SeriesID],
			Sign:     c.Sign,
		})
	}
	ws := make(macro.WeightSet, len(horizons))
	for _, h := range horizons {
		ws[h] = specs
	}
	return ws
}

// weightSetFromCalibration converts a promoted CalibrationVersion's
// per-horizon component contributions back into the ComponentSpec shape
// the Macro Score Engine consumes. A horizon the version doesn't cover is
// omitted from the returned set and reported in missing rather than
// silently substituted with the uncalibrated default; the caller is
// expected to fail that horizon explicit (apperr.InsufficientCalibration)
// rather than mask the gap.
func weightSetFromCalibration(v types.CalibrationVersion, horizons []types.Horizon) (ws macro.WeightSet, missing []types.Horizon) {
	signs := make(map[string]float64, len(candidateSeries))
	for _, c := range candidateSeries {
		signs[c.SeriesID] = c.Sign
	}

	out := make(macro.WeightSet, len(horizons))
	for _, h := range horizons {
		contribs, ok := v.Weights[h]
		if !ok {
			missing = append(missing, h)
			continue
		}
		specs := make([]macro.ComponentSpec, 0, len(contribs))
		for _, c := range contribs {
			weight, _ := c.Weight.Float64()
			specs = append(specs, macro.ComponentSpec{
				SeriesID: c.SeriesID,
				Weight:   weight,
				LagDays:  c.LagDays,
				Sign:     signs[c.SeriesID],
			})
		}
		out[h] = specs
	}
	return out, missing
}
