// Package crossasset implements the Cross-Asset Regime Engine:
// rolling Pearson correlations among {BTC, SPX, DXY, GOLD} classified into
// a priority-ordered regime label with contagion/decouple diagnostics.
package crossasset

import (
	"math"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/series"
	"github.com/regimebrain/brain/pkg/types"
)

// Windows are the three rolling correlation windows evaluated.
var Windows = []int{20, 60, 120}

var pairs = [][2]types.Asset{
	{types.AssetBTC, types.AssetSPX},
	{types.AssetBTC, types.AssetDXY},
	{types.AssetBTC, types.AssetGold},
	{types.AssetSPX, types.AssetDXY},
	{types.AssetSPX, types.AssetGold},
	{types.AssetDXY, types.AssetGold},
}

// Engine computes the cross-asset regime for one reference date.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("crossasset")}
}

// Compute builds a CrossAssetPack from per-asset closing-price log returns,
// truncated to ≤ asOf by the caller's As-Of Filter pass. Each window pairs
// the trailing returns of the two series by position; no alignment by
// common date is performed, here or by the caller.
func (e *Engine) Compute(asOf types.Date, logReturns map[types.Asset][]float64) types.CrossAssetPack {
	pack := types.CrossAssetPack{AsOf: asOf}

	byWindow := make(map[int]map[[2]types.Asset]types.CorrelationPair)
	for _, w := range Windows {
		byWindow[w] = make(map[[2]types.Asset]types.CorrelationPair)
		for _, pair := range pairs {
			cp := computePairCorrelation(pair, logReturns, w)
			byWindow[w][pair] = cp
			pack.Correlations = append(pack.Correlations, cp)
		}
	}

	// Primary diagnostics are computed on the 60-day window where present.
	mid := byWindow[60]

	corrBTCSPX := mid[[2]types.Asset{types.AssetBTC, types.AssetSPX}]
	corrDXYSPX := mid[[2]types.Asset{types.AssetSPX, types.AssetDXY}]
	corrDXYBTC := mid[[2]types.Asset{types.AssetBTC, types.AssetDXY}]
	corrGoldSPX := mid[[2]types.Asset{types.AssetSPX, types.AssetGold}]
	corrGoldBTC := mid[[2]types.Asset{types.AssetBTC, types.AssetGold}]
	corrDXYGold := mid[[2]types.Asset{types.AssetDXY, types.AssetGold}]

	for _, cp := range mid {
		if !cp.Insufficient {
			pack.DecoupleScore = 1 - meanAbsCorrelation(mid)
			break
		}
	}
	pack.ContagionScore = meanAbsRiskAssetCorrelation(mid)
	pack.SignFlipCount = signFlipCount(byWindow)
	pack.CorrStability = corrStability(byWindow)

	switch {
	case corrBTCSPX.Correlation >= 0.35 && (corrDXYBTC.Correlation >= 0.10 || corrDXYSPX.Correlation >= 0.10):
		pack.Label = types.CrossAssetRiskOffSync
		pack.Rationale = "btc-spx correlation elevated alongside positive dxy co-movement"
	case corrBTCSPX.Correlation >= 0.35 && corrDXYSPX.Correlation <= -0.15 && corrGoldSPX.Correlation <= 0:
		pack.Label = types.CrossAssetRiskOnSync
		pack.Rationale = "btc-spx correlation elevated with classic risk-on dxy/gold inverse relationship"
	case corrGoldSPX.Correlation <= -0.10 && corrGoldBTC.Correlation <= -0.10 && corrDXYGold.Correlation <= -0.10:
		pack.Label = types.CrossAssetFlightToQuality
		pack.Rationale = "gold negatively correlated with risk assets and with dxy"
	case corrBTCSPX.Correlation <= 0.15 && pack.DecoupleScore >= 0.3:
		pack.Label = types.CrossAssetDecoupled
		pack.Rationale = "btc-spx correlation low and pairwise correlations broadly weak"
	default:
		pack.Label = types.CrossAssetMixed
		pack.Rationale = "no single correlation regime dominates"
	}

	pack.Confidence = confidenceFor(pack.Label, corrBTCSPX, corrDXYSPX, corrDXYBTC, corrGoldSPX, corrGoldBTC, corrDXYGold, byWindow)

	return pack
}

func computePairCorrelation(pair [2]types.Asset, logReturns map[types.Asset][]float64, window int) types.CorrelationPair {
	a := trailing(logReturns[pair[0]], window)
	b := trailing(logReturns[pair[1]], window)
	n := minInt(len(a), len(b))
	a, b = a[:n], b[:n]

	cp := types.CorrelationPair{A: pair[0], B: pair[1], Window: window, SampleCount: n}
	if n < int(0.5*float64(window)) {
		cp.Insufficient = true
		return cp
	}
	corr, ok := series.PearsonCorrelation(a, b)
	if !ok {
		cp.Insufficient = true
		return cp
	}
	cp.Correlation = corr
	return cp
}

func trailing(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func meanAbsCorrelation(m map[[2]types.Asset]types.CorrelationPair) float64 {
	var sum float64
	var n int
	for _, cp := range m {
		if cp.Insufficient {
			continue
		}
		sum += math.Abs(cp.Correlation)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func meanAbsRiskAssetCorrelation(m map[[2]types.Asset]types.CorrelationPair) float64 {
	riskPairs := [][2]types.Asset{
		{types.AssetBTC, types.AssetSPX},
		{types.AssetBTC, types.AssetDXY},
		{types.AssetSPX, types.AssetDXY},
	}
	var sum float64
	var n int
	for _, p := range riskPairs {
		cp := m[p]
		if cp.Insufficient {
			continue
		}
		sum += math.Abs(cp.Correlation)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func signFlipCount(byWindow map[int]map[[2]types.Asset]types.CorrelationPair) int {
	count := 0
	for _, p := range pairs {
		var signs []float64
		for _, w := range Windows {
			cp := byWindow[w][p]
			if cp.Insufficient {
				continue
			}
			signs = append(signs, cp.Correlation)
		}
		for i := 1; i < len(signs); i++ {
			if (signs[i-1] > 0) != (signs[i] > 0) {
				count++
			}
		}
	}
	return count
}

func corrStability(byWindow map[int]map[[2]types.Asset]types.CorrelationPair) float64 {
	var variances []float64
	for _, p := range pairs {
		var vals []float64
		for _, w := range Windows {
			cp := byWindow[w][p]
			if cp.Insufficient {
				continue
			}
			vals = append(vals, cp.Correlation)
		}
		if len(vals) < 2 {
			continue
		}
		mean, _ := series.Mean(vals)
		var ss float64
		for _, v := range vals {
			d := v - mean
			ss += d * d
		}
		variances = append(variances, ss/float64(len(vals)))
	}
	if len(variances) == 0 {
		return 0
	}
	avgVar, _ := series.Mean(variances)
	return avgVar
}

// confidenceFor reflects how many thresholds were exceeded and consistency
// across the three windows.
func confidenceFor(label types.CrossAssetRegime, btcSpx, dxySpx, dxyBtc, goldSpx, goldBtc, dxyGold types.CorrelationPair, byWindow map[int]map[[2]types.Asset]types.CorrelationPair) float64 {
	thresholdsExceeded := 0
	switch label {
	case types.CrossAssetRiskOffSync:
		thresholdsExceeded = countTrue(btcSpx.Correlation >= 0.35, dxyBtc.Correlation >= 0.10 || dxySpx.Correlation >= 0.10)
	case types.CrossAssetRiskOnSync:
		thresholdsExceeded = countTrue(btcSpx.Correlation >= 0.35, dxySpx.Correlation <= -0.15, goldSpx.Correlation <= 0)
	case types.CrossAssetFlightToQuality:
		thresholdsExceeded = countTrue(goldSpx.Correlation <= -0.10, goldBtc.Correlation <= -0.10, dxyGold.Correlation <= -0.10)
	case types.CrossAssetDecoupled:
		thresholdsExceeded = countTrue(btcSpx.Correlation <= 0.15)
	default:
		thresholdsExceeded = 0
	}

	// consistency: fraction of windows where btc-spx sign agrees with the
	// 60-day window's sign, as a proxy for cross-window stability.
	consistent := 0
	for _, w := range Windows {
		cp := byWindow[w][[2]types.Asset{types.AssetBTC, types.AssetSPX}]
		if cp.Insufficient {
			continue
		}
		if (cp.Correlation > 0) == (btcSpx.Correlation > 0) {
			consistent++
		}
	}
	consistency := float64(consistent) / float64(len(Windows))

	base := 0.3 + 0.15*float64(thresholdsExceeded)
	conf := base*0.6 + consistency*0.4
	return series.Clamp(conf, 0, 1)
}

func countTrue(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}
