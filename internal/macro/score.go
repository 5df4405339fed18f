package macro

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/pkg/types"
)

func decimalOf(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// ComponentSpec is one macro series' contribution to a per-(asset,horizon)
// weight set: its calibrated weight, publication lag, and expected sign.
type ComponentSpec struct {
	SeriesID string
	Weight   float64
	LagDays  int
	Sign     float64
}

// WeightSet is the active per-horizon set of component specs for one asset.
type WeightSet map[types.Horizon][]ComponentSpec

// ScoreEngine aggregates calibrated per-horizon weights over macro series
// context into a signed [-1,1] MacroScore.
type ScoreEngine struct {
	logger  *zap.Logger
	builder *ContextBuilder
}

func NewScoreEngine(logger *zap.Logger, builder *ContextBuilder) *ScoreEngine {
	return &ScoreEngine{logger: logger.Named("macro.score"), builder: builder}
}

// Compute builds a MacroScore for asset/horizon. rawSeries maps seriesID to
// its as-of-filtered Series (already publication-lag filtered for asOf by
// the caller's As-Of Filter pass); Compute additionally shifts the lookup
// date by each component's own calibrated lag.
func (e *ScoreEngine) Compute(asset types.Asset, horizon types.Horizon, weights []ComponentSpec, rawSeries map[string]types.Series, asOf types.Date) types.MacroScore {
	out := types.MacroScore{
		Asset:   asset,
		Horizon: horizon,
		AsOf:    asOf,
	}

	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w.Weight
	}

	type active struct {
		spec     ComponentSpec
		pressure float64
	}
	var actives []active
	var skippedWeight float64

	for _, w := range weights {
		contrib := types.ComponentContribution{
			SeriesID: w.SeriesID,
			Weight:   decimalOf(w.Weight),
			LagDays:  w.LagDays,
		}

		s, ok := rawSeries[w.SeriesID]
		if !ok {
			contrib.Skipped = true
			skippedWeight += w.Weight
			out.Components = append(out.Components, contrib)
			continue
		}

		lookupAsOf := asOf.AddDays(-w.LagDays)
		lagged := types.Series{ID: s.ID, Frequency: s.Frequency}
		for _, p := range s.Points {
			if !p.Date.After(lookupAsOf) {
				lagged.Points = append(lagged.Points, p)
			}
		}
		ctx, err := e.builder.Build(lagged, lookupAsOf)
		if err != nil || ctx.Current == nil || ctx.Mean5Y == nil || ctx.Std5Y == nil || *ctx.Std5Y < 1e-12 {
			contrib.Skipped = true
			skippedWeight += w.Weight
			out.Components = append(out.Components, contrib)
			continue
		}

		z := (*ctx.Current - *ctx.Mean5Y) / *ctx.Std5Y
		pressure := w.Sign * z
		actives = append(actives, active{spec: w, pressure: pressure})
		out.Components = append(out.Components, contrib)
	}

	out.SkippedWeight = decimalOf(skippedWeight)

	activeWeight := totalWeight - skippedWeight
	var scoreRaw float64
	if activeWeight > 1e-12 {
		renormFactor := totalWeight / activeWeight
		for _, a := range actives {
			effectiveWeight := a.spec.Weight * renormFactor
			scoreRaw += a.pressure * effectiveWeight
			for i := range out.Components {
				if out.Components[i].SeriesID == a.spec.SeriesID && !out.Components[i].Skipped {
					out.Components[i].Pressure = decimalOf(a.pressure * effectiveWeight)
				}
			}
		}
	}

	scoreSigned := clampF(scoreRaw, -1, 1)
	out.ScoreSigned = decimalOf(scoreSigned)

	skippedFraction := 0.0
	if totalWeight > 1e-12 {
		skippedFraction = skippedWeight / totalWeight
	}
	switch {
	case skippedFraction > 0.5:
		out.Confidence = types.ConfidenceLow
	default:
		quality := 1 - skippedFraction
		magnitude := absf(scoreSigned)
		if magnitude > 1 {
			magnitude = 1
		}
		numeric := 0.5*quality + 0.5*magnitude
		out.Confidence = types.ConfidenceFromScore(numeric)
	}

	return out
}

func clampF(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
