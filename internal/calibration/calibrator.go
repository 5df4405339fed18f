// Package calibration implements the Per-Horizon Calibrator:
// randomized search over Dirichlet-like weight samples and a discrete lag
// grid, evaluated walk-forward against realized returns.
package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/macro"
	"github.com/regimebrain/brain/internal/series"
	"github.com/regimebrain/brain/internal/workerpool"
	"github.com/regimebrain/brain/pkg/types"
)

func decimalOf(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// CandidateSeries is one macro series eligible for inclusion in a
// per-horizon weight vector, with its expected sign.
type CandidateSeries struct {
	SeriesID string
	Sign     float64
}

// Dataset is the walk-forward evaluation input: the asset's own price
// series (for realized forward returns) and every candidate macro series.
type Dataset struct {
	Asset       types.Asset
	PriceSeries types.Series
	MacroSeries map[string]types.Series
	Candidates  []CandidateSeries
}

// trial is one sampled (weight, lag) assignment.
type trial struct {
	weights []float64 // parallel to Dataset.Candidates
	lags    []int
}

// Calibrator runs the randomized weight search.
type Calibrator struct {
	logger  *zap.Logger
	builder *macro.ContextBuilder
	pool    *workerpool.Pool
}

func NewCalibrator(logger *zap.Logger, builder *macro.ContextBuilder, pool *workerpool.Pool) *Calibrator {
	return &Calibrator{logger: logger.Named("calibration"), builder: builder, pool: pool}
}

// Run optimizes a weight vector for one (asset, horizon) pair over
// [from, to] and returns a versioned CalibrationVersion including its
// comparison against an equal-weight, 30-day-lag V1 baseline.
func (c *Calibrator) Run(ctx context.Context, ds Dataset, horizon types.Horizon, cfg config.CalibrationConfig, from, to types.Date) (types.CalibrationVersion, error) {
	if len(ds.Candidates) == 0 {
		return types.CalibrationVersion{}, fmt.Errorf("calibration: no candidate series configured")
	}

	horizonDays := types.HorizonDays[horizon]
	seed := SeedForHorizon(cfg.Seed, horizonDays)
	rng := NewLCG(seed)

	trials := make([]trial, cfg.Trials)
	for i := range trials {
		trials[i] = sampleTrial(rng, len(ds.Candidates), cfg)
	}

	tasks := make([]workerpool.Task, len(trials))
	for i, tr := range trials {
		tr := tr
		tasks[i] = func(ctx context.Context) (any, error) {
			metric := c.evaluate(ds, tr, horizon, horizonDays, cfg, from, to)
			return metric, nil
		}
	}
	results := c.pool.RunAll(ctx, tasks)

	bestIdx := -1
	bestScore := math.Inf(-1)
	bestMetric := types.HorizonMetric{}
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		m := r.Value.(types.HorizonMetric)
		score := objectiveScore(cfg.Objective, m)
		if score > bestScore {
			bestScore = score
			bestIdx = i
			bestMetric = m
		}
	}
	if bestIdx < 0 {
		return types.CalibrationVersion{}, fmt.Errorf("calibration: no trial produced a valid result")
	}

	baseline := equalWeightTrial(len(ds.Candidates))
	baselineMetric := c.evaluate(ds, baseline, horizon, horizonDays, cfg, from, to)

	weights := toComponentContributions(ds.Candidates, trials[bestIdx])

	version := types.CalibrationVersion{
		VersionID: uuid.NewString(),
		Asset:     ds.Asset,
		CreatedAt: time.Now().UTC(),
		Objective: cfg.Objective,
		Seed:      cfg.Seed,
		Weights:   map[types.Horizon][]types.ComponentContribution{horizon: weights},
		Metrics:   []types.HorizonMetric{bestMetric},
		BaselineV1: []types.HorizonMetric{baselineMetric},
	}
	return version, nil
}

// sampleTrial draws a Dirichlet-like weight vector (via normalized
// exponential deviates) honoring [minWeight, maxWeight] by clip-then-
// renormalize, plus an independent lag pick per candidate from the
// configured lag grid.
func sampleTrial(rng *LCG, n int, cfg config.CalibrationConfig) trial {
	raw := make([]float64, n)
	var sum float64
	for i := range raw {
		raw[i] = rng.Exponential()
		sum += raw[i]
	}
	weights := make([]float64, n)
	for i := range raw {
		weights[i] = raw[i] / sum * cfg.SumWeights
	}
	weights = clampAndRenormalize(weights, cfg.MinWeight, cfg.MaxWeight, cfg.SumWeights)

	lags := make([]int, n)
	grid := cfg.LagGrid
	if len(grid) == 0 {
		grid = []int{30}
	}
	for i := range lags {
		lags[i] = grid[rng.IntN(len(grid))]
	}
	return trial{weights: weights, lags: lags}
}

// clampAndRenormalize projects weights into [min, max] per element, then
// rescales to re-hit target sum, repeating until every element is within
// bounds (to 1e-9) or 200 passes have run. Each pass shrinks the overshoot
// only geometrically, so a handful of passes is not enough when one weight
// starts far above max.
func clampAndRenormalize(weights []float64, min, max, target float64) []float64 {
	out := make([]float64, len(weights))
	copy(out, weights)
	for pass := 0; pass < 200; pass++ {
		var sum float64
		for i, w := range out {
			if w < min {
				out[i] = min
			} else if w > max {
				out[i] = max
			}
			sum += out[i]
		}
		if sum < 1e-12 {
			break
		}
		scale := target / sum
		allWithinBounds := true
		for i := range out {
			out[i] *= scale
			if out[i] < min-1e-9 || out[i] > max+1e-9 {
				allWithinBounds = false
			}
		}
		if allWithinBounds {
			break
		}
	}
	return out
}

func equalWeightTrial(n int) trial {
	w := make([]float64, n)
	lags := make([]int, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
		lags[i] = 30
	}
	return trial{weights: w, lags: lags}
}

// evaluate walks [from, to] stepped by cfg.StepDays, computing the weighted
// signal at each sample date and comparing it against the realized forward
// return at horizonDays.
func (c *Calibrator) evaluate(ds Dataset, tr trial, horizon types.Horizon, horizonDays int, cfg config.CalibrationConfig, from, to types.Date) types.HorizonMetric {
	metric := types.HorizonMetric{Horizon: horizon}

	var hits, n int
	var sumAbs, sumSq float64

	for d := from; !d.After(to); d = d.AddDays(cfg.StepDays) {
		signal, ok := c.computeSignal(ds, tr, d, cfg.AsOf)
		if !ok {
			continue
		}
		realized, ok := forwardReturn(ds.PriceSeries, d, horizonDays)
		if !ok {
			continue
		}
		n++
		if sameSign(signal, realized) {
			hits++
		}
		diff := signal - realized
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
	}

	metric.Samples = n
	if n > 0 {
		metric.HitRate = float64(hits) / float64(n)
		metric.MAE = sumAbs / float64(n)
		metric.RMSE = math.Sqrt(sumSq / float64(n))
	}
	return metric
}

func (c *Calibrator) computeSignal(ds Dataset, tr trial, d types.Date, asOfMode bool) (float64, bool) {
	var signal float64
	var anyOk bool
	for i, cand := range ds.Candidates {
		raw, ok := ds.MacroSeries[cand.SeriesID]
		if !ok {
			continue
		}
		lookupDate := d.AddDays(-tr.lags[i])

		s := raw
		if asOfMode {
			filtered, err := series.AsOf(raw, lookupDate)
			if err != nil {
				continue
			}
			s = filtered
		}

		ctx, err := c.builder.Build(s, lookupDate)
		if err != nil || ctx.Current == nil || ctx.Mean5Y == nil || ctx.Std5Y == nil || *ctx.Std5Y < 1e-12 {
			continue
		}
		z := (*ctx.Current - *ctx.Mean5Y) / *ctx.Std5Y
		signal += cand.Sign * z * tr.weights[i]
		anyOk = true
	}
	if !anyOk {
		return 0, false
	}
	return series.Clamp(signal, -1, 1), true
}

// forwardReturn looks up the price at d and d+horizonDays and returns the
// simple return between them. It searches for the nearest available point
// within 3 calendar days of each target date to tolerate weekends/holidays.
func forwardReturn(price types.Series, d types.Date, horizonDays int) (float64, bool) {
	p0, ok := nearestPoint(price, d)
	if !ok {
		return 0, false
	}
	p1, ok := nearestPoint(price, d.AddDays(horizonDays))
	if !ok || p0.Value == 0 {
		return 0, false
	}
	ret := (p1.Value - p0.Value) / p0.Value
	if !series.IsFinite(ret) {
		return 0, false
	}
	return ret, true
}

func nearestPoint(s types.Series, target types.Date) (types.Point, bool) {
	const tolerance = 3
	best := types.Point{}
	bestDist := 1 << 30
	found := false
	for _, p := range s.Points {
		if p.Missing {
			continue
		}
		dist := daysBetween(p.Date, target)
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance && dist < bestDist {
			bestDist = dist
			best = p
			found = true
		}
	}
	return best, found
}

func daysBetween(a, b types.Date) int {
	return int(a.Time().Sub(b.Time()).Hours() / 24)
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0) == (b > 0)
}

func objectiveScore(obj types.Objective, m types.HorizonMetric) float64 {
	if m.Samples == 0 {
		return math.Inf(-1)
	}
	switch obj {
	case types.ObjectiveMAE:
		return -m.MAE
	case types.ObjectiveRMSE:
		return -m.RMSE
	default:
		return m.HitRate
	}
}

func toComponentContributions(candidates []CandidateSeries, tr trial) []types.ComponentContribution {
	out := make([]types.ComponentContribution, len(candidates))
	for i, cand := range candidates {
		out[i] = types.ComponentContribution{
			SeriesID: cand.SeriesID,
			Weight:   decimalOf(tr.weights[i]),
			LagDays:  tr.lags[i],
		}
	}
	return out
}
