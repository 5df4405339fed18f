// Package simulator implements the Walk-Forward Simulator: it steps
// through a date range, running the full pipeline both with and without the
// Brain enabled, and aggregates hit-rate/flip-rate/drawdown diagnostics.
package simulator

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/workerpool"
	"github.com/regimebrain/brain/pkg/types"
)

// StepFunc runs the pipeline with and without the Brain enabled at one
// reference date and returns the recorded sample. Implementations live in
// the composition root, which is the only place every upstream engine is
// wired together.
type StepFunc func(ctx context.Context, date types.Date) (types.SimulatorSample, error)

// Simulator steps a StepFunc across a date range with bounded concurrency.
type Simulator struct {
	logger *zap.Logger
	cfg    config.SimulatorConfig
	pool   *workerpool.Pool
	step   StepFunc
}

func New(logger *zap.Logger, cfg config.SimulatorConfig, pool *workerpool.Pool, step StepFunc) *Simulator {
	return &Simulator{logger: logger.Named("simulator"), cfg: cfg, pool: pool, step: step}
}

// Run iterates [start, end] stepped by cfg.StepDays and produces an
// aggregate report.
func (s *Simulator) Run(ctx context.Context, runID string, start, end types.Date) types.SimulatorReport {
	var dates []types.Date
	for d := start; !d.After(end); d = d.AddDays(s.cfg.StepDays) {
		dates = append(dates, d)
	}

	tasks := make([]workerpool.Task, len(dates))
	for i, d := range dates {
		d := d
		tasks[i] = func(ctx context.Context) (any, error) {
			sample, err := s.step(ctx, d)
			return sample, err
		}
	}

	results := s.pool.RunAll(ctx, tasks)

	var samples []types.SimulatorSample
	skipped := 0
	for _, r := range results {
		if r.Err != nil {
			skipped++
			continue
		}
		sample, ok := r.Value.(types.SimulatorSample)
		if !ok || sample.NaNDetected {
			skipped++
			continue
		}
		samples = append(samples, sample)
	}

	return types.SimulatorReport{
		RunID:                runID,
		Start:                start,
		End:                  end,
		Samples:              samples,
		SkippedSamples:       skipped,
		HitRateDeltaPP:       hitRateDeltaPP(samples, s.cfg.Horizons),
		FlipRatePerYear:      flipRatePerYear(samples),
		AvgOverrideIntensity: avgOverrideIntensity(samples),
		MaxOverrideIntensity: maxOverrideIntensity(samples),
		StabilityScore:       stabilityScore(samples),
		MaxDrawdown:          maxDrawdown(samples),
		SharpeProxy:          sharpeProxy(samples, s.cfg.StepDays),
	}
}

// hitRateDeltaPP compares the Brain-on directional call against the
// always-bullish baseline the Brain-off allocation implies, per horizon, in
// percentage points.
func hitRateDeltaPP(samples []types.SimulatorSample, horizons []types.Horizon) map[types.Horizon]float64 {
	out := make(map[types.Horizon]float64, len(horizons))
	for _, h := range horizons {
		var onHits, baselineHits, n int
		for _, sm := range samples {
			ret, ok := sm.RealizedReturns[h]
			if !ok || !isFinite(ret) {
				continue
			}
			n++
			guess := directionGuess(sm.BrainOnAllocation, sm.BrainOffAllocation)
			if sameSign(guess, ret) {
				onHits++
			}
			if ret >= 0 {
				baselineHits++
			}
		}
		if n == 0 {
			out[h] = 0
			continue
		}
		out[h] = 100 * (float64(onHits)/float64(n) - float64(baselineHits)/float64(n))
	}
	return out
}

func directionGuess(on, off types.Allocation) float64 {
	onRisk, _ := on.SPX.Add(on.BTC).Float64()
	offRisk, _ := off.SPX.Add(off.BTC).Float64()
	if onRisk >= offRisk {
		return 1
	}
	return -1
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0) == (b > 0)
}

// flipRatePerYear counts scenario transitions between consecutive samples,
// annualized over the sampled span.
func flipRatePerYear(samples []types.SimulatorSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	flips := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].Scenario != samples[i-1].Scenario {
			flips++
		}
	}
	spanDays := samples[len(samples)-1].Date.Time().Sub(samples[0].Date.Time()).Hours() / 24
	if spanDays < 1 {
		spanDays = 1
	}
	return float64(flips) * (365.0 / spanDays)
}

func avgOverrideIntensity(samples []types.SimulatorSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sm := range samples {
		v, _ := sm.OverrideIntensity.Float64()
		sum += v
	}
	return sum / float64(len(samples))
}

func maxOverrideIntensity(samples []types.SimulatorSample) float64 {
	max := 0.0
	for _, sm := range samples {
		v, _ := sm.OverrideIntensity.Float64()
		if v > max {
			max = v
		}
	}
	return max
}

// stabilityScore = 1 - sqrt(Var(overrideIntensity)) * 10, clamped to [0, 1].
func stabilityScore(samples []types.SimulatorSample) float64 {
	if len(samples) < 2 {
		return 1
	}
	vals := make([]float64, len(samples))
	var mean float64
	for i, sm := range samples {
		v, _ := sm.OverrideIntensity.Float64()
		vals[i] = v
		mean += v
	}
	mean /= float64(len(vals))
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vals))
	score := 1 - math.Sqrt(variance)*10
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// simplifiedPNL returns the brain-on risk-weighted return per sample using
// the shortest configured horizon as the per-step realized return.
func simplifiedPNL(samples []types.SimulatorSample) []float64 {
	if len(samples) == 0 {
		return nil
	}
	var horizon types.Horizon
	shortest := math.MaxInt64
	for h := range samples[0].RealizedReturns {
		if d := types.HorizonDays[h]; d < shortest {
			shortest = d
			horizon = h
		}
	}
	pnl := make([]float64, 0, len(samples))
	for _, sm := range samples {
		ret, ok := sm.RealizedReturns[horizon]
		if !ok || !isFinite(ret) {
			continue
		}
		spx, _ := sm.BrainOnAllocation.SPX.Float64()
		btc, _ := sm.BrainOnAllocation.BTC.Float64()
		pnl = append(pnl, (spx+btc)*ret)
	}
	return pnl
}

func maxDrawdown(samples []types.SimulatorSample) float64 {
	pnl := simplifiedPNL(samples)
	if len(pnl) == 0 {
		return 0
	}
	cum := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range pnl {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		}
		dd := (peak - cum) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func sharpeProxy(samples []types.SimulatorSample, stepDays int) float64 {
	pnl := simplifiedPNL(samples)
	if len(pnl) < 2 {
		return 0
	}
	var mean float64
	for _, r := range pnl {
		mean += r
	}
	mean /= float64(len(pnl))
	var variance float64
	for _, r := range pnl {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(pnl) - 1)
	std := math.Sqrt(variance)
	if std < 1e-12 {
		return 0
	}
	stepsPerYear := 365.0 / float64(maxInt(stepDays, 1))
	return (mean / std) * math.Sqrt(stepsPerYear)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
