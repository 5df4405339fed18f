// Package forecast implements the Quantile Mixture-of-Experts Forecaster:
// per-regime linear quantile regressions trained via SGD with pinball
// loss, mixed at inference by the regime posterior.
package forecast

import (
	"time"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

// Sample is one training observation: a feature vector, its expert-regime
// label, and the realized forward return at each horizon.
type Sample struct {
	Features []float64
	Regime   types.MacroRegime
	Labels   map[types.Horizon]float64
}

// Forecaster trains and evaluates the quantile mixture-of-experts model.
type Forecaster struct {
	logger *zap.Logger
	cfg    config.ForecasterConfig
}

func NewForecaster(logger *zap.Logger, cfg config.ForecasterConfig) *Forecaster {
	return &Forecaster{logger: logger.Named("forecast.moe"), cfg: cfg}
}

// Train fits one linear pinball-loss model per (surviving regime, horizon,
// quantile). Regimes with fewer than cfg.MinSamplesPerExpert samples are
// recorded as dropped; at inference they fall back to NEUTRAL's weights.
func (f *Forecaster) Train(samples []Sample, featureCount int, seed uint32) types.TrainedModel {
	start := time.Now()

	byRegime := make(map[types.MacroRegime][]Sample)
	for _, s := range samples {
		byRegime[s.Regime] = append(byRegime[s.Regime], s)
	}

	model := types.TrainedModel{
		VersionID:    "", // assigned by the caller (calibration/store layer) on persist
		TrainedAt:    start,
		Seed:         seed,
		Smoothing:    f.cfg.Smoothing,
		FeatureCount: featureCount,
		Horizons:     f.cfg.Horizons,
		Weights:      make(map[types.MacroRegime]map[types.Horizon]map[types.Quantile]types.QuantileWeights),
	}

	for regimeIdx, regime := range types.AllMacroRegimes {
		regimeSamples := byRegime[regime]
		if len(regimeSamples) < f.cfg.MinSamplesPerExpert {
			model.DroppedRegimes = append(model.DroppedRegimes, regime)
			continue
		}

		model.Weights[regime] = make(map[types.Horizon]map[types.Quantile]types.QuantileWeights)
		for horizonIdx, horizon := range f.cfg.Horizons {
			model.Weights[regime][horizon] = make(map[types.Quantile]types.QuantileWeights)
			for _, q := range f.cfg.Quantiles {
				qw := f.trainOne(regimeSamples, featureCount, horizon, q, seedFor(seed, regimeIdx, horizonIdx, float64(q)))
				qw.Regime = regime
				qw.Horizon = horizon
				qw.Quantile = q
				model.Weights[regime][horizon][q] = qw
			}
		}

		model.Stats = append(model.Stats, types.TrainingStats{
			Regime:      regime,
			SampleCount: len(regimeSamples),
			WallTime:    time.Since(start),
		})
	}

	return model
}

// trainOne runs 200-epoch SGD with pinball loss for one (horizon,
// quantile) linear model.
func (f *Forecaster) trainOne(samples []Sample, featureCount int, horizon types.Horizon, tau types.Quantile, seed uint32) types.QuantileWeights {
	rng := newXorshift32(seed)

	w := make([]float64, featureCount)
	for i := range w {
		w[i] = 0.001 * rng.gaussian()
	}
	b := 0.0

	l2 := f.cfg.Smoothing * 0.001
	n := len(samples)

	for epoch := 0; epoch < f.cfg.Epochs; epoch++ {
		lr := f.cfg.LearningRate0 / (1 + f.cfg.LRDecay*float64(epoch))
		order := rng.shuffleN(n)

		for _, idx := range order {
			s := samples[idx]
			y, ok := s.Labels[horizon]
			if !ok {
				continue
			}
			yhat := predictRaw(w, b, s.Features)

			var grad float64
			if y > yhat {
				grad = -float64(tau)
			} else {
				grad = 1 - float64(tau)
			}

			for i := range w {
				xi := 0.0
				if i < len(s.Features) {
					xi = s.Features[i]
				}
				w[i] -= lr * (grad*xi + l2*w[i])
			}
			b -= lr * grad
		}
	}

	return types.QuantileWeights{W: w, B: b}
}

func predictRaw(w []float64, b float64, x []float64) float64 {
	sum := b
	for i, wi := range w {
		xi := 0.0
		if i < len(x) {
			xi = x[i]
		}
		sum += wi * xi
	}
	return sum
}
