// Package regime implements the Markov Regime Engine: a five-state
// discrete regime posterior with Bayesian update, hysteresis, and
// transition hints, built in a Gaussian-emission + posterior-update style.
package regime

import (
	"math"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/pkg/types"
)

// emission is the regime-specific Gaussian expectation over the average
// macro score used as the likelihood L(r | scoreVector).
type emission struct {
	mu    float64
	sigma float64
}

var emissions = map[types.MacroRegime]emission{
	types.RegimeEasing:       {mu: -0.30, sigma: 0.25},
	types.RegimeTightening:   {mu: 0.30, sigma: 0.25},
	types.RegimeStress:       {mu: -0.60, sigma: 0.30},
	types.RegimeNeutral:      {mu: 0.00, sigma: 0.20},
	types.RegimeNeutralMixed: {mu: 0.00, sigma: 0.40},
}

// persistence is the fixed diagonal of the default transition matrix.
var persistence = map[types.MacroRegime]float64{
	types.RegimeEasing:       0.75,
	types.RegimeTightening:   0.72,
	types.RegimeStress:       0.55,
	types.RegimeNeutral:      0.50,
	types.RegimeNeutralMixed: 0.40,
}

// TransitionMatrix is the fixed 5x5 row-stochastic transition matrix: the
// diagonal is `persistence`; the remaining probability mass in each row is
// distributed equally over the other four regimes.
var TransitionMatrix = buildTransitionMatrix()

func buildTransitionMatrix() map[types.MacroRegime]map[types.MacroRegime]float64 {
	m := make(map[types.MacroRegime]map[types.MacroRegime]float64, len(types.AllMacroRegimes))
	for _, from := range types.AllMacroRegimes {
		row := make(map[types.MacroRegime]float64, len(types.AllMacroRegimes))
		remaining := 1 - persistence[from]
		share := remaining / float64(len(types.AllMacroRegimes)-1)
		for _, to := range types.AllMacroRegimes {
			if to == from {
				row[to] = persistence[from]
			} else {
				row[to] = share
			}
		}
		m[from] = row
	}
	return m
}

// Engine runs the per-(asset,date) Bayesian regime update.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("regime.markov")}
}

func gaussianPDF(x, mu, sigma float64) float64 {
	if sigma < 1e-9 {
		sigma = 1e-9
	}
	z := (x - mu) / sigma
	return math.Exp(-0.5*z*z) / (sigma * math.Sqrt(2*math.Pi))
}

// Update computes the regime posterior for asset at date given the
// rolling average macro score, the previous state (nil if none exists),
// and the count of dominant-regime changes observed over the trailing 30
// calendar days (computed by the caller from regime history, rehydrated
// from the store at decision time).
func (e *Engine) Update(asset types.Asset, date types.Date, avgScore float64, prev *types.MacroRegimeState, changeCount30D int) types.MacroRegimeState {
	prior := make(map[types.MacroRegime]float64, len(types.AllMacroRegimes))
	if prev == nil {
		for _, r := range types.AllMacroRegimes {
			prior[r] = 1.0 / float64(len(types.AllMacroRegimes))
		}
	} else {
		row := TransitionMatrix[prev.Dominant]
		for _, r := range types.AllMacroRegimes {
			prior[r] = row[r]
		}
	}

	posterior := make(map[types.MacroRegime]float64, len(types.AllMacroRegimes))
	var total float64
	for _, r := range types.AllMacroRegimes {
		em := emissions[r]
		likelihood := gaussianPDF(avgScore, em.mu, em.sigma)
		posterior[r] = prior[r] * likelihood
		total += posterior[r]
	}
	if total < 1e-300 {
		for _, r := range types.AllMacroRegimes {
			posterior[r] = 1.0 / float64(len(types.AllMacroRegimes))
		}
	} else {
		for r := range posterior {
			posterior[r] /= total
		}
	}

	dominant := argmax(posterior)
	statePersistence := persistence[dominant]

	var hint *types.MacroRegime
	if statePersistence < 0.5 {
		row := TransitionMatrix[dominant]
		bestOffDiag := types.MacroRegime("")
		bestVal := 0.0
		for _, r := range types.AllMacroRegimes {
			if r == dominant {
				continue
			}
			if row[r] > bestVal {
				bestVal = row[r]
				bestOffDiag = r
			}
		}
		if bestVal > 0.1 {
			h := bestOffDiag
			hint = &h
		}
	}

	if prev != nil && prev.Dominant != dominant {
		changeCount30D++
	}
	stability := 1 - float64(changeCount30D)/5
	if stability < 0 {
		stability = 0
	}

	return types.MacroRegimeState{
		Asset:          asset,
		Date:           date,
		Dominant:       dominant,
		Posterior:      posterior,
		Persistence:    statePersistence,
		TransitionHint: hint,
		ChangeCount30D: changeCount30D,
		StabilityScore: stability,
	}
}

func argmax(m map[types.MacroRegime]float64) types.MacroRegime {
	best := types.MacroRegime("")
	bestVal := math.Inf(-1)
	for _, r := range types.AllMacroRegimes {
		if v := m[r]; v > bestVal {
			bestVal = v
			best = r
		}
	}
	return best
}
