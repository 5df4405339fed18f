package macro

import (
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/series"
	"github.com/regimebrain/brain/pkg/types"
)

// LiquidityEngine combines WALCL/RRP/TGA context into a signed liquidity
// impulse and regime classification.
type LiquidityEngine struct {
	logger *zap.Logger
}

func NewLiquidityEngine(logger *zap.Logger) *LiquidityEngine {
	return &LiquidityEngine{logger: logger.Named("macro.liquidity")}
}

// z4wFallback13w returns z4w if present, else z13w, else nil.
func z4wFallback13w(ctx types.SeriesContext) *float64 {
	if z, ok := ctx.DeltaZScore[4]; ok && z != nil {
		return z
	}
	if z, ok := ctx.DeltaZScore[13]; ok && z != nil {
		return z
	}
	return nil
}

// Compute derives the LiquidityState from the three component contexts. Any
// of walcl/rrp/tga may be the zero value if the underlying series was
// unavailable; Compute treats a nil z-score as "component unavailable" and
// renormalizes by availableCount, per the Open Question decision recorded
// in DESIGN.md (the literal "×3/available" rule).
func (e *LiquidityEngine) Compute(asOf types.Date, walcl, rrp, tga types.SeriesContext) types.LiquidityState {
	zWALCL := z4wFallback13w(walcl)
	zRRP := z4wFallback13w(rrp)
	zTGA := z4wFallback13w(tga)

	var sum float64
	available := 0
	if zWALCL != nil {
		sum += *zWALCL
		available++
	}
	if zRRP != nil {
		sum -= *zRRP
		available++
	}
	if zTGA != nil {
		sum -= *zTGA
		available++
	}

	state := types.LiquidityState{
		AsOf:      asOf,
		WALCL:     zWALCL,
		RRP:       zRRP,
		TGA:       zTGA,
		Available: available,
	}

	if available == 0 {
		state.Impulse = 0
		state.Regime = types.LiquidityNeutral
		state.Confidence = 0
		return state
	}

	impulseRaw := sum * 3 / float64(available)
	impulse := series.Clamp(impulseRaw, -3, 3)
	state.Impulse = impulse

	switch {
	case impulse > 0.75:
		state.Regime = types.LiquidityExpansion
	case impulse < -0.75:
		state.Regime = types.LiquidityContraction
	default:
		state.Regime = types.LiquidityNeutral
	}

	magTerm := absf(impulse) / 2
	if magTerm > 1 {
		magTerm = 1
	}
	state.Confidence = 0.6*(float64(available)/3) + 0.4*magTerm

	return state
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
