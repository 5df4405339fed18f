// Package allocation implements the Allocation Policy: an ordered,
// monotonic cap/haircut/scale cascade turning cascade sizes and the Brain's
// directives into a bounded final allocation plus an audit trail.
package allocation

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

// LiquidityMultiplier is the per-regime risk-asset multiplier applied in
// cascade step 3.
var LiquidityMultiplier = map[types.LiquidityRegime]float64{
	types.LiquidityExpansion:   1.10,
	types.LiquidityNeutral:     1.00,
	types.LiquidityContraction: 0.80,
}

// ConflictPattern is a named combination of regime signals that triggers a
// hierarchy haircut in cascade step 5.
type ConflictPattern string

const (
	ConflictSevere        ConflictPattern = "SEVERE"
	ConflictMacroBearish  ConflictPattern = "MACRO_BEARISH"
	ConflictLiquidityDrain ConflictPattern = "LIQUIDITY_DRAIN"
	ConflictNone          ConflictPattern = "NONE"
)

// Inputs bundles everything the cascade needs for one reference date.
type Inputs struct {
	SPXSignal   float64 // raw signed cascade size input for SPX, in [-1, 1]
	BTCSignal   float64
	Guard       types.Guard
	Directives  types.Directives
	Liquidity   types.LiquidityState
	Confidence  float64 // overall macro confidence in [0, 1]
	MacroRegime types.MacroRegime
}

// AuditStep records one cascade stage's allocation snapshot for the audit
// trail.
type AuditStep struct {
	Stage string
	SPX   decimal.Decimal
	BTC   decimal.Decimal
	DXY   decimal.Decimal
}

// Result is the cascade's output: the final bounded allocation plus the
// per-step audit trail.
type Result struct {
	Allocation types.Allocation
	Conflict   ConflictPattern
	Audit      []AuditStep
}

// Policy runs the ordered cascade.
type Policy struct {
	logger *zap.Logger
	cfg    config.AllocationConfig
}

func NewPolicy(logger *zap.Logger, cfg config.AllocationConfig) *Policy {
	return &Policy{logger: logger.Named("allocation"), cfg: cfg}
}

// Apply runs the full seven-step cascade.
func (p *Policy) Apply(in Inputs) Result {
	var audit []AuditStep
	record := func(stage string, spx, btc, dxy float64) {
		audit = append(audit, AuditStep{
			Stage: stage,
			SPX:   decimal.NewFromFloat(spx),
			BTC:   decimal.NewFromFloat(btc),
			DXY:   decimal.NewFromFloat(dxy),
		})
	}

	// Step 1: cascade sizes.
	spx := clamp(in.SPXSignal, 0, 1)
	btc := clamp(in.BTCSignal, 0, 1)
	signalMag := math.Max(math.Abs(in.SPXSignal), math.Abs(in.BTCSignal))
	dxy := clamp(signalMag*p.cfg.DXYSignalMul, 0, 1)
	record("cascade_sizes", spx, btc, dxy)

	// Step 2: guard caps. BLOCK zeros risk assets and short-circuits the
	// remaining steps other than the final clamp/cash.
	if in.Guard.Level == types.GuardBlock {
		spx, btc = 0, 0
		record("guard_block_short_circuit", spx, btc, dxy)
		return p.finish(spx, btc, dxy, ConflictNone, audit)
	}
	spx, btc = applyCaps(spx, btc, in.Directives.Caps)
	record("guard_caps", spx, btc, dxy)

	// Step 3: liquidity multiplier.
	liqMul := LiquidityMultiplier[in.Liquidity.Regime]
	spx *= liqMul
	btc *= liqMul
	record("liquidity_multiplier", spx, btc, dxy)

	// Step 4: confidence multiplier on risk assets.
	confMul := clamp(in.Confidence, 0, 1)
	spx *= confMul
	btc *= confMul
	record("confidence_multiplier", spx, btc, dxy)

	// Step 5: conflict-pattern hierarchy haircuts (BTC cut >= SPX cut).
	conflict := classifyConflict(in)
	switch conflict {
	case ConflictSevere:
		btc *= 0.50
		spx *= 0.70
	case ConflictMacroBearish:
		btc *= 0.65
		spx *= 0.80
	case ConflictLiquidityDrain:
		btc *= 0.75
		spx *= 0.85
	}
	record("conflict_haircut", spx, btc, dxy)

	// Directive haircuts/scales apply alongside the conflict hierarchy.
	spx = applyHaircutScale(spx, types.AssetSPX, in.Directives)
	btc = applyHaircutScale(btc, types.AssetBTC, in.Directives)
	record("directive_haircut_scale", spx, btc, dxy)

	// Step 6: clamp and re-apply guard caps to preserve monotonicity.
	spx = clamp(spx, 0, 1)
	btc = clamp(btc, 0, 1)
	spx, btc = applyCaps(spx, btc, in.Directives.Caps)
	record("clamp_and_reapply_caps", spx, btc, dxy)

	return p.finish(spx, btc, dxy, conflict, audit)
}

func (p *Policy) finish(spx, btc, dxy float64, conflict ConflictPattern, audit []AuditStep) Result {
	// Step 7: cash = clamp(1 - mean(spx, btc, dxy), minCashFloor, 1).
	mean := (spx + btc + dxy) / 3
	cash := clamp(1-mean, p.cfg.MinCashFloor, 1)

	return Result{
		Allocation: types.Allocation{
			SPX:  decimal.NewFromFloat(spx).Round(6),
			BTC:  decimal.NewFromFloat(btc).Round(6),
			DXY:  decimal.NewFromFloat(dxy).Round(6),
			Cash: decimal.NewFromFloat(cash).Round(6),
		},
		Conflict: conflict,
		Audit:    audit,
	}
}

func applyCaps(spx, btc float64, caps map[types.Asset]decimal.Decimal) (float64, float64) {
	if c, ok := caps[types.AssetSPX]; ok {
		if v, _ := c.Float64(); spx > v {
			spx = v
		}
	}
	if c, ok := caps[types.AssetBTC]; ok {
		if v, _ := c.Float64(); btc > v {
			btc = v
		}
	}
	return spx, btc
}

func applyHaircutScale(value float64, asset types.Asset, d types.Directives) float64 {
	if h, ok := d.Haircuts[asset]; ok {
		if v, _ := h.Float64(); v >= 0 {
			value *= v
		}
	}
	if s, ok := d.Scales[asset]; ok {
		if v, _ := s.Float64(); v >= 0 {
			value *= v
		}
	}
	return value
}

// classifyConflict names the conflict pattern, if any, present in the
// inputs.
func classifyConflict(in Inputs) ConflictPattern {
	switch {
	case in.Guard.Level == types.GuardCrisis && in.Liquidity.Regime == types.LiquidityContraction:
		return ConflictSevere
	case in.MacroRegime == types.RegimeStress:
		return ConflictMacroBearish
	case in.Liquidity.Regime == types.LiquidityContraction:
		return ConflictLiquidityDrain
	default:
		return ConflictNone
	}
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
