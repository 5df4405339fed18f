// Package promotion implements the Promotion Gate: six named
// acceptance gates over a walk-forward simulation and calibration report,
// producing a promote/review/reject verdict and, in `on` mode, atomically
// swapping the active calibration version.
package promotion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/store"
	"github.com/regimebrain/brain/pkg/types"
)

// Input bundles the evidence the gate evaluates.
type Input struct {
	Report          types.SimulatorReport
	Calibration     types.CalibrationVersion
	AsOf            types.Date
	RouterFallbacks int // count of fallback events observed during the evaluation window
}

// Gate evaluates promotion readiness against the configured thresholds.
type Gate struct {
	logger *zap.Logger
	cfg    config.PromotionConfig
}

func NewGate(logger *zap.Logger, cfg config.PromotionConfig) *Gate {
	return &Gate{logger: logger.Named("promotion"), cfg: cfg}
}

// Evaluate checks all six acceptance gates and derives a verdict.
func (g *Gate) Evaluate(in Input) types.PromotionReport {
	gates := map[string]bool{}
	var reasons []string

	anyAboveFloor := false
	allAboveFloor := true
	for h, delta := range in.Report.HitRateDeltaPP {
		if delta >= g.cfg.MinDeltaHitRateAnyPP {
			anyAboveFloor = true
		}
		if delta < g.cfg.MinDeltaHitRateAllPP {
			allAboveFloor = false
			reasons = append(reasons, fmt.Sprintf("horizon %s regressed %.2fpp below floor", h, delta))
		}
	}
	gates["deltaHitRateAny"] = anyAboveFloor
	if !anyAboveFloor {
		reasons = append(reasons, "no horizon improved hit rate by the required floor")
	}
	gates["noDegradation"] = allAboveFloor

	gates["brainFlipRate"] = in.Report.FlipRatePerYear <= g.cfg.MaxFlipRatePerYear
	if !gates["brainFlipRate"] {
		reasons = append(reasons, fmt.Sprintf("flip rate %.2f/yr exceeds %.2f", in.Report.FlipRatePerYear, g.cfg.MaxFlipRatePerYear))
	}

	overrideOK := true
	for _, sm := range in.Report.Samples {
		threshold := g.cfg.MaxOverrideIntensityNorm
		if sm.Scenario == types.ScenarioTail {
			threshold = g.cfg.MaxOverrideIntensityTail
		}
		v, _ := sm.OverrideIntensity.Float64()
		if v > threshold {
			overrideOK = false
			break
		}
	}
	gates["maxOverrideIntensity"] = overrideOK
	if !overrideOK {
		reasons = append(reasons, "override intensity exceeded the scenario-specific ceiling on at least one sample")
	}

	freshnessDays := int(in.AsOf.Time().Sub(in.Calibration.CreatedAt).Hours() / 24)
	gates["dataFreshness"] = freshnessDays <= g.cfg.MaxDataFreshnessDays
	if !gates["dataFreshness"] {
		reasons = append(reasons, fmt.Sprintf("calibration is %d days old, exceeds %d", freshnessDays, g.cfg.MaxDataFreshnessDays))
	}

	gates["zeroRouterFallbacks"] = in.RouterFallbacks == 0
	if !gates["zeroRouterFallbacks"] {
		reasons = append(reasons, fmt.Sprintf("%d router fallback(s) observed during the evaluation window", in.RouterFallbacks))
	}

	failing := 0
	for _, ok := range gates {
		if !ok {
			failing++
		}
	}

	var verdict types.PromotionVerdict
	switch {
	case failing == 0:
		verdict = types.VerdictPromote
	case failing == 1:
		verdict = types.VerdictReview
	default:
		verdict = types.VerdictReject
	}

	return types.PromotionReport{
		Verdict: verdict,
		Gates:   gates,
		Reasons: reasons,
		Ready:   verdict == types.VerdictPromote,
	}
}

// Apply activates the evaluated calibration version and its adaptive
// params, but only when the verdict is promote and mode is "on".
func (g *Gate) Apply(ctx context.Context, st store.Store, report types.PromotionReport, versionID string, params types.AdaptiveParams, mode types.OptimizerMode) error {
	if report.Verdict != types.VerdictPromote || mode != types.OptimizerOn {
		return nil
	}
	if err := st.PromoteCalibrationVersion(ctx, versionID); err != nil {
		return fmt.Errorf("promote calibration version: %w", err)
	}
	if err := st.SwapActiveParams(ctx, params); err != nil {
		return fmt.Errorf("swap active params: %w", err)
	}
	return nil
}
