// Package guard implements the Crisis Guard: a monotone threshold
// ladder over credit-stress composite and VIX producing NONE/WARN/CRISIS/
// BLOCK.
package guard

import (
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

// Evaluator computes the guard level from stress inputs.
type Evaluator struct {
	logger *zap.Logger
	cfg    config.GuardConfig
}

func NewEvaluator(logger *zap.Logger, cfg config.GuardConfig) *Evaluator {
	return &Evaluator{logger: logger.Named("guard"), cfg: cfg}
}

// Evaluate is monotone in stress: higher creditComposite or vix never
// yields a lower level.
func (e *Evaluator) Evaluate(creditComposite, vix float64) types.Guard {
	level := types.GuardNone
	if creditComposite >= e.cfg.BlockCredit || vix >= e.cfg.BlockVIX {
		level = types.GuardBlock
	} else if creditComposite >= e.cfg.CrisisCredit || vix >= e.cfg.CrisisVIX {
		level = types.GuardCrisis
	} else if creditComposite >= e.cfg.WarnCredit || vix >= e.cfg.WarnVIX {
		level = types.GuardWarn
	}

	return types.Guard{
		Level:           level,
		CreditComposite: creditComposite,
		VIX:             vix,
	}
}
