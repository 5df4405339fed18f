package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/pkg/types"
)

func calmInputs() Inputs {
	return Inputs{
		SPXSignal:  0.6,
		BTCSignal:  0.6,
		Guard:      types.Guard{Level: types.GuardNone},
		Directives: types.Directives{},
		Liquidity:  types.LiquidityState{Regime: types.LiquidityNeutral},
		Confidence: 0.9,
	}
}

func TestApplyMonotoneUnderEscalatingStress(t *testing.T) {
	p := NewPolicy(zap.NewNop(), config.DefaultAllocationConfig())

	none := p.Apply(calmInputs())

	warnIn := calmInputs()
	warnIn.Guard.Level = types.GuardWarn
	warnIn.Directives.Haircuts = map[types.Asset]decimal.Decimal{
		types.AssetBTC: decimal.NewFromFloat(0.85),
		types.AssetSPX: decimal.NewFromFloat(0.90),
	}
	warn := p.Apply(warnIn)

	crisisIn := calmInputs()
	crisisIn.Guard.Level = types.GuardCrisis
	crisisIn.Directives.Haircuts = map[types.Asset]decimal.Decimal{
		types.AssetBTC: decimal.NewFromFloat(0.60),
		types.AssetSPX: decimal.NewFromFloat(0.75),
	}
	crisis := p.Apply(crisisIn)

	blockIn := calmInputs()
	blockIn.Guard.Level = types.GuardBlock
	blockIn.Directives.Caps = map[types.Asset]decimal.Decimal{
		types.AssetBTC: decimal.NewFromFloat(0.05),
		types.AssetSPX: decimal.NewFromFloat(0.05),
	}
	block := p.Apply(blockIn)

	seq := []types.Allocation{none.Allocation, warn.Allocation, crisis.Allocation, block.Allocation}
	for i := 1; i < len(seq); i++ {
		if seq[i].SPX.GreaterThan(seq[i-1].SPX) {
			t.Errorf("SPX allocation increased under rising stress at step %d: %v > %v", i, seq[i].SPX, seq[i-1].SPX)
		}
		if seq[i].BTC.GreaterThan(seq[i-1].BTC) {
			t.Errorf("BTC allocation increased under rising stress at step %d: %v > %v", i, seq[i].BTC, seq[i-1].BTC)
		}
	}
}

func TestApplyCashNeverBelowFloor(t *testing.T) {
	p := NewPolicy(zap.NewNop(), config.DefaultAllocationConfig())
	in := calmInputs()
	in.SPXSignal, in.BTCSignal = 1, 1
	in.Confidence = 1
	res := p.Apply(in)
	if res.Allocation.Cash.LessThan(decimal.NewFromFloat(0.05)) {
		t.Errorf("expected cash >= minCashFloor, got %v", res.Allocation.Cash)
	}
}

func TestApplyGuardBlockZeroesRiskAssets(t *testing.T) {
	p := NewPolicy(zap.NewNop(), config.DefaultAllocationConfig())
	in := calmInputs()
	in.Guard.Level = types.GuardBlock
	res := p.Apply(in)
	if !res.Allocation.SPX.IsZero() || !res.Allocation.BTC.IsZero() {
		t.Errorf("expected BLOCK to zero risk assets, got spx=%v btc=%v", res.Allocation.SPX, res.Allocation.BTC)
	}
}
