package guard

import (
	"testing"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
)

func TestEvaluateMonotone(t *testing.T) {
	e := NewEvaluator(zap.NewNop(), config.DefaultGuardConfig())

	levels := []struct {
		credit, vix float64
	}{
		{0.1, 10},
		{0.5, 20},
		{0.75, 30},
		{0.95, 50},
	}

	prev := -1
	for _, lv := range levels {
		g := e.Evaluate(lv.credit, lv.vix)
		if int(g.Level) < prev {
			t.Errorf("expected guard level to be monotone non-decreasing, got %v after %v", g.Level, prev)
		}
		prev = int(g.Level)
	}
}

func TestEvaluateBlockThreshold(t *testing.T) {
	e := NewEvaluator(zap.NewNop(), config.DefaultGuardConfig())
	g := e.Evaluate(0.95, 10)
	if g.Level.String() != "BLOCK" {
		t.Errorf("expected BLOCK at credit=0.95, got %s", g.Level)
	}
}
