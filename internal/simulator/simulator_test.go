package simulator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/workerpool"
	"github.com/regimebrain/brain/pkg/types"
)

func TestRunAggregatesSamplesAndSkipsNaN(t *testing.T) {
	start, _ := types.ParseDate("2024-01-05")
	end, _ := types.ParseDate("2024-02-02")

	step := func(ctx context.Context, date types.Date) (types.SimulatorSample, error) {
		if date.Equal(start) {
			return types.SimulatorSample{Date: date, NaNDetected: true}, nil
		}
		return types.SimulatorSample{
			Date:               date,
			BrainOnAllocation:  types.Allocation{SPX: decimal.NewFromFloat(0.3), BTC: decimal.NewFromFloat(0.2)},
			BrainOffAllocation: types.Allocation{SPX: decimal.NewFromFloat(0.5), BTC: decimal.NewFromFloat(0.3)},
			Scenario:           types.ScenarioBase,
			OverrideIntensity:  decimal.NewFromFloat(0.1),
			RealizedReturns:    map[types.Horizon]float64{types.Horizon30D: 0.01},
		}, nil
	}

	pool := workerpool.New(zap.NewNop(), workerpool.DefaultConfig())
	sim := New(zap.NewNop(), config.DefaultSimulatorConfig(), pool, step)

	report := sim.Run(context.Background(), "run-1", start, end)
	if report.SkippedSamples != 1 {
		t.Errorf("expected 1 skipped NaN sample, got %d", report.SkippedSamples)
	}
	if len(report.Samples) == 0 {
		t.Fatalf("expected non-empty samples")
	}
	if report.MaxOverrideIntensity < report.AvgOverrideIntensity {
		t.Errorf("expected max >= avg override intensity")
	}
}

func TestFlipRatePerYearCountsTransitions(t *testing.T) {
	d0, _ := types.ParseDate("2024-01-01")
	samples := []types.SimulatorSample{
		{Date: d0, Scenario: types.ScenarioBase},
		{Date: d0.AddDays(30), Scenario: types.ScenarioRisk},
		{Date: d0.AddDays(60), Scenario: types.ScenarioBase},
	}
	rate := flipRatePerYear(samples)
	if rate <= 0 {
		t.Errorf("expected positive flip rate, got %f", rate)
	}
}
