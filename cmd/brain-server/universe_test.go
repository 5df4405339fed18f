package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/apperr"
	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/eventbus"
	"github.com/regimebrain/brain/internal/store/memstore"
	"github.com/regimebrain/brain/internal/telemetry"
	"github.com/regimebrain/brain/internal/workerpool"
	"github.com/regimebrain/brain/pkg/types"
)

func TestWeightSetFromCalibrationReportsMissingHorizons(t *testing.T) {
	horizons := []types.Horizon{types.Horizon30D, types.Horizon90D}

	v := types.CalibrationVersion{
		Weights: map[types.Horizon][]types.ComponentContribution{
			types.Horizon30D: {
				{SeriesID: "CPI", Weight: decimal.NewFromFloat(0.5), LagDays: 30},
				{SeriesID: "NFP", Weight: decimal.NewFromFloat(0.5), LagDays: 5},
			},
		},
	}

	ws, missing := weightSetFromCalibration(v, horizons)

	if len(missing) != 1 || missing[0] != types.Horizon90D {
		t.Fatalf("expected 90D reported missing, got %v", missing)
	}
	if len(ws[types.Horizon30D]) != 2 {
		t.Errorf("expected 30D weights to be converted, got %v", ws[types.Horizon30D])
	}
	if _, ok := ws[types.Horizon90D]; ok {
		t.Errorf("expected no silent default substituted for the missing horizon, got %v", ws[types.Horizon90D])
	}
}

func TestWeightSetFromCalibrationNoMissingWhenFullyCovered(t *testing.T) {
	horizons := []types.Horizon{types.Horizon30D, types.Horizon90D}
	v := types.CalibrationVersion{
		Weights: map[types.Horizon][]types.ComponentContribution{
			types.Horizon30D: {{SeriesID: "CPI", Weight: decimal.NewFromFloat(1), LagDays: 30}},
			types.Horizon90D: {{SeriesID: "CPI", Weight: decimal.NewFromFloat(1), LagDays: 30}},
		},
	}

	_, missing := weightSetFromCalibration(v, horizons)
	if len(missing) != 0 {
		t.Errorf("expected no missing horizons, got %v", missing)
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *memstore.Store) {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.Default()
	cfg.Forecaster.Horizons = []types.Horizon{types.Horizon30D, types.Horizon90D}

	st, err := memstore.New(logger, "")
	if err != nil {
		t.Fatalf("memstore.New: %v", err)
	}
	pool := workerpool.New(logger, workerpool.Config{NumWorkers: 1, QueueSize: 8})
	bus := eventbus.New(logger, eventbus.DefaultConfig())
	p := NewPipeline(logger, cfg, st, pool, telemetry.NewMetrics(), bus, types.OptimizerOff)
	return p, st
}

func TestWeightSetForAssetFailsExplicitOnUncoveredHorizon(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	v := types.CalibrationVersion{
		VersionID: "cal-1",
		Asset:     types.AssetSPX,
		Active:    true,
		Weights: map[types.Horizon][]types.ComponentContribution{
			types.Horizon30D: {{SeriesID: "CPI", Weight: decimal.NewFromFloat(1), LagDays: 30}},
		},
	}
	if err := st.PutCalibrationVersion(ctx, v); err != nil {
		t.Fatalf("PutCalibrationVersion: %v", err)
	}
	if err := st.PromoteCalibrationVersion(ctx, "cal-1"); err != nil {
		t.Fatalf("PromoteCalibrationVersion: %v", err)
	}

	_, err := p.weightSetForAsset(ctx, types.AssetSPX, types.Horizon90D)
	if kind, ok := apperr.KindOf(err); !ok || kind != apperr.KindInsufficientCalibration {
		t.Fatalf("expected KindInsufficientCalibration for an uncovered horizon, got %v", err)
	}

	weights, err := p.weightSetForAsset(ctx, types.AssetSPX, types.Horizon30D)
	if err != nil {
		t.Fatalf("expected the covered horizon to resolve cleanly, got %v", err)
	}
	if len(weights) != 1 || weights[0].SeriesID != "CPI" {
		t.Errorf("expected the covered horizon's calibrated weights, got %v", weights)
	}
}

func TestWeightSetForAssetFallsBackToDefaultWithNoActiveCalibration(t *testing.T) {
	p, _ := newTestPipeline(t)
	weights, err := p.weightSetForAsset(context.Background(), types.AssetBTC, types.Horizon30D)
	if err != nil {
		t.Fatalf("expected the uncalibrated default to resolve cleanly, got %v", err)
	}
	if len(weights) != len(candidateSeries) {
		t.Errorf("expected the default weight set's component count, got %d want %d", len(weights), len(candidateSeries))
	}
}
