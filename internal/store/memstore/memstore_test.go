package memstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/apperr"
	"github.com/regimebrain/brain/pkg/types"
)

func mustDate(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(zap.NewNop(), filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestLoadSeriesFiltersByRange(t *testing.T) {
	s := newTestStore(t)
	s.SeedSeries(types.Series{
		ID: "WALCL",
		Points: []types.Point{
			{Date: mustDate(t, "2024-01-01"), Value: 1},
			{Date: mustDate(t, "2024-06-01"), Value: 2},
			{Date: mustDate(t, "2025-01-01"), Value: 3},
		},
	})

	out, err := s.LoadSeries(context.Background(), "WALCL", mustDate(t, "2024-01-01"), mustDate(t, "2024-12-31"))
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(out.Points) != 2 {
		t.Errorf("expected 2 points in range, got %d", len(out.Points))
	}
}

func TestLoadSeriesUnknownIDErrors(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadSeries(context.Background(), "MISSING", types.Date{}, mustDate(t, "2025-01-01"))
	if kind, ok := apperr.KindOf(err); !ok || kind != apperr.KindSeriesUnavailable {
		t.Errorf("expected KindSeriesUnavailable, got %v", err)
	}
}

func TestAppendRegimeStateRejectsDuplicateDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	st := types.MacroRegimeState{Asset: types.AssetSPX, Date: mustDate(t, "2025-01-01"), Dominant: types.RegimeNeutral}

	if err := s.AppendRegimeState(ctx, st); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := s.AppendRegimeState(ctx, st)
	if kind, ok := apperr.KindOf(err); !ok || kind != apperr.KindValidationFailure {
		t.Errorf("expected KindValidationFailure for duplicate date, got %v", err)
	}
}

func TestLatestRegimeStatePicksMostRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AppendRegimeState(ctx, types.MacroRegimeState{Asset: types.AssetSPX, Date: mustDate(t, "2025-01-01"), Dominant: types.RegimeNeutral})
	_ = s.AppendRegimeState(ctx, types.MacroRegimeState{Asset: types.AssetSPX, Date: mustDate(t, "2025-03-01"), Dominant: types.RegimeStress})
	_ = s.AppendRegimeState(ctx, types.MacroRegimeState{Asset: types.AssetSPX, Date: mustDate(t, "2025-02-01"), Dominant: types.RegimeEasing})

	latest, ok, err := s.LatestRegimeState(ctx, types.AssetSPX)
	if err != nil || !ok {
		t.Fatalf("LatestRegimeState: ok=%v err=%v", ok, err)
	}
	if latest.Dominant != types.RegimeStress {
		t.Errorf("expected latest state by date to be the 2025-03-01 entry, got %s", latest.Dominant)
	}
}

func TestPromoteCalibrationVersionDeactivatesPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := types.CalibrationVersion{VersionID: "v1", Asset: types.AssetSPX, CreatedAt: time.Now(), Active: true}
	v2 := types.CalibrationVersion{VersionID: "v2", Asset: types.AssetSPX, CreatedAt: time.Now()}
	_ = s.PutCalibrationVersion(ctx, v1)
	s.activeCalByAsset[types.AssetSPX] = "v1"
	_ = s.PutCalibrationVersion(ctx, v2)

	if err := s.PromoteCalibrationVersion(ctx, "v2"); err != nil {
		t.Fatalf("PromoteCalibrationVersion: %v", err)
	}

	got1, _ := s.GetCalibrationVersion(ctx, "v1")
	got2, _ := s.GetCalibrationVersion(ctx, "v2")
	if got1.Active {
		t.Errorf("expected v1 deactivated after promoting v2")
	}
	if !got2.Active {
		t.Errorf("expected v2 active after promotion")
	}

	active, ok, err := s.ActiveCalibrationVersion(ctx, types.AssetSPX)
	if err != nil || !ok || active.VersionID != "v2" {
		t.Errorf("expected active version v2, got %+v ok=%v err=%v", active, ok, err)
	}
}

func TestSwapActiveParamsAppendsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := types.AdaptiveParams{VersionID: "p1", Asset: types.AssetSPX, CreatedAt: time.Now()}
	p2 := types.AdaptiveParams{VersionID: "p2", Asset: types.AssetSPX, CreatedAt: time.Now()}

	if err := s.SwapActiveParams(ctx, p1); err != nil {
		t.Fatalf("swap p1: %v", err)
	}
	if err := s.SwapActiveParams(ctx, p2); err != nil {
		t.Fatalf("swap p2: %v", err)
	}

	active, ok, err := s.ActiveParams(ctx, types.AssetSPX)
	if err != nil || !ok || active.VersionID != "p2" {
		t.Errorf("expected active params p2, got %+v ok=%v err=%v", active, ok, err)
	}

	hist, err := s.ParamHistory(ctx, types.AssetSPX)
	if err != nil || len(hist) != 1 || hist[0].VersionID != "p1" {
		t.Errorf("expected history to contain exactly p1, got %+v err=%v", hist, err)
	}
}

func TestPersistenceRoundTripsAcrossReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s1, err := New(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := s1.PutTuningRun(ctx, types.TuningRun{RunID: "r1", Kind: "calibration", Status: "complete"}); err != nil {
		t.Fatalf("PutTuningRun: %v", err)
	}

	s2, err := New(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("reload New: %v", err)
	}
	run, err := s2.GetTuningRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetTuningRun after reload: %v", err)
	}
	if run.Status != "complete" {
		t.Errorf("expected persisted run to round-trip, got %+v", run)
	}
}
