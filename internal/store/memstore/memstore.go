// Package memstore is a JSON-file-backed reference implementation of
// internal/store.Store: an in-memory cache with a sync.RWMutex, persisted
// to one JSON file per collection under a base directory. It has no
// synthetic-data fallback — a missing series is an error, never a
// randomly-generated substitute.
package memstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/apperr"
	"github.com/regimebrain/brain/pkg/types"
)

// Store is the in-process reference store. All collections live in memory
// guarded by mu. Every collection except series is flushed to
// baseDir/<collection>.json on every mutation: cache the write, then persist
// it. Seeded series are held in memory only.
type Store struct {
	mu     sync.RWMutex
	logger *zap.Logger

	baseDir string

	series          map[string]types.Series
	regimeHistory   map[string][]types.MacroRegimeState // key: asset
	regimeMemory    map[string]types.RegimeMemoryState   // key: scope
	calibrations    map[string]types.CalibrationVersion  // key: versionId
	activeCalByAsset map[types.Asset]string              // asset -> versionId
	activeParams    map[types.Asset]types.AdaptiveParams
	paramHistory    map[types.Asset][]types.AdaptiveParams
	tuningRuns      map[string]types.TuningRun
}

// New constructs a Store rooted at baseDir, loading any previously
// persisted collections found there.
func New(logger *zap.Logger, baseDir string) (*Store, error) {
	s := &Store{
		logger:           logger.Named("memstore"),
		baseDir:          baseDir,
		series:           make(map[string]types.Series),
		regimeHistory:    make(map[string][]types.MacroRegimeState),
		regimeMemory:     make(map[string]types.RegimeMemoryState),
		calibrations:     make(map[string]types.CalibrationVersion),
		activeCalByAsset: make(map[types.Asset]string),
		activeParams:     make(map[types.Asset]types.AdaptiveParams),
		paramHistory:     make(map[types.Asset][]types.AdaptiveParams),
		tuningRuns:       make(map[string]types.TuningRun),
	}
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, err
		}
		s.loadAll()
	}
	return s, nil
}

// SeedSeries installs a series directly (used by tests and cold-start
// ingestion, which is an external collaborator outside this package).
func (s *Store) SeedSeries(series types.Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series.ID] = series
}

func (s *Store) LoadSeries(ctx context.Context, id string, from, to types.Date) (types.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, ok := s.series[id]
	if !ok {
		return types.Series{}, apperr.SeriesUnavailable("unknown series " + id)
	}
	out := types.Series{ID: full.ID, Frequency: full.Frequency}
	for _, p := range full.Points {
		if p.Date.Before(from) || p.Date.After(to) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	if len(out.Points) == 0 {
		return types.Series{}, apperr.SeriesUnavailable("series " + id + " has no points in range")
	}
	return out, nil
}

func (s *Store) AppendRegimeState(ctx context.Context, st types.MacroRegimeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(st.Asset)
	hist := s.regimeHistory[key]
	for _, existing := range hist {
		if existing.Date.Equal(st.Date) {
			return apperr.ValidationFailure("duplicate regime state for " + key + " on " + st.Date.String())
		}
	}
	s.regimeHistory[key] = append(hist, st)
	s.persist("regime_state")
	return nil
}

func (s *Store) LatestRegimeState(ctx context.Context, asset types.Asset) (types.MacroRegimeState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.regimeHistory[string(asset)]
	if len(hist) == 0 {
		return types.MacroRegimeState{}, false, nil
	}
	latest := hist[0]
	for _, h := range hist[1:] {
		if h.Date.After(latest.Date) {
			latest = h
		}
	}
	return latest, true, nil
}

func (s *Store) RegimeHistory(ctx context.Context, asset types.Asset, since types.Date) ([]types.MacroRegimeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.MacroRegimeState
	for _, h := range s.regimeHistory[string(asset)] {
		if h.Date.Before(since) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) GetRegimeMemory(ctx context.Context, scope string) (types.RegimeMemoryState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.regimeMemory[scope]
	return m, ok, nil
}

func (s *Store) PutRegimeMemory(ctx context.Context, m types.RegimeMemoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regimeMemory[m.Scope] = m
	s.persist("regime_memory_state")
	return nil
}

func (s *Store) PutCalibrationVersion(ctx context.Context, v types.CalibrationVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrations[v.VersionID] = v
	s.persist("calibration_versions")
	return nil
}

func (s *Store) GetCalibrationVersion(ctx context.Context, versionID string) (types.CalibrationVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.calibrations[versionID]
	if !ok {
		return types.CalibrationVersion{}, apperr.RunNotFound("calibration version " + versionID)
	}
	return v, nil
}

func (s *Store) ListCalibrationVersions(ctx context.Context, asset types.Asset) ([]types.CalibrationVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.CalibrationVersion
	for _, v := range s.calibrations {
		if v.Asset == asset {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ActiveCalibrationVersion(ctx context.Context, asset types.Asset) (types.CalibrationVersion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeCalByAsset[asset]
	if !ok {
		return types.CalibrationVersion{}, false, nil
	}
	v, ok := s.calibrations[id]
	return v, ok, nil
}

func (s *Store) PromoteCalibrationVersion(ctx context.Context, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.calibrations[versionID]
	if !ok {
		return apperr.RunNotFound("calibration version " + versionID)
	}
	if prevID, ok := s.activeCalByAsset[v.Asset]; ok {
		if prev, ok := s.calibrations[prevID]; ok {
			prev.Active = false
			s.calibrations[prevID] = prev
		}
	}
	v.Active = true
	s.calibrations[versionID] = v
	s.activeCalByAsset[v.Asset] = versionID
	s.persist("calibration_versions")
	return nil
}

func (s *Store) ActiveParams(ctx context.Context, asset types.Asset) (types.AdaptiveParams, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.activeParams[asset]
	return p, ok, nil
}

// SwapActiveParams is the single-writer atomic swap for the active
// parameter pointer: it both updates the singleton and appends the
// previous holder to history.
func (s *Store) SwapActiveParams(ctx context.Context, p types.AdaptiveParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.activeParams[p.Asset]; ok {
		s.paramHistory[p.Asset] = append(s.paramHistory[p.Asset], prev)
	}
	s.activeParams[p.Asset] = p
	s.persist("adaptive_active_params")
	s.persist("adaptive_param_history")
	return nil
}

func (s *Store) ParamHistory(ctx context.Context, asset types.Asset) ([]types.AdaptiveParams, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AdaptiveParams, len(s.paramHistory[asset]))
	copy(out, s.paramHistory[asset])
	return out, nil
}

func (s *Store) PutTuningRun(ctx context.Context, r types.TuningRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tuningRuns[r.RunID] = r
	s.persist("tuning_runs")
	return nil
}

func (s *Store) GetTuningRun(ctx context.Context, runID string) (types.TuningRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tuningRuns[runID]
	if !ok {
		return types.TuningRun{}, apperr.RunNotFound("tuning run " + runID)
	}
	return r, nil
}

// persist writes one collection to disk under s.mu already held by the
// caller. Failures are logged, not propagated — persistence is best-effort
// durability on top of the authoritative in-memory state; a write-path
// call never fails on disk I/O errors.
func (s *Store) persist(collection string) {
	if s.baseDir == "" {
		return
	}
	var payload any
	switch collection {
	case "regime_state":
		payload = s.regimeHistory
	case "regime_memory_state":
		payload = s.regimeMemory
	case "calibration_versions":
		payload = s.calibrations
	case "adaptive_active_params":
		payload = s.activeParams
	case "adaptive_param_history":
		payload = s.paramHistory
	case "tuning_runs":
		payload = s.tuningRuns
	default:
		return
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		s.logger.Warn("marshal collection failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	path := filepath.Join(s.baseDir, collection+".json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		s.logger.Warn("persist collection failed", zap.String("collection", collection), zap.Error(err))
	}
}

func (s *Store) loadAll() {
	s.loadOne("regime_state", &s.regimeHistory)
	s.loadOne("regime_memory_state", &s.regimeMemory)
	s.loadOne("calibration_versions", &s.calibrations)
	s.loadOne("adaptive_active_params", &s.activeParams)
	s.loadOne("adaptive_param_history", &s.paramHistory)
	s.loadOne("tuning_runs", &s.tuningRuns)

	for id, v := range s.calibrations {
		if v.Active {
			s.activeCalByAsset[v.Asset] = id
		}
	}
}

func (s *Store) loadOne(collection string, target any) {
	path := filepath.Join(s.baseDir, collection+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(b, target); err != nil {
		s.logger.Warn("load collection failed", zap.String("collection", collection), zap.Error(err))
	}
}
