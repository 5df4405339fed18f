// Package store defines the persistent-store contracts the pipeline
// depends on: time series, regime state/memory, calibration versions,
// adaptive params, and tuning runs. internal/store/memstore provides a
// JSON-file-backed reference implementation.
package store

import (
	"context"

	"github.com/regimebrain/brain/pkg/types"
)

// SeriesSource is the read-only data-source contract.
type SeriesSource interface {
	LoadSeries(ctx context.Context, id string, from, to types.Date) (types.Series, error)
}

// RegimeStateStore persists the append-only `regime_state` history,
// unique by (asset, date).
type RegimeStateStore interface {
	AppendRegimeState(ctx context.Context, s types.MacroRegimeState) error
	LatestRegimeState(ctx context.Context, asset types.Asset) (types.MacroRegimeState, bool, error)
	RegimeHistory(ctx context.Context, asset types.Asset, since types.Date) ([]types.MacroRegimeState, error)
}

// RegimeMemoryStore persists the single-row-per-scope `regime_memory_state`
// collection.
type RegimeMemoryStore interface {
	GetRegimeMemory(ctx context.Context, scope string) (types.RegimeMemoryState, bool, error)
	PutRegimeMemory(ctx context.Context, m types.RegimeMemoryState) error
}

// CalibrationStore persists `calibration_versions`, unique by versionId,
// with a secondary index by (asset, createdAt desc).
type CalibrationStore interface {
	PutCalibrationVersion(ctx context.Context, v types.CalibrationVersion) error
	GetCalibrationVersion(ctx context.Context, versionID string) (types.CalibrationVersion, error)
	ListCalibrationVersions(ctx context.Context, asset types.Asset) ([]types.CalibrationVersion, error)
	ActiveCalibrationVersion(ctx context.Context, asset types.Asset) (types.CalibrationVersion, bool, error)
	// PromoteCalibrationVersion atomically marks versionID active for its
	// asset and demotes any previously active version.
	PromoteCalibrationVersion(ctx context.Context, versionID string) error
}

// AdaptiveParamStore persists `adaptive_active_params` (single-writer,
// multi-reader singleton per asset) and the append-only
// `adaptive_param_history`.
type AdaptiveParamStore interface {
	ActiveParams(ctx context.Context, asset types.Asset) (types.AdaptiveParams, bool, error)
	SwapActiveParams(ctx context.Context, p types.AdaptiveParams) error
	ParamHistory(ctx context.Context, asset types.Asset) ([]types.AdaptiveParams, error)
}

// TuningRunStore persists `tuning_runs`, unique by runId.
type TuningRunStore interface {
	PutTuningRun(ctx context.Context, r types.TuningRun) error
	GetTuningRun(ctx context.Context, runID string) (types.TuningRun, error)
}

// Store aggregates every persistent-store contract the pipeline needs.
type Store interface {
	SeriesSource
	RegimeStateStore
	RegimeMemoryStore
	CalibrationStore
	AdaptiveParamStore
	TuningRunStore
}
