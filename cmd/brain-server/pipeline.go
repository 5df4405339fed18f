package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/allocation"
	"github.com/regimebrain/brain/internal/apperr"
	"github.com/regimebrain/brain/internal/brain"
	"github.com/regimebrain/brain/internal/calibration"
	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/crossasset"
	"github.com/regimebrain/brain/internal/eventbus"
	"github.com/regimebrain/brain/internal/forecast"
	"github.com/regimebrain/brain/internal/guard"
	"github.com/regimebrain/brain/internal/macro"
	"github.com/regimebrain/brain/internal/optimizer"
	"github.com/regimebrain/brain/internal/promotion"
	"github.com/regimebrain/brain/internal/regime"
	"github.com/regimebrain/brain/internal/series"
	"github.com/regimebrain/brain/internal/simulator"
	"github.com/regimebrain/brain/internal/store"
	"github.com/regimebrain/brain/internal/telemetry"
	"github.com/regimebrain/brain/internal/workerpool"
	"github.com/regimebrain/brain/pkg/types"
)

// featureCount is the fixed dimensionality of the feature vector the
// forecaster is trained and queried on: signed macro score, liquidity
// impulse, cross-asset contagion score, credit composite, and scaled VIX.
const featureCount = 5

// regimeScope is the canonical asset key the Markov Regime Engine's shared
// history is tracked under; the brain runs one macro regime track for the
// whole portfolio rather than one per asset.
const regimeScope = types.AssetSPX

var farFuture = mustParseDate("2999-12-31")

func mustParseDate(s string) types.Date {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Pipeline wires every decision-pipeline engine to one store and exposes
// the operations the HTTP layer's Dependencies struct dispatches to.
type Pipeline struct {
	logger  *zap.Logger
	cfg     config.Config
	st      store.Store
	pool    *workerpool.Pool
	metrics *telemetry.Metrics
	bus     *eventbus.Bus

	contextBuilder   *macro.ContextBuilder
	liquidityEngine  *macro.LiquidityEngine
	scoreEngine      *macro.ScoreEngine
	regimeEngine     *regime.Engine
	crossAssetEngine *crossasset.Engine
	guardEvaluator   *guard.Evaluator
	forecaster       *forecast.Forecaster
	orchestrator     *brain.Orchestrator
	allocationPolicy *allocation.Policy
	optimizerEngine  *optimizer.Optimizer
	calibrator       *calibration.Calibrator
	promotionGate    *promotion.Gate

	optimizerMode types.OptimizerMode

	modelMu sync.RWMutex
	models  map[types.Asset]types.TrainedModel

	transitionMu sync.Mutex
	lastRegime   types.MacroRegime
	lastGuard    types.GuardLevel

	simReportsMu sync.RWMutex
	simReports   map[string]types.SimulatorReport
}

// NewPipeline constructs every engine from cfg and binds them to st.
func NewPipeline(logger *zap.Logger, cfg config.Config, st store.Store, pool *workerpool.Pool, metrics *telemetry.Metrics, bus *eventbus.Bus, optimizerMode types.OptimizerMode) *Pipeline {
	contextBuilder := macro.NewContextBuilder(logger)
	return &Pipeline{
		logger:  logger.Named("pipeline"),
		cfg:     cfg,
		st:      st,
		pool:    pool,
		metrics: metrics,
		bus:     bus,

		contextBuilder:   contextBuilder,
		liquidityEngine:  macro.NewLiquidityEngine(logger),
		scoreEngine:      macro.NewScoreEngine(logger, contextBuilder),
		regimeEngine:     regime.NewEngine(logger),
		crossAssetEngine: crossasset.NewEngine(logger),
		guardEvaluator:   guard.NewEvaluator(logger, cfg.Guard),
		forecaster:       forecast.NewForecaster(logger, cfg.Forecaster),
		orchestrator:     brain.NewOrchestrator(logger, cfg.Brain),
		allocationPolicy: allocation.NewPolicy(logger, cfg.Allocation),
		optimizerEngine:  optimizer.NewOptimizer(logger, cfg.Optimizer),
		calibrator:       calibration.NewCalibrator(logger, contextBuilder, pool),
		promotionGate:    promotion.NewGate(logger, cfg.Promotion),

		optimizerMode: optimizerMode,
		models:        make(map[types.Asset]types.TrainedModel),
		simReports:    make(map[string]types.SimulatorReport),
	}
}

// worldStateOptions controls the two side effects buildWorldState can have:
// persisting the freshly computed regime state, and running the (possibly
// expensive, model-dependent) forecast step.
type worldStateOptions struct {
	persist      bool
	withForecast bool
}

// buildWorldState assembles one reference date's WorldState by running the
// As-Of Filter, Macro Context Builder, Liquidity Impulse Engine, Macro
// Score Engine, Markov Regime Engine, Cross-Asset Regime Engine, Crisis
// Guard, and (optionally) the Quantile MoE Forecaster in sequence.
func (p *Pipeline) buildWorldState(ctx context.Context, asOf types.Date, opts worldStateOptions) (types.WorldState, error) {
	lookbackFrom := asOf.AddDays(-3650)

	walclCtx := p.contextOrZero(ctx, liquiditySeriesIDs.WALCL, asOf, lookbackFrom)
	rrpCtx := p.contextOrZero(ctx, liquiditySeriesIDs.RRP, asOf, lookbackFrom)
	tgaCtx := p.contextOrZero(ctx, liquiditySeriesIDs.TGA, asOf, lookbackFrom)
	liquidity := p.liquidityEngine.Compute(asOf, walclCtx, rrpCtx, tgaCtx)

	rawMacro := map[string]types.Series{}
	for _, c := range candidateSeries {
		raw, err := p.st.LoadSeries(ctx, c.SeriesID, lookbackFrom, asOf)
		if err != nil {
			continue
		}
		filtered, err := series.AsOf(raw, asOf)
		if err != nil {
			continue
		}
		rawMacro[c.SeriesID] = filtered
	}

	primaryHorizon := p.primaryHorizon()
	macroScores := make(map[types.Asset]types.MacroScore, len(scoredAssets))
	for _, asset := range scoredAssets {
		weights, err := p.weightSetForAsset(ctx, asset, primaryHorizon)
		if err != nil {
			p.logger.Warn("macro score degraded to neutral fallback", zap.String("asset", string(asset)), zap.Error(err))
			macroScores[asset] = neutralMacroScore(asset, primaryHorizon, asOf)
			continue
		}
		macroScores[asset] = p.scoreEngine.Compute(asset, primaryHorizon, weights, rawMacro, asOf)
	}

	logReturns := map[types.Asset][]float64{}
	for asset, id := range crossAssetSeriesIDs {
		raw, err := p.st.LoadSeries(ctx, id, lookbackFrom, asOf)
		if err != nil {
			continue
		}
		filtered, err := series.AsOf(raw, asOf)
		if err != nil {
			continue
		}
		logReturns[asset] = series.LogReturns(nonMissingValues(filtered))
	}
	crossAsset := p.crossAssetEngine.Compute(asOf, logReturns)

	credit, _ := p.latestValue(ctx, guardSeriesIDs.Credit, asOf)
	vix, _ := p.latestValue(ctx, guardSeriesIDs.VIX, asOf)
	guardState := p.guardEvaluator.Evaluate(credit, vix)

	avgScore := averageScoreSigned(macroScores, scoredAssets)
	prevState, hasPrev, err := p.st.LatestRegimeState(ctx, regimeScope)
	if err != nil {
		return types.WorldState{}, fmt.Errorf("loading prior regime state: %w", err)
	}
	var prevPtr *types.MacroRegimeState
	if hasPrev {
		prevPtr = &prevState
	}
	changeCount := p.changeCount30D(ctx, asOf)
	regimeState := p.regimeEngine.Update(regimeScope, asOf, avgScore, prevPtr, changeCount)

	if opts.persist {
		if err := p.st.AppendRegimeState(ctx, regimeState); err != nil {
			if kind, ok := apperr.KindOf(err); !ok || kind != apperr.KindValidationFailure {
				return types.WorldState{}, fmt.Errorf("persisting regime state: %w", err)
			}
		}
		p.persistRegimeMemory(ctx, regimeState)
	}

	ws := types.WorldState{
		AsOf:        asOf,
		MacroScores: macroScores,
		Liquidity:   liquidity,
		Regime:      regimeState,
		CrossAsset:  crossAsset,
		Guard:       guardState,
	}

	if opts.withForecast {
		ws.Forecasts = make(map[types.Asset]map[types.Horizon]types.HorizonForecast, len(riskAssets))
		for _, asset := range riskAssets {
			model := p.modelFor(asset)
			features := featureVector(ws, asset)
			ws.Forecasts[asset] = p.forecaster.Predict(model, features, regimeState.Posterior)
		}
	}

	return ws, nil
}

func (p *Pipeline) primaryHorizon() types.Horizon {
	if len(p.cfg.Forecaster.Horizons) == 0 {
		return types.Horizon30D
	}
	return p.cfg.Forecaster.Horizons[0]
}

func (p *Pipeline) persistRegimeMemory(ctx context.Context, st types.MacroRegimeState) {
	prev, ok, err := p.st.GetRegimeMemory(ctx, string(regimeScope))
	daysInState := 1
	if err == nil && ok && prev.Current == st.Dominant {
		daysInState = prev.DaysInState + 1
	}
	mem := types.RegimeMemoryState{
		Scope:       string(regimeScope),
		Current:     st.Dominant,
		DaysInState: daysInState,
		Flips30D:    st.ChangeCount30D,
		Stability:   st.StabilityScore,
	}
	if err := p.st.PutRegimeMemory(ctx, mem); err != nil {
		p.logger.Warn("failed to persist regime memory", zap.Error(err))
	}
}

func (p *Pipeline) contextOrZero(ctx context.Context, id string, asOf, from types.Date) types.SeriesContext {
	raw, err := p.st.LoadSeries(ctx, id, from, asOf)
	if err != nil {
		return types.SeriesContext{}
	}
	filtered, err := series.AsOf(raw, asOf)
	if err != nil {
		return types.SeriesContext{}
	}
	sc, err := p.contextBuilder.Build(filtered, asOf)
	if err != nil {
		return types.SeriesContext{}
	}
	return sc
}

func (p *Pipeline) latestValue(ctx context.Context, id string, asOf types.Date) (float64, bool) {
	raw, err := p.st.LoadSeries(ctx, id, asOf.AddDays(-3650), asOf)
	if err != nil {
		return 0, false
	}
	filtered, err := series.AsOf(raw, asOf)
	if err != nil {
		return 0, false
	}
	pt, ok := series.LatestAvailable(filtered, asOf)
	if !ok || pt.Missing {
		return 0, false
	}
	return pt.Value, true
}

func (p *Pipeline) changeCount30D(ctx context.Context, asOf types.Date) int {
	hist, err := p.st.RegimeHistory(ctx, regimeScope, asOf.AddDays(-30))
	if err != nil || len(hist) == 0 {
		return 0
	}
	count := 0
	for i := 1; i < len(hist); i++ {
		if hist[i].Dominant != hist[i-1].Dominant {
			count++
		}
	}
	return count
}

// weightSetForAsset resolves the component specs asset uses for horizon.
// An active calibration version that doesn't cover horizon is a fail-explicit
// apperr.InsufficientCalibration, never a silent fall back to the
// uncalibrated default; the caller degrades that horizon's MacroScore to
// the neutral fallback instead.
func (p *Pipeline) weightSetForAsset(ctx context.Context, asset types.Asset, horizon types.Horizon) ([]macro.ComponentSpec, error) {
	active, ok, err := p.st.ActiveCalibrationVersion(ctx, asset)
	if err != nil || !ok {
		def := defaultWeightSet(p.cfg.Forecaster.Horizons)
		return def[horizon], nil
	}
	ws, missing := weightSetFromCalibration(active, p.cfg.Forecaster.Horizons)
	for _, h := range missing {
		if h == horizon {
			return nil, apperr.InsufficientCalibration(fmt.Sprintf("calibration %s for %s has no weights for horizon %s", active.VersionID, asset, horizon))
		}
	}
	return ws[horizon], nil
}

// neutralMacroScore is the degraded MacroScore substituted when an asset's
// horizon lacks a usable weight set: zero signal, low confidence, no
// components evaluated.
func neutralMacroScore(asset types.Asset, horizon types.Horizon, asOf types.Date) types.MacroScore {
	return types.MacroScore{
		Asset:      asset,
		Horizon:    horizon,
		AsOf:       asOf,
		Confidence: types.ConfidenceLow,
	}
}

func (p *Pipeline) modelFor(asset types.Asset) types.TrainedModel {
	p.modelMu.RLock()
	defer p.modelMu.RUnlock()
	return p.models[asset]
}

func nonMissingValues(s types.Series) []float64 {
	out := make([]float64, 0, len(s.Points))
	for _, pt := range s.Points {
		if !pt.Missing {
			out = append(out, pt.Value)
		}
	}
	return out
}

func averageScoreSigned(scores map[types.Asset]types.MacroScore, assets []types.Asset) float64 {
	var sum float64
	var n int
	for _, a := range assets {
		ms, ok := scores[a]
		if !ok {
			continue
		}
		v, _ := ms.ScoreSigned.Float64()
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func averageConfidence(scores map[types.Asset]types.MacroScore, assets []types.Asset) float64 {
	var sum float64
	var n int
	for _, a := range assets {
		ms, ok := scores[a]
		if !ok {
			continue
		}
		sum += types.ConfidenceScore[ms.Confidence]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// featureVector builds the forecaster's fixed-width input for asset from a
// fully-populated (forecast-less) WorldState.
func featureVector(ws types.WorldState, asset types.Asset) []float64 {
	scoreSigned, _ := ws.MacroScores[asset].ScoreSigned.Float64()
	return []float64{
		scoreSigned,
		ws.Liquidity.Impulse,
		ws.CrossAsset.ContagionScore,
		ws.Guard.CreditComposite,
		ws.Guard.VIX / 100.0,
	}
}

func postureFor(mode types.RiskMode) types.Posture {
	switch mode {
	case types.RiskModeRiskOff, types.RiskModeCrisis:
		return types.PostureDefensive
	case types.RiskModeRiskOn:
		return types.PostureOffensive
	default:
		return types.PostureNeutral
	}
}

func optimizerForecasts(ws types.WorldState) map[types.Asset]optimizer.AssetForecast {
	out := make(map[types.Asset]optimizer.AssetForecast, len(riskAssets))
	for _, asset := range riskAssets {
		hf, ok := ws.Forecasts[asset][types.Horizon90D]
		if !ok {
			continue
		}
		out[asset] = optimizer.AssetForecast{Mean: hf.Mean, Q05: hf.Q05}
	}
	return out
}

func healthFor(ws types.WorldState) types.Health {
	h := types.Health{OK: true}
	if ws.Liquidity.Available == 0 {
		h.Warnings = append(h.Warnings, "liquidity impulse unavailable, all three components missing")
	}
	for asset, ms := range ws.MacroScores {
		if !ms.SkippedWeight.IsZero() {
			h.Warnings = append(h.Warnings, fmt.Sprintf("%s macro score skipped %s of its weight", asset, ms.SkippedWeight.String()))
		}
	}
	if ws.Guard.Level >= types.GuardCrisis {
		h.Warnings = append(h.Warnings, "crisis guard elevated at decision time")
	}
	return h
}

// inputsHash renders a deterministic fingerprint of the decision's full
// input snapshot; encoding/json sorts map keys, so two runs over identical
// data produce identical hashes.
func inputsHash(ws types.WorldState) string {
	b, err := json.Marshal(ws)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// Decide runs the full cascade for one reference date: world state, brain
// orchestration, allocation cascade, capital optimizer, and evidence.
func (p *Pipeline) Decide(ctx context.Context, asOf types.Date) (types.BrainOutput, error) {
	start := time.Now()

	ws, err := p.buildWorldState(ctx, asOf, worldStateOptions{persist: true, withForecast: true})
	if err != nil {
		return types.BrainOutput{}, err
	}

	scenario, directives, evidence := p.orchestrator.Decide(ws)

	spxSignal, _ := ws.MacroScores[types.AssetSPX].ScoreSigned.Float64()
	btcSignal, _ := ws.MacroScores[types.AssetBTC].ScoreSigned.Float64()
	confidence := averageConfidence(ws.MacroScores, scoredAssets)

	cascade := p.allocationPolicy.Apply(allocation.Inputs{
		SPXSignal:   spxSignal,
		BTCSignal:   btcSignal,
		Guard:       ws.Guard,
		Directives:  directives,
		Liquidity:   ws.Liquidity,
		Confidence:  confidence,
		MacroRegime: ws.Regime.Dominant,
	})

	posture := postureFor(directives.RiskMode)
	opt := p.optimizerEngine.Run(optimizer.Inputs{
		Current:        cascade.Allocation,
		Mode:           p.optimizerMode,
		Posture:        posture,
		Scenario:       scenario.Dominant,
		CrossAsset:     ws.CrossAsset.Label,
		ContagionScore: ws.CrossAsset.ContagionScore,
		Forecasts:      optimizerForecasts(ws),
	})

	out := types.BrainOutput{
		AsOf:       asOf,
		Scenario:   scenario,
		Directives: directives,
		Allocation: opt.Final,
		Optimizer:  opt,
		Evidence:   evidence,
		Health:     healthFor(ws),
		InputsHash: inputsHash(ws),
		TraceID:    uuid.NewString(),
	}

	p.metrics.DecisionLatency.Observe(time.Since(start).Seconds())
	p.trackTransitions(ws)
	p.bus.Publish(eventbus.EventDecision, out)

	return out, nil
}

func (p *Pipeline) trackTransitions(ws types.WorldState) {
	p.transitionMu.Lock()
	prevRegime, prevGuard := p.lastRegime, p.lastGuard
	p.lastRegime, p.lastGuard = ws.Regime.Dominant, ws.Guard.Level
	p.transitionMu.Unlock()

	if prevRegime != "" && prevRegime != ws.Regime.Dominant {
		p.metrics.RegimeFlips.Inc()
		p.bus.Publish(eventbus.EventRegimeChange, map[string]string{
			"asOf": ws.AsOf.String(), "from": string(prevRegime), "to": string(ws.Regime.Dominant),
		})
	}
	if prevGuard != ws.Guard.Level {
		p.metrics.GuardEscalations.WithLabelValues(ws.Guard.Level.String()).Inc()
		if ws.Guard.Level > prevGuard {
			p.bus.Publish(eventbus.EventGuardEscalation, map[string]string{
				"asOf": ws.AsOf.String(), "from": prevGuard.String(), "to": ws.Guard.Level.String(),
			})
		}
	}
}

// World returns the decision inputs for asOf without persisting regime
// history, for the read-only /world endpoint.
func (p *Pipeline) World(ctx context.Context, asOf types.Date) (types.WorldState, error) {
	return p.buildWorldState(ctx, asOf, worldStateOptions{persist: false, withForecast: true})
}

// Forecast returns one asset's horizon forecast bundle for asOf.
func (p *Pipeline) Forecast(ctx context.Context, asset types.Asset, asOf types.Date) (map[types.Horizon]types.HorizonForecast, error) {
	if asset != types.AssetSPX && asset != types.AssetBTC {
		return nil, apperr.ValidationFailure("forecasts are only produced for allocatable assets (SPX, BTC)")
	}
	ws, err := p.buildWorldState(ctx, asOf, worldStateOptions{persist: false, withForecast: true})
	if err != nil {
		return nil, err
	}
	return ws.Forecasts[asset], nil
}

// CompareTimeline replays Decide across [from, to], stepped by the
// simulator's configured cadence, capped to bound one request's cost.
func (p *Pipeline) CompareTimeline(ctx context.Context, from, to types.Date) ([]types.BrainOutput, error) {
	step := p.cfg.Simulator.StepDays
	if step <= 0 {
		step = 14
	}
	const maxPoints = 200

	var out []types.BrainOutput
	for d := from; !d.After(to) && len(out) < maxPoints; d = d.AddDays(step) {
		bo, err := p.Decide(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("compare timeline at %s: %w", d, err)
		}
		out = append(out, bo)
	}
	return out, nil
}

// OptimizerPreview runs the cascade and optimizer in preview mode, without
// persisting regime history, so a caller can inspect the optimizer's
// would-be deltas regardless of the server's configured optimizer mode.
func (p *Pipeline) OptimizerPreview(ctx context.Context, asOf types.Date) (types.OptimizerOutput, error) {
	ws, err := p.buildWorldState(ctx, asOf, worldStateOptions{persist: false, withForecast: true})
	if err != nil {
		return types.OptimizerOutput{}, err
	}

	scenario, directives, _ := p.orchestrator.Decide(ws)

	spxSignal, _ := ws.MacroScores[types.AssetSPX].ScoreSigned.Float64()
	btcSignal, _ := ws.MacroScores[types.AssetBTC].ScoreSigned.Float64()
	confidence := averageConfidence(ws.MacroScores, scoredAssets)

	cascade := p.allocationPolicy.Apply(allocation.Inputs{
		SPXSignal:   spxSignal,
		BTCSignal:   btcSignal,
		Guard:       ws.Guard,
		Directives:  directives,
		Liquidity:   ws.Liquidity,
		Confidence:  confidence,
		MacroRegime: ws.Regime.Dominant,
	})

	return p.optimizerEngine.Run(optimizer.Inputs{
		Current:        cascade.Allocation,
		Mode:           types.OptimizerPreview,
		Posture:        postureFor(directives.RiskMode),
		Scenario:       scenario.Dominant,
		CrossAsset:     ws.CrossAsset.Label,
		ContagionScore: ws.CrossAsset.ContagionScore,
		Forecasts:      optimizerForecasts(ws),
	}), nil
}

// baselineAllocation is the fixed, brain-off reference split the walk-
// forward simulator compares every sample against: a static moderate mix,
// representing what a portfolio would hold with no dynamic brain input.
var baselineAllocation = types.Allocation{
	SPX:  decimal.NewFromFloat(0.4),
	BTC:  decimal.NewFromFloat(0.1),
	DXY:  decimal.NewFromFloat(0.1),
	Cash: decimal.NewFromFloat(0.4),
}

func nearestPointAtOrAfter(points []types.Point, d types.Date) (types.Point, bool) {
	for _, pt := range points {
		if !pt.Date.Before(d) && !pt.Missing {
			return pt, true
		}
	}
	return types.Point{}, false
}

func (p *Pipeline) realizedReturns(ctx context.Context, date types.Date) (map[types.Horizon]float64, bool) {
	raw, err := p.st.LoadSeries(ctx, crossAssetSeriesIDs[types.AssetSPX], types.Date{}, farFuture)
	if err != nil {
		return nil, true
	}
	base, ok := nearestPointAtOrAfter(raw.Points, date)
	if !ok || base.Value <= 0 {
		return nil, true
	}

	out := map[types.Horizon]float64{}
	nan := false
	for h, days := range types.HorizonDays {
		pt, ok := nearestPointAtOrAfter(raw.Points, date.AddDays(days))
		if !ok {
			nan = true
			continue
		}
		ret := (pt.Value - base.Value) / base.Value
		if !series.IsFinite(ret) {
			nan = true
			continue
		}
		out[h] = ret
	}
	return out, nan
}

func (p *Pipeline) simulatorStep(ctx context.Context, date types.Date) (types.SimulatorSample, error) {
	bo, err := p.Decide(ctx, date)
	if err != nil {
		return types.SimulatorSample{}, err
	}

	spxDelta, _ := bo.Optimizer.Deltas[types.AssetSPX].Float64()
	btcDelta, _ := bo.Optimizer.Deltas[types.AssetBTC].Float64()
	overrideIntensity := decimal.NewFromFloat(math.Abs(spxDelta) + math.Abs(btcDelta))

	realized, nanDetected := p.realizedReturns(ctx, date)

	return types.SimulatorSample{
		Date:               date,
		BrainOnAllocation:  bo.Allocation,
		BrainOffAllocation: baselineAllocation,
		Scenario:           bo.Scenario.Dominant,
		OverrideIntensity:  overrideIntensity,
		RealizedReturns:    realized,
		NaNDetected:        nanDetected,
	}, nil
}

// SimRun runs the walk-forward simulator over [start, end] and keeps the
// report addressable by run ID for later promotion evaluation.
func (p *Pipeline) SimRun(ctx context.Context, start, end types.Date) (types.SimulatorReport, error) {
	runID := uuid.NewString()
	sim := simulator.New(p.logger, p.cfg.Simulator, p.pool, p.simulatorStep)
	report := sim.Run(ctx, runID, start, end)

	p.simReportsMu.Lock()
	p.simReports[runID] = report
	p.simReportsMu.Unlock()

	run := types.TuningRun{
		RunID:     runID,
		Kind:      "simulation",
		StartedAt: start.Time(),
		EndedAt:   end.Time(),
		Status:    "complete",
	}
	if err := p.st.PutTuningRun(ctx, run); err != nil {
		p.logger.Warn("failed to persist tuning run", zap.Error(err))
	}
	return report, nil
}

// SimReport looks up a previously run simulation by ID.
func (p *Pipeline) SimReport(ctx context.Context, runID string) (types.SimulatorReport, bool, error) {
	p.simReportsMu.RLock()
	defer p.simReportsMu.RUnlock()
	report, ok := p.simReports[runID]
	return report, ok, nil
}

// CalibrationRun searches a fresh per-horizon weight vector for asset
// across every configured horizon and persists the merged version.
func (p *Pipeline) CalibrationRun(ctx context.Context, asset types.Asset) (types.CalibrationVersion, error) {
	priceID, ok := crossAssetSeriesIDs[asset]
	if !ok {
		return types.CalibrationVersion{}, apperr.ValidationFailure("unknown asset " + string(asset))
	}
	price, err := p.st.LoadSeries(ctx, priceID, types.Date{}, farFuture)
	if err != nil {
		return types.CalibrationVersion{}, err
	}

	macroSeries := map[string]types.Series{}
	for _, c := range candidateSeries {
		s, err := p.st.LoadSeries(ctx, c.SeriesID, types.Date{}, farFuture)
		if err != nil {
			continue
		}
		macroSeries[c.SeriesID] = s
	}

	ds := calibration.Dataset{Asset: asset, PriceSeries: price, MacroSeries: macroSeries, Candidates: candidateSeries}
	from := price.Points[0].Date
	to := price.Points[len(price.Points)-1].Date

	merged := types.CalibrationVersion{
		Weights: map[types.Horizon][]types.ComponentContribution{},
	}
	for _, h := range p.cfg.Forecaster.Horizons {
		v, err := p.calibrator.Run(ctx, ds, h, p.cfg.Calibration, from, to)
		if err != nil {
			return types.CalibrationVersion{}, fmt.Errorf("calibrating %s horizon %s: %w", asset, h, err)
		}
		merged.Objective = v.Objective
		merged.Seed = v.Seed
		for horizon, w := range v.Weights {
			merged.Weights[horizon] = w
		}
		merged.Metrics = append(merged.Metrics, v.Metrics...)
		merged.BaselineV1 = append(merged.BaselineV1, v.BaselineV1...)
	}
	merged.VersionID = uuid.NewString()
	merged.Asset = asset
	merged.CreatedAt = time.Now().UTC()

	if err := p.st.PutCalibrationVersion(ctx, merged); err != nil {
		return types.CalibrationVersion{}, err
	}
	p.metrics.CalibrationTrial.Add(float64(p.cfg.Calibration.Trials * len(p.cfg.Forecaster.Horizons)))
	return merged, nil
}

// CalibrationActive returns the currently promoted calibration version, if
// any, for asset.
func (p *Pipeline) CalibrationActive(ctx context.Context, asset types.Asset) (types.CalibrationVersion, bool, error) {
	return p.st.ActiveCalibrationVersion(ctx, asset)
}

// CalibrationPromote is an explicit operator override that activates
// versionID immediately, bypassing the promotion gate's own advisory
// evaluation (that evaluation remains available via
// PromotionRecommendation for a simulation run).
func (p *Pipeline) CalibrationPromote(ctx context.Context, versionID string) error {
	if err := p.st.PromoteCalibrationVersion(ctx, versionID); err != nil {
		return err
	}
	p.metrics.GatePass.Inc()
	p.bus.Publish(eventbus.EventPromotion, map[string]string{"versionId": versionID, "action": "promote"})
	return nil
}

// PromotionRecommendation evaluates a previously run simulation's
// promotion readiness against the first risk asset's active calibration
// freshness.
func (p *Pipeline) PromotionRecommendation(ctx context.Context, runID string) (types.PromotionReport, error) {
	p.simReportsMu.RLock()
	report, ok := p.simReports[runID]
	p.simReportsMu.RUnlock()
	if !ok {
		return types.PromotionReport{}, apperr.RunNotFound("no simulation report for run " + runID)
	}

	cal, ok, err := p.st.ActiveCalibrationVersion(ctx, types.AssetSPX)
	if err != nil {
		return types.PromotionReport{}, err
	}
	if !ok {
		cal = types.CalibrationVersion{}
	}

	out := p.promotionGate.Evaluate(promotion.Input{
		Report:      report,
		Calibration: cal,
		AsOf:        report.End,
	})
	if out.Verdict == types.VerdictPromote {
		p.metrics.GatePass.Inc()
	} else {
		p.metrics.GateFail.Inc()
	}
	return out, nil
}

// bootstrapForecasters trains one model per risk asset from whatever
// history is already in the store, so the first /decision call has a
// non-trivial forecaster instead of a zero-value one. Assets without
// enough history are left untrained; predict degrades gracefully for
// those.
func (p *Pipeline) bootstrapForecasters(ctx context.Context) {
	for _, asset := range riskAssets {
		samples, err := p.buildTrainingSamples(ctx, asset)
		if err != nil {
			p.logger.Warn("failed to build training samples", zap.String("asset", string(asset)), zap.Error(err))
			continue
		}
		if len(samples) < p.cfg.Forecaster.MinSamplesPerExpert {
			p.logger.Warn("insufficient history to train forecaster, leaving untrained",
				zap.String("asset", string(asset)), zap.Int("samples", len(samples)))
			continue
		}
		model := p.forecaster.Train(samples, featureCount, p.cfg.Forecaster.Seed)
		model.VersionID = uuid.NewString()

		p.modelMu.Lock()
		p.models[asset] = model
		p.modelMu.Unlock()

		p.logger.Info("trained forecaster", zap.String("asset", string(asset)), zap.Int("samples", len(samples)),
			zap.Int("droppedRegimes", len(model.DroppedRegimes)))
	}
}

// buildTrainingSamples walks an asset's own price history, stepping every 5
// trading days, and for each step builds a feature vector (from a
// forecast-less WorldState so training never depends on a model it is
// itself producing) and forward-return labels read directly off the price
// series.
func (p *Pipeline) buildTrainingSamples(ctx context.Context, asset types.Asset) ([]forecast.Sample, error) {
	priceID, ok := crossAssetSeriesIDs[asset]
	if !ok {
		return nil, apperr.ValidationFailure("unknown asset " + string(asset))
	}
	price, err := p.st.LoadSeries(ctx, priceID, types.Date{}, farFuture)
	if err != nil {
		return nil, err
	}

	const step = 5
	var samples []forecast.Sample
	for i := 0; i < len(price.Points); i += step {
		base := price.Points[i]
		if base.Missing {
			continue
		}

		ws, err := p.buildWorldState(ctx, base.Date, worldStateOptions{persist: false, withForecast: false})
		if err != nil {
			continue
		}
		scoreSigned, _ := ws.MacroScores[asset].ScoreSigned.Float64()
		regimeLabel := p.regimeEngine.Update(asset, base.Date, scoreSigned, nil, 0).Dominant

		labels := map[types.Horizon]float64{}
		for h, days := range types.HorizonDays {
			j := i + days
			if j >= len(price.Points) || price.Points[j].Missing || base.Value <= 0 {
				continue
			}
			ret := (price.Points[j].Value - base.Value) / base.Value
			if series.IsFinite(ret) {
				labels[h] = ret
			}
		}
		if len(labels) == 0 {
			continue
		}

		samples = append(samples, forecast.Sample{
			Features: featureVector(ws, asset),
			Regime:   regimeLabel,
			Labels:   labels,
		})
	}
	return samples, nil
}
