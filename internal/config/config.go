// Package config loads the brain's layered configuration: built-in
// defaults, overridden by an optional YAML file, overridden by environment
// variables (BRAIN_*), via viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/regimebrain/brain/pkg/types"
)

// CalibrationConfig controls the Per-Horizon Calibrator.
type CalibrationConfig struct {
	Objective        types.Objective    `mapstructure:"objective"`
	PerHorizon       bool               `mapstructure:"perHorizon"`
	AsOf             bool               `mapstructure:"asOf"`
	SearchMethod     types.SearchMethod `mapstructure:"searchMethod"`
	Trials           int                `mapstructure:"trials"`
	Seed             uint32             `mapstructure:"seed"`
	SumWeights       float64            `mapstructure:"sumWeights"`
	MaxWeight        float64            `mapstructure:"maxWeight"`
	MinWeight        float64            `mapstructure:"minWeight"`
	StepDays         int                `mapstructure:"stepDays"`
	LagGrid          []int              `mapstructure:"lagGrid"`
}

// DefaultCalibrationConfig returns the baseline calibration defaults.
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		Objective:    types.ObjectiveHitRate,
		PerHorizon:   true,
		AsOf:         true,
		SearchMethod: types.SearchRandom,
		Trials:       500,
		Seed:         42,
		SumWeights:   1.0,
		MaxWeight:    0.45,
		MinWeight:    0.03,
		StepDays:     14,
		LagGrid:      []int{10, 30, 60, 90, 120, 180},
	}
}

// ForecasterConfig controls the Quantile MoE Forecaster.
type ForecasterConfig struct {
	Horizons           []types.Horizon `mapstructure:"horizons"`
	Quantiles          []types.Quantile `mapstructure:"quantiles"`
	MinSamplesPerExpert int            `mapstructure:"minSamplesPerExpert"`
	Smoothing          float64         `mapstructure:"smoothing"`
	Epochs             int             `mapstructure:"epochs"`
	LearningRate0      float64         `mapstructure:"learningRate0"`
	LRDecay            float64         `mapstructure:"lrDecay"`
	Seed               uint32          `mapstructure:"seed"`
}

func DefaultForecasterConfig() ForecasterConfig {
	return ForecasterConfig{
		Horizons:            []types.Horizon{types.Horizon30D, types.Horizon90D, types.Horizon180D, types.Horizon365D},
		Quantiles:           []types.Quantile{types.Q05, types.Q50, types.Q95},
		MinSamplesPerExpert: 60,
		Smoothing:           0.25,
		Epochs:              200,
		LearningRate0:       0.01,
		LRDecay:             0.01,
		Seed:                1337,
	}
}

// GuardConfig controls the Crisis Guard thresholds.
type GuardConfig struct {
	WarnCredit   float64 `mapstructure:"warnCredit"`
	CrisisCredit float64 `mapstructure:"crisisCredit"`
	BlockCredit  float64 `mapstructure:"blockCredit"`
	WarnVIX      float64 `mapstructure:"warnVix"`
	CrisisVIX    float64 `mapstructure:"crisisVix"`
	BlockVIX     float64 `mapstructure:"blockVix"`
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		WarnCredit:   0.4,
		CrisisCredit: 0.7,
		BlockCredit:  0.9,
		WarnVIX:      25,
		CrisisVIX:    35,
		BlockVIX:     45,
	}
}

// BrainConfig controls scenario/directive thresholds.
type BrainConfig struct {
	TailRiskThreshold90D float64 `mapstructure:"tailRiskThreshold90d"`
	GuardTailRiskFloor   float64 `mapstructure:"guardTailRiskFloor"`
	RiskStressProbFloor  float64 `mapstructure:"riskStressProbFloor"`
	StressProbCap        float64 `mapstructure:"stressProbCap"`
}

func DefaultBrainConfig() BrainConfig {
	return BrainConfig{
		TailRiskThreshold90D: 0.25,
		GuardTailRiskFloor:   0.15,
		RiskStressProbFloor:  0.35,
		StressProbCap:        0.70,
	}
}

// OptimizerConfig controls the Capital Allocation Optimizer.
type OptimizerConfig struct {
	MaxDeltaBase      float64 `mapstructure:"maxDeltaBase"`
	MaxDeltaDefensive float64 `mapstructure:"maxDeltaDefensive"`
	MaxDeltaTail      float64 `mapstructure:"maxDeltaTail"`
	K                 float64 `mapstructure:"k"`
	WReturn           float64 `mapstructure:"wReturn"`
	WTail             float64 `mapstructure:"wTail"`
	WCorr             float64 `mapstructure:"wCorr"`
	WGuard            float64 `mapstructure:"wGuard"`
	CashFloor         float64 `mapstructure:"cashFloor"`
}

func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxDeltaBase:      0.15,
		MaxDeltaDefensive: 0.08,
		MaxDeltaTail:      0.10,
		K:                 0.5,
		WReturn:           1.0,
		WTail:             1.0,
		WCorr:             0.5,
		WGuard:            0.25,
		CashFloor:         0.05,
	}
}

// AllocationConfig controls the Allocation Policy cascade.
type AllocationConfig struct {
	MinCashFloor float64 `mapstructure:"minCashFloor"`
	DXYSignalMul float64 `mapstructure:"dxySignalMul"`
}

func DefaultAllocationConfig() AllocationConfig {
	return AllocationConfig{
		MinCashFloor: 0.05,
		DXYSignalMul: 0.6,
	}
}

// PromotionConfig controls the Promotion Gate thresholds.
type PromotionConfig struct {
	MinDeltaHitRateAnyPP    float64 `mapstructure:"minDeltaHitRateAnyPp"`
	MinDeltaHitRateAllPP    float64 `mapstructure:"minDeltaHitRateAllPp"`
	MaxFlipRatePerYear      float64 `mapstructure:"maxFlipRatePerYear"`
	MaxOverrideIntensityNorm float64 `mapstructure:"maxOverrideIntensityNorm"`
	MaxOverrideIntensityTail float64 `mapstructure:"maxOverrideIntensityTail"`
	MaxDataFreshnessDays    int     `mapstructure:"maxDataFreshnessDays"`
}

func DefaultPromotionConfig() PromotionConfig {
	return PromotionConfig{
		MinDeltaHitRateAnyPP:     2.0,
		MinDeltaHitRateAllPP:     -1.0,
		MaxFlipRatePerYear:       6.0,
		MaxOverrideIntensityNorm: 0.35,
		MaxOverrideIntensityTail: 0.60,
		MaxDataFreshnessDays:     7,
	}
}

// SimulatorConfig controls the Walk-Forward Simulator.
type SimulatorConfig struct {
	StepDays int             `mapstructure:"stepDays"`
	Horizons []types.Horizon `mapstructure:"horizons"`
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		StepDays: 14,
		Horizons: []types.Horizon{types.Horizon30D, types.Horizon90D},
	}
}

// ServerConfig controls the thin HTTP surface.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	FetchTimeoutMS int    `mapstructure:"fetchTimeoutMs"`
	CascadeTimeoutMS int  `mapstructure:"cascadeTimeoutMs"`
	MetricsAddr    string `mapstructure:"metricsAddr"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:             ":8080",
		FetchTimeoutMS:   10_000,
		CascadeTimeoutMS: 120_000,
		MetricsAddr:      ":9090",
	}
}

// WorkerPoolConfig controls bounded-concurrency fan-out.
type WorkerPoolConfig struct {
	NumWorkers int `mapstructure:"numWorkers"`
	QueueSize  int `mapstructure:"queueSize"`
}

func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{NumWorkers: 0, QueueSize: 256} // 0 => runtime.NumCPU()
}

// Config is the root configuration object.
type Config struct {
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Forecaster  ForecasterConfig  `mapstructure:"forecaster"`
	Guard       GuardConfig       `mapstructure:"guard"`
	Brain       BrainConfig       `mapstructure:"brain"`
	Optimizer   OptimizerConfig   `mapstructure:"optimizer"`
	Allocation  AllocationConfig  `mapstructure:"allocation"`
	Promotion   PromotionConfig   `mapstructure:"promotion"`
	Simulator   SimulatorConfig   `mapstructure:"simulator"`
	Server      ServerConfig      `mapstructure:"server"`
	WorkerPool  WorkerPoolConfig  `mapstructure:"workerPool"`
	DataDir     string            `mapstructure:"dataDir"`
}

func Default() Config {
	return Config{
		Calibration: DefaultCalibrationConfig(),
		Forecaster:  DefaultForecasterConfig(),
		Guard:       DefaultGuardConfig(),
		Brain:       DefaultBrainConfig(),
		Optimizer:   DefaultOptimizerConfig(),
		Allocation:  DefaultAllocationConfig(),
		Promotion:   DefaultPromotionConfig(),
		Simulator:   DefaultSimulatorConfig(),
		Server:      DefaultServerConfig(),
		WorkerPool:  DefaultWorkerPoolConfig(),
		DataDir:     "./data",
	}
}

// Load builds a Config from defaults, an optional file at path (if
// non-empty and present), and BRAIN_-prefixed environment variables, in
// that precedence order (env wins).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	setDefaults(v, def)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("loading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every default leaf with viper so AutomaticEnv and
// partial YAML overrides merge correctly instead of zeroing unset fields.
func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("calibration.objective", def.Calibration.Objective)
	v.SetDefault("calibration.perHorizon", def.Calibration.PerHorizon)
	v.SetDefault("calibration.asOf", def.Calibration.AsOf)
	v.SetDefault("calibration.searchMethod", def.Calibration.SearchMethod)
	v.SetDefault("calibration.trials", def.Calibration.Trials)
	v.SetDefault("calibration.seed", def.Calibration.Seed)
	v.SetDefault("calibration.sumWeights", def.Calibration.SumWeights)
	v.SetDefault("calibration.maxWeight", def.Calibration.MaxWeight)
	v.SetDefault("calibration.minWeight", def.Calibration.MinWeight)
	v.SetDefault("calibration.stepDays", def.Calibration.StepDays)
	v.SetDefault("calibration.lagGrid", def.Calibration.LagGrid)

	v.SetDefault("forecaster.horizons", def.Forecaster.Horizons)
	v.SetDefault("forecaster.quantiles", def.Forecaster.Quantiles)
	v.SetDefault("forecaster.minSamplesPerExpert", def.Forecaster.MinSamplesPerExpert)
	v.SetDefault("forecaster.smoothing", def.Forecaster.Smoothing)
	v.SetDefault("forecaster.epochs", def.Forecaster.Epochs)
	v.SetDefault("forecaster.learningRate0", def.Forecaster.LearningRate0)
	v.SetDefault("forecaster.lrDecay", def.Forecaster.LRDecay)
	v.SetDefault("forecaster.seed", def.Forecaster.Seed)

	v.SetDefault("guard.warnCredit", def.Guard.WarnCredit)
	v.SetDefault("guard.crisisCredit", def.Guard.CrisisCredit)
	v.SetDefault("guard.blockCredit", def.Guard.BlockCredit)
	v.SetDefault("guard.warnVix", def.Guard.WarnVIX)
	v.SetDefault("guard.crisisVix", def.Guard.CrisisVIX)
	v.SetDefault("guard.blockVix", def.Guard.BlockVIX)

	v.SetDefault("brain.tailRiskThreshold90d", def.Brain.TailRiskThreshold90D)
	v.SetDefault("brain.guardTailRiskFloor", def.Brain.GuardTailRiskFloor)
	v.SetDefault("brain.riskStressProbFloor", def.Brain.RiskStressProbFloor)
	v.SetDefault("brain.stressProbCap", def.Brain.StressProbCap)

	v.SetDefault("optimizer.maxDeltaBase", def.Optimizer.MaxDeltaBase)
	v.SetDefault("optimizer.maxDeltaDefensive", def.Optimizer.MaxDeltaDefensive)
	v.SetDefault("optimizer.maxDeltaTail", def.Optimizer.MaxDeltaTail)
	v.SetDefault("optimizer.k", def.Optimizer.K)
	v.SetDefault("optimizer.wReturn", def.Optimizer.WReturn)
	v.SetDefault("optimizer.wTail", def.Optimizer.WTail)
	v.SetDefault("optimizer.wCorr", def.Optimizer.WCorr)
	v.SetDefault("optimizer.wGuard", def.Optimizer.WGuard)
	v.SetDefault("optimizer.cashFloor", def.Optimizer.CashFloor)

	v.SetDefault("allocation.minCashFloor", def.Allocation.MinCashFloor)
	v.SetDefault("allocation.dxySignalMul", def.Allocation.DXYSignalMul)

	v.SetDefault("promotion.minDeltaHitRateAnyPp", def.Promotion.MinDeltaHitRateAnyPP)
	v.SetDefault("promotion.minDeltaHitRateAllPp", def.Promotion.MinDeltaHitRateAllPP)
	v.SetDefault("promotion.maxFlipRatePerYear", def.Promotion.MaxFlipRatePerYear)
	v.SetDefault("promotion.maxOverrideIntensityNorm", def.Promotion.MaxOverrideIntensityNorm)
	v.SetDefault("promotion.maxOverrideIntensityTail", def.Promotion.MaxOverrideIntensityTail)
	v.SetDefault("promotion.maxDataFreshnessDays", def.Promotion.MaxDataFreshnessDays)

	v.SetDefault("simulator.stepDays", def.Simulator.StepDays)
	v.SetDefault("simulator.horizons", def.Simulator.Horizons)

	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.fetchTimeoutMs", def.Server.FetchTimeoutMS)
	v.SetDefault("server.cascadeTimeoutMs", def.Server.CascadeTimeoutMS)
	v.SetDefault("server.metricsAddr", def.Server.MetricsAddr)

	v.SetDefault("workerPool.numWorkers", def.WorkerPool.NumWorkers)
	v.SetDefault("workerPool.queueSize", def.WorkerPool.QueueSize)

	v.SetDefault("dataDir", def.DataDir)
}
