package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics wires the brain's operational counters/histograms into a
// prometheus.Registry. This is the first real use of client_golang in the
// lineage of this codebase; earlier go.mod declared it but never imported
// it.
type Metrics struct {
	Registry *prometheus.Registry

	DecisionLatency  prometheus.Histogram
	GatePass         prometheus.Counter
	GateFail         prometheus.Counter
	CalibrationTrial prometheus.Counter
	RegimeFlips      prometheus.Counter
	GuardEscalations *prometheus.CounterVec
}

// NewMetrics constructs and registers all brain metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		DecisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brain",
			Name:      "decision_latency_seconds",
			Help:      "Wall-clock latency of one full decision pipeline run.",
			Buckets:   prometheus.DefBuckets,
		}),
		GatePass: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "promotion_gate_pass_total",
			Help:      "Count of promotion gate evaluations that recommended promote.",
		}),
		GateFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "promotion_gate_fail_total",
			Help:      "Count of promotion gate evaluations that recommended review or reject.",
		}),
		CalibrationTrial: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "calibration_trials_total",
			Help:      "Count of calibrator trial vectors evaluated.",
		}),
		RegimeFlips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "regime_flips_total",
			Help:      "Count of dominant macro regime changes observed.",
		}),
		GuardEscalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brain",
			Name:      "guard_escalations_total",
			Help:      "Count of crisis guard level transitions, labeled by resulting level.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		m.DecisionLatency,
		m.GatePass,
		m.GateFail,
		m.CalibrationTrial,
		m.RegimeFlips,
		m.GuardEscalations,
	)
	return m
}
