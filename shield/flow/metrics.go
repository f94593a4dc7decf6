package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "cloak"
	subsystem        = "flow"
)

type Metrics struct {
	flows       *prometheus.CounterVec
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	proofTime   prometheus.Histogram
}

// NewMetrics registers the flow metrics with reg. A nil reg keeps them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		flows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Finished flows by operation, mode and outcome",
			},
			[]string{"operation", "mode", "outcome"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: subsystem,
				Name:      "transitions_total",
				Help:      "State transitions by target state",
			},
			[]string{"state"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Wall time of finished flows",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"operation", "mode"},
		),
		proofTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: subsystem,
				Name:      "proof_generation_seconds",
				Help:      "Time the prover reported for a proof",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
	}
}

func (m *Metrics) observeTransition(tr Transition) {
	m.transitions.WithLabelValues(string(tr.To)).Inc()
}

func (m *Metrics) observeRun(operation, mode, outcome string, elapsed time.Duration) {
	m.flows.WithLabelValues(operation, mode, outcome).Inc()
	m.duration.WithLabelValues(operation, mode).Observe(elapsed.Seconds())
}

func (m *Metrics) observeProof(d time.Duration) {
	m.proofTime.Observe(d.Seconds())
}
