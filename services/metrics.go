package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-operation counters for the bounty program.
type Metrics struct {
	Invocations *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	Staked      prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg leaves them
// unregistered, which tests use to avoid the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountypool",
			Name:      "invocations_total",
			Help:      "Instruction invocations by operation and result code.",
		}, []string{"op", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bountypool",
			Name:      "invocation_seconds",
			Help:      "Time spent applying an instruction, including the ledger transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Staked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bountypool",
			Name:      "staked_units_total",
			Help:      "Stake units moved into task pots.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Invocations, m.Latency, m.Staked)
	}
	return m
}
