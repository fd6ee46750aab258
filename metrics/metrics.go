package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus series. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	transitions    *prometheus.CounterVec
	ledgerFailures *prometheus.CounterVec
	confirmLatency prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinchain_lot_transitions_total",
			Help: "Lot lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ledgerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinchain_ledger_failures_total",
			Help: "Failed ledger submissions by operation.",
		}, []string{"operation"}),
		confirmLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinchain_ledger_confirm_seconds",
			Help:    "Time from ledger submission to confirmed receipt.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

func (m *Metrics) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
	if outcome == "ledger_failed" {
		m.ledgerFailures.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) ObserveConfirmLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmLatency.Observe(d.Seconds())
}
