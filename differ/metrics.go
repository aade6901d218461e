package differ

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	diffDuration *prometheus.HistogramVec
	poolChanges  *prometheus.CounterVec
}

// NewMetrics creates the differ metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sor_snapshot_diff_duration_seconds",
				Help:    "Time spent diffing two snapshots.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{},
		),
		poolChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sor_snapshot_pool_changes_total",
				Help: "Pools added, updated or removed between consecutive snapshots.",
			},
			[]string{"change"},
		),
	}
	reg.MustRegister(m.diffDuration, m.poolChanges)
	return m
}
