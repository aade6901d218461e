package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	quotes         *prometheus.CounterVec
	quoteDuration  *prometheus.HistogramVec
	pathsEvaluated prometheus.Histogram
	cacheHits      *prometheus.CounterVec
}

// NewMetrics creates the router metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		quotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sor_quotes_total",
				Help: "Total number of quotes by outcome.",
			},
			[]string{"status"},
		),
		quoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sor_quote_duration_seconds",
				Help:    "Time spent producing a quote.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"swap_kind"},
		),
		pathsEvaluated: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sor_paths_evaluated",
				Help:    "Raw candidate paths enumerated per quote.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sor_path_cache_total",
				Help: "Candidate path cache lookups by result.",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.quotes, m.quoteDuration, m.pathsEvaluated, m.cacheHits)
	return m
}
