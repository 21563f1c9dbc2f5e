package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics groups every counter/histogram the API server exposes on
// /metrics. Kept as one struct so Server only needs one field.
type metrics struct {
	scansTotal     *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	gradeHistogram *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		scansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "httpobservatory_scans_total",
			Help: "Total number of scans served, labeled by outcome.",
		}, []string{"outcome"}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "httpobservatory_scan_duration_seconds",
			Help:    "Time spent serving a scan request, cache hits included.",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "httpobservatory_cache_hits_total",
			Help: "Scan requests served from the cooldown cache without a retrieval.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "httpobservatory_cache_misses_total",
			Help: "Scan requests that triggered a fresh retrieval.",
		}),
		gradeHistogram: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "httpobservatory_grades_total",
			Help: "Distribution of letter grades returned to clients.",
		}, []string{"grade"}),
	}
}

func (m *metrics) observeScan(fromCache bool, grade string, outcome string, duration time.Duration) {
	m.scansTotal.WithLabelValues(outcome).Inc()
	m.scanDuration.Observe(duration.Seconds())
	if fromCache {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
	if grade != "" {
		m.gradeHistogram.WithLabelValues(grade).Inc()
	}
}
