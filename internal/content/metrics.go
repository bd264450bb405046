package content

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "content_cache_lookups_total",
		Help: "Hierarchy lookups by result (hit, miss)",
	}, []string{"result"})

	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "content_cache_store_errors_total",
		Help: "Cache store failures by operation",
	}, []string{"op"})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "content_hierarchy_build_duration_seconds",
		Help:    "Time spent loading and flattening a course graph",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "content_hierarchy_invalidations_total",
		Help: "Number of course hierarchies invalidated",
	})
)
