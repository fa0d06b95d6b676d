package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver implements Observer using Prometheus metrics.
// Investor names are deliberately not used as labels.
//
// Example:
//
//	observer := metrics.NewPrometheusObserver("dossier", prometheus.DefaultRegisterer)
type PrometheusObserver struct {
	cacheLookups    *prometheus.CounterVec
	compiles        *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
}

// NewPrometheusObserver creates a Prometheus observer with the given namespace.
// Metrics are named "{namespace}_store_cache_lookups_total",
// "{namespace}_assembly_compiles_total" and
// "{namespace}_assembly_compile_duration_seconds".
func NewPrometheusObserver(namespace string, registerer prometheus.Registerer) *PrometheusObserver {
	if namespace == "" {
		namespace = "dossier"
	}

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_lookups_total",
			Help:      "Memoized store lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	compiles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assembly",
			Name:      "compiles_total",
			Help:      "Compile requests by outcome",
		},
		[]string{"outcome"},
	)

	compileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assembly",
			Name:      "compile_duration_seconds",
			Help:      "Duration of compile requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	registerer.MustRegister(cacheLookups, compiles, compileDuration)

	return &PrometheusObserver{
		cacheLookups:    cacheLookups,
		compiles:        compiles,
		compileDuration: compileDuration,
	}
}

func (o *PrometheusObserver) OnCacheLookup(ctx context.Context, event *CacheLookupEvent) {
	result := "miss"
	if event.Hit {
		result = "hit"
	}
	o.cacheLookups.WithLabelValues(event.Cache, result).Inc()
}

func (o *PrometheusObserver) OnCompile(ctx context.Context, event *CompileEvent) {
	outcome := event.Outcome
	if event.Error != nil {
		outcome = OutcomeFailed
	}
	o.compiles.WithLabelValues(outcome).Inc()
	o.compileDuration.WithLabelValues(outcome).Observe(event.Duration.Seconds())
}

var _ Observer = (*PrometheusObserver)(nil)
