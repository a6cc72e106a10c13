// Package metrics exposes Prometheus gauges and counters for pool
// occupancy, the pre-load planner, and buffer depth.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the collectors zygoted registers.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	ContainersActive    *prometheus.GaugeVec // pool label: free|busy|prewarmed|prewarm_starting|zygote
	ColdStartsTotal     prometheus.Counter
	WarmStartsTotal     prometheus.Counter
	PreloadsTotal       prometheus.Counter
	OffloadsTotal       prometheus.Counter
	EvictionsTotal      prometheus.Counter
	BinPackingMisses    prometheus.Counter
	RunBufferDepth      prometheus.Gauge
	ActiveMemoryMB      *prometheus.GaugeVec // pool label: active|idle|prewarm
	PreloadTableSize    prometheus.Gauge
	FleetPublishErrors  prometheus.Counter
}

var promMetrics *PrometheusMetrics

// InitPrometheus constructs the registry and all collectors under namespace.
func InitPrometheus(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		ContainersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "containers_active",
			Help:      "Number of containers currently in each pool.",
		}, []string{"pool"}),

		ColdStartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cold_starts_total",
			Help:      "Total number of cold-start container creations.",
		}),

		WarmStartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warm_starts_total",
			Help:      "Total number of activations served by an already-warm container.",
		}),

		PreloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preloads_total",
			Help:      "Total number of models placed onto a container by the bin-packing planner.",
		}),

		OffloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offloads_total",
			Help:      "Total number of models evicted from a container's resident set.",
		}),

		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_evictions_total",
			Help:      "Total number of containers evicted to free memory for a new placement.",
		}),

		BinPackingMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bin_packing_misses_total",
			Help:      "Total number of bin-packing attempts that found no fit.",
		}),

		RunBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_buffer_depth",
			Help:      "Current number of activations waiting in the pool's run buffer.",
		}),

		ActiveMemoryMB: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_mb",
			Help:      "Memory in megabytes committed to each pool.",
		}, []string{"pool"}),

		PreloadTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preload_table_size",
			Help:      "Number of containers with an entry in the pre-load table, including entries with no model.",
		}),

		FleetPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fleet_publish_errors_total",
			Help:      "Total number of failed fleet-state publish attempts.",
		}),
	}

	registry.MustRegister(
		pm.ContainersActive,
		pm.ColdStartsTotal,
		pm.WarmStartsTotal,
		pm.PreloadsTotal,
		pm.OffloadsTotal,
		pm.EvictionsTotal,
		pm.BinPackingMisses,
		pm.RunBufferDepth,
		pm.ActiveMemoryMB,
		pm.PreloadTableSize,
		pm.FleetPublishErrors,
	)

	promMetrics = pm
	return pm
}

// Get returns the process-wide metrics instance, or nil if InitPrometheus
// was never called (metrics disabled).
func Get() *PrometheusMetrics {
	return promMetrics
}

// Handler returns the promhttp handler for mounting on the control server.
func Handler() http.Handler {
	if promMetrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}
