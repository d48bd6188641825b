package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics records lending pool action activity.
type PoolMetrics struct {
	actions *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// Pool returns the lazily-initialised metrics registry used to record
// lending pool actions.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "actions_total",
				Help:      "Total pool actions segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendpool",
				Subsystem: "pool",
				Name:      "action_duration_seconds",
				Help:      "Latency distribution for pool actions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
		}
		prometheus.MustRegister(poolRegistry.actions, poolRegistry.latency)
	})
	return poolRegistry
}

// Observe records one completed action with its outcome and duration.
func (m *PoolMetrics) Observe(action string, err error, seconds float64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(seconds)
}
