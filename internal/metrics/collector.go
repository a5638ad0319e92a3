// Package metrics provides internal metrics collection for the
// serving controller.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates prometheus metrics for the serving lifecycle.
type Collector struct {
	// creation path
	creationsTotal   *prometheus.CounterVec
	creationDuration *prometheus.HistogramVec
	deploySubmits    *prometheus.CounterVec

	// reconciler
	gcPassesTotal   prometheus.Counter
	gcPassDuration  prometheus.Histogram
	gcDeletions     *prometheus.CounterVec
	pendingObserved prometheus.Gauge
	evictionPool    prometheus.Gauge

	logger *zap.Logger
}

// Deletion reasons recorded by the reconciler.
const (
	ReasonOrphan  = "orphan"
	ReasonExpired = "expired"
	ReasonEvicted = "evicted"
)

// NewCollector creates a metrics collector under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.creationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serving_creations_total",
			Help:      "Total number of serving instance creation requests",
		},
		[]string{"status"},
	)

	c.creationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "serving_creation_duration_seconds",
			Help:      "Serving instance creation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)

	c.deploySubmits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serving_deploy_submissions_total",
			Help:      "Total number of workload submissions by outcome",
		},
		[]string{"outcome"},
	)

	c.gcPassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serving_gc_passes_total",
			Help:      "Total number of garbage collection passes",
		},
	)

	c.gcPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "serving_gc_pass_duration_seconds",
			Help:      "Garbage collection pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.gcDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serving_gc_deletions_total",
			Help:      "Total number of workloads deleted by the reconciler",
		},
		[]string{"reason"},
	)

	c.pendingObserved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "serving_pending_workloads",
			Help:      "Workloads observed without a schedulable pod in the last pass",
		},
	)

	c.evictionPool = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "serving_eviction_eligible_workloads",
			Help:      "Eviction-eligible workloads observed in the last pass",
		},
	)

	return c
}

// RecordCreation records one creation request and its duration.
func (c *Collector) RecordCreation(status string, duration time.Duration) {
	c.creationsTotal.WithLabelValues(status).Inc()
	c.creationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDeploySubmit records one workload submission outcome.
func (c *Collector) RecordDeploySubmit(outcome string) {
	c.deploySubmits.WithLabelValues(outcome).Inc()
}

// RecordGCPass records one completed reconciliation pass.
func (c *Collector) RecordGCPass(duration time.Duration, pending, eligible int) {
	c.gcPassesTotal.Inc()
	c.gcPassDuration.Observe(duration.Seconds())
	c.pendingObserved.Set(float64(pending))
	c.evictionPool.Set(float64(eligible))
}

// RecordGCDeletion records one workload deletion by reason.
func (c *Collector) RecordGCDeletion(reason string) {
	c.gcDeletions.WithLabelValues(reason).Inc()
}
