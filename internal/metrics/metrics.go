// Package metrics holds the Prometheus collectors of the cost service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Freezes counts successful freezes by kind ("batch" or "batch_set").
	Freezes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchcost_freezes_total",
		Help: "Total successful freezes by kind",
	}, []string{"kind"})

	// Conflicts counts optimistic lock failures by entity.
	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchcost_version_conflicts_total",
		Help: "Total stale-version writes rejected by entity",
	}, []string{"entity"})

	// Recalculations counts batch recalculations by result ("written" or "unchanged").
	Recalculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchcost_recalculations_total",
		Help: "Total batch recalculations by result",
	}, []string{"result"})

	// GeometryDrift counts effective-cost reads that raised GEOMETRY_CHANGED.
	GeometryDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchcost_geometry_drift_total",
		Help: "Total frozen cost reads whose part geometry changed after the freeze",
	})

	// CalculationDuration tracks how long a full batch price calculation takes.
	CalculationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchcost_calculation_duration_seconds",
		Help:    "Batch price calculation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
	})
)

// Conflict records a rejected stale write.
func Conflict(entity string) {
	Conflicts.WithLabelValues(entity).Inc()
}
