// Package metrics provides Prometheus metrics for the VSD monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the service.
type Registry struct {
	// Field-bus metrics
	ConnectionUp    prometheus.Gauge
	ReconnectsTotal prometheus.Counter
	ReadErrors      *prometheus.CounterVec
	ReadLatency     prometheus.Histogram

	// Cycle metrics
	CyclesTotal     prometheus.Counter
	CycleDuration   prometheus.Histogram
	ReadingsInvalid *prometheus.CounterVec

	// Persistence metrics
	RowsPersisted *prometheus.CounterVec
	PersistErrors *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	return &Registry{
		ConnectionUp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsd",
			Subsystem: "fieldbus",
			Name:      "connection_up",
			Help:      "Whether the Modbus TCP session is established (1) or down (0)",
		}),
		ReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "vsd",
			Subsystem: "fieldbus",
			Name:      "reconnects_total",
			Help:      "Total number of field-bus reconnection attempts",
		}),
		ReadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsd",
			Subsystem: "fieldbus",
			Name:      "read_errors_total",
			Help:      "Total number of failed register reads",
		}, []string{"unit", "kind"}),
		ReadLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsd",
			Subsystem: "fieldbus",
			Name:      "read_latency_seconds",
			Help:      "Register read round-trip latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "vsd",
			Subsystem: "polling",
			Name:      "cycles_total",
			Help:      "Total number of completed polling cycles",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vsd",
			Subsystem: "polling",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one full fleet polling cycle",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ReadingsInvalid: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsd",
			Subsystem: "polling",
			Name:      "readings_invalid_total",
			Help:      "Total readings persisted as the invalid marker",
		}, []string{"metric"}),

		RowsPersisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsd",
			Subsystem: "storage",
			Name:      "rows_persisted_total",
			Help:      "Total rows appended per metric table",
		}, []string{"table"}),
		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsd",
			Subsystem: "storage",
			Name:      "persist_errors_total",
			Help:      "Total failed row appends per metric table",
		}, []string{"table"}),
	}
}
