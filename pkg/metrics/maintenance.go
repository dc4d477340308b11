package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics records the scheduled maintenance jobs.
type MaintenanceMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	drift    prometheus.Gauge
	repaired prometheus.Counter
	pruned   prometheus.Counter
}

// NewMaintenanceMetrics registers the maintenance metrics. A nil registerer
// yields a no-op recorder.
func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by result.",
	}, []string{"job", "result"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_quantity_drift_items",
		Help: "Items whose quantity disagreed with the movement ledger on the last check.",
	})
	repaired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_availability_repairs_total",
		Help: "Items whose availability flag was re-derived from quantity.",
	})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_pruned_total",
		Help: "Published outbox rows removed by retention.",
	})
	reg.MustRegister(duration, runs, drift, repaired, pruned)
	return &MaintenanceMetrics{
		duration: duration,
		runs:     runs,
		drift:    drift,
		repaired: repaired,
		pruned:   pruned,
	}
}

// ObserveJob records one execution of the named job.
func (m *MaintenanceMetrics) ObserveJob(job string, duration time.Duration, ok bool) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.runs.WithLabelValues(job, result).Inc()
}

func (m *MaintenanceMetrics) SetDrift(items int) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Set(float64(items))
}

func (m *MaintenanceMetrics) AddRepaired(n int64) {
	if m == nil || m.repaired == nil || n <= 0 {
		return
	}
	m.repaired.Add(float64(n))
}

func (m *MaintenanceMetrics) AddPruned(n int64) {
	if m == nil || m.pruned == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}
