package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics records the behaviour of the sale engine.
type SaleMetrics struct {
	duration      *prometheus.HistogramVec
	operations    *prometheus.CounterVec
	compensations *prometheus.CounterVec
	casRetries    prometheus.Counter
	fuzzyMatches  prometheus.Counter
	outbox        *prometheus.CounterVec
}

// NewSaleMetrics registers the sale metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewSaleMetrics(reg prometheus.Registerer) *SaleMetrics {
	if reg == nil {
		return &SaleMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sale_operation_duration_seconds",
		Help:    "Duration of sale create/update/delete operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sale_operations_total",
		Help: "Sale operations by outcome code.",
	}, []string{"op", "outcome"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sale_compensations_total",
		Help: "Compensating inventory writes by result.",
	}, []string{"op", "result"})
	casRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_cas_retries_total",
		Help: "Inventory quantity updates retried after a concurrent write.",
	})
	fuzzyMatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stone_fuzzy_matches_total",
		Help: "Stone references resolved through the type and carat fallback.",
	})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox events handed to the broker by result.",
	}, []string{"result"})
	reg.MustRegister(duration, operations, compensations, casRetries, fuzzyMatches, outbox)
	return &SaleMetrics{
		duration:      duration,
		operations:    operations,
		compensations: compensations,
		casRetries:    casRetries,
		fuzzyMatches:  fuzzyMatches,
		outbox:        outbox,
	}
}

// ObserveOperation records one finished sale operation. outcome is "ok" or
// the error code that ended it.
func (m *SaleMetrics) ObserveOperation(op, outcome string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op = normalizeLabel(op)
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
	m.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
}

func (m *SaleMetrics) IncCompensation(op string, ok bool) {
	if m == nil || m.compensations == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(normalizeLabel(op), result).Inc()
}

func (m *SaleMetrics) IncCASRetry() {
	if m == nil || m.casRetries == nil {
		return
	}
	m.casRetries.Inc()
}

func (m *SaleMetrics) IncFuzzyMatch() {
	if m == nil || m.fuzzyMatches == nil {
		return
	}
	m.fuzzyMatches.Inc()
}

func (m *SaleMetrics) IncOutboxPublish(ok bool) {
	if m == nil || m.outbox == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.outbox.WithLabelValues(result).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
