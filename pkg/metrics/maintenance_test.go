package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMaintenanceMetricsExportsJobsAndInventory(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMaintenanceMetrics(reg)
	m.ObserveJob("inventory-reconcile", 40*time.Millisecond, true)
	m.ObserveJob("inventory-reconcile", 10*time.Millisecond, false)
	m.ObserveJob("", time.Millisecond, true)
	m.SetDrift(3)
	m.AddRepaired(2)
	m.AddRepaired(-1)
	m.AddPruned(5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "maintenance_job_runs_total", "result", "failed"); err != nil {
		t.Fatalf("fetch runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected one failed run, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "maintenance_job_duration_seconds", "job", "unknown"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration recorded for unnamed job, got %f", got)
	}

	drift := findMetricFamily(mfs, "inventory_quantity_drift_items")
	if drift == nil || drift.GetMetric()[0].GetGauge().GetValue() != 3 {
		t.Fatalf("expected drift gauge 3")
	}
	repaired := findMetricFamily(mfs, "inventory_availability_repairs_total")
	if repaired == nil || repaired.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected 2 repairs, negative adds ignored")
	}
	pruned := findMetricFamily(mfs, "outbox_events_pruned_total")
	if pruned == nil || pruned.GetMetric()[0].GetCounter().GetValue() != 5 {
		t.Fatalf("expected 5 pruned rows")
	}
}

func TestNilMaintenanceMetricsIsNoop(t *testing.T) {
	var m *MaintenanceMetrics
	m.ObserveJob("x", time.Second, true)
	m.SetDrift(1)
	m.AddRepaired(1)
	m.AddPruned(1)

	NewMaintenanceMetrics(nil).ObserveJob("x", time.Second, false)
}
