package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCoordinatorMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCoordinatorMetrics(reg)

	m.ObserveCascade("past", "success")
	m.AddCascadeOrders("transferred", 3)
	m.AddCascadeOrders("transferred", 0)
	m.IncLedgerEntry("advance")
	m.IncLedgerRejection("insufficient_balance")
	m.IncLeaveRequest("granted")
	m.IncRelayEvent("trip_type_changed", "")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "trip_cascade_orders_updated_total", "status", "transferred"); err != nil || got != 3 {
		t.Fatalf("expected 3 transferred orders, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "trip_cascade_runs_total", "outcome", "success"); err != nil || got != 1 {
		t.Fatalf("expected 1 cascade run, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_relay_events_total", "outcome", "unknown"); err != nil || got != 1 {
		t.Fatalf("empty outcome should normalize to unknown, got %f err=%v", got, err)
	}
}

func TestCoordinatorMetricsNilSafe(t *testing.T) {
	var m *CoordinatorMetrics
	m.ObserveCascade("active", "success")
	m.IncLedgerEntry("advance")

	noop := NewCoordinatorMetrics(nil)
	noop.IncLeaveRequest("granted")
	noop.IncRelayEvent("trip_type_changed", "completed")
}
