package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoordinatorMetrics counts trip cascades, wallet reconciliation, leave
// requests and intent-log relay outcomes.
type CoordinatorMetrics struct {
	cascadeRuns      *prometheus.CounterVec
	cascadeOrders    *prometheus.CounterVec
	ledgerEntries    *prometheus.CounterVec
	ledgerRejections *prometheus.CounterVec
	leaveRequests    *prometheus.CounterVec
	relayEvents      *prometheus.CounterVec
}

// NewCoordinatorMetrics registers the coordinator metrics on reg. A nil
// registerer yields a no-op recorder.
func NewCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	if reg == nil {
		return &CoordinatorMetrics{}
	}
	m := &CoordinatorMetrics{
		cascadeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_cascade_runs_total",
			Help: "Order cascades executed after a trip type change.",
		}, []string{"trip_type", "outcome"}),
		cascadeOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_cascade_orders_updated_total",
			Help: "Orders moved to a new status by the cascade.",
		}, []string{"status"}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_entries_total",
			Help: "Wallet transaction entries appended by voucher reconciliation.",
		}, []string{"kind"}),
		ledgerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_reconcile_rejections_total",
			Help: "Voucher reconciliations rejected before any write.",
		}, []string{"reason"}),
		leaveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driver_leave_requests_total",
			Help: "Leave deduction requests by outcome.",
		}, []string{"outcome"}),
		relayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_relay_events_total",
			Help: "Intent events handled by the relay.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.cascadeRuns, m.cascadeOrders, m.ledgerEntries, m.ledgerRejections, m.leaveRequests, m.relayEvents)
	return m
}

func (m *CoordinatorMetrics) ObserveCascade(tripType, outcome string) {
	if m == nil || m.cascadeRuns == nil {
		return
	}
	m.cascadeRuns.WithLabelValues(normalizeLabel(tripType), normalizeLabel(outcome)).Inc()
}

func (m *CoordinatorMetrics) AddCascadeOrders(status string, n int) {
	if m == nil || m.cascadeOrders == nil || n <= 0 {
		return
	}
	m.cascadeOrders.WithLabelValues(normalizeLabel(status)).Add(float64(n))
}

func (m *CoordinatorMetrics) IncLedgerEntry(kind string) {
	if m == nil || m.ledgerEntries == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *CoordinatorMetrics) IncLedgerRejection(reason string) {
	if m == nil || m.ledgerRejections == nil {
		return
	}
	m.ledgerRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *CoordinatorMetrics) IncLeaveRequest(outcome string) {
	if m == nil || m.leaveRequests == nil {
		return
	}
	m.leaveRequests.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CoordinatorMetrics) IncRelayEvent(eventType, outcome string) {
	if m == nil || m.relayEvents == nil {
		return
	}
	m.relayEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
