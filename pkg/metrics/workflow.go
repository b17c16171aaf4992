package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics records inventory workflow activity.
type WorkflowMetrics struct {
	transitions *prometheus.CounterVec
	stock       *prometheus.GaugeVec
	units       *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow collectors on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbank_workflow_transitions_total",
		Help: "Workflow operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	stock := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bloodbank_inventory_units",
		Help: "Current inventory units per blood group.",
	}, []string{"blood_group"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbank_ledger_units_total",
		Help: "Units moved through the ledger by blood group and reason.",
	}, []string{"blood_group", "reason"})
	reg.MustRegister(transitions, stock, units)
	return &WorkflowMetrics{
		transitions: transitions,
		stock:       stock,
		units:       units,
	}
}

// ObserveOutcome increments the transition counter.
func (m *WorkflowMetrics) ObserveOutcome(operation, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// SetStock publishes the committed quantity of a blood group.
func (m *WorkflowMetrics) SetStock(bloodGroup string, quantity int) {
	if m == nil || m.stock == nil {
		return
	}
	m.stock.WithLabelValues(normalizeLabel(bloodGroup)).Set(float64(quantity))
}

// AddLedgerUnits records the absolute number of units moved by a ledger entry.
func (m *WorkflowMetrics) AddLedgerUnits(bloodGroup, reason string, delta int) {
	if m == nil || m.units == nil {
		return
	}
	if delta < 0 {
		delta = -delta
	}
	m.units.WithLabelValues(normalizeLabel(bloodGroup), normalizeLabel(reason)).Add(float64(delta))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
