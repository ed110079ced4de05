package entities

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks dispatcher operations by entity, operation and outcome.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	AuditFailures     *prometheus.CounterVec
}

// NewMetrics registers entity metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardkeep_entity_operations_total",
			Help: "Entity operations by entity, operation and outcome",
		}, []string{"entity", "operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardkeep_entity_operation_duration_seconds",
			Help:    "Duration of entity operations including shaping",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"entity", "operation"}),
		AuditFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardkeep_entity_audit_failures_total",
			Help: "Mutations whose activity record could not be written",
		}, []string{"entity"}),
	}
}

func (m *Metrics) observe(entity, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(entity, op, outcome).Inc()
	m.OperationDuration.WithLabelValues(entity, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) auditFailed(entity string) {
	if m != nil {
		m.AuditFailures.WithLabelValues(entity).Inc()
	}
}
