package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks activity record writes.
type Metrics struct {
	RecordsWritten  *prometheus.CounterVec
	FanoutFailures  prometheus.Counter
	LoggingFailures prometheus.Counter
	StreamFailures  prometheus.Counter
}

// NewMetrics registers activity metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardkeep_activity_records_written_total",
			Help: "Activity records persisted, by action and role (primary or fanout)",
		}, []string{"action", "role"}),
		FanoutFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardkeep_activity_fanout_failures_total",
			Help: "Fan-out records that failed to persist",
		}),
		LoggingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardkeep_activity_logging_failures_total",
			Help: "Activity logging calls that failed before the primary record was written",
		}),
		StreamFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardkeep_activity_stream_failures_total",
			Help: "Activity records that could not be streamed to the sink",
		}),
	}
}

func (m *Metrics) recordWritten(action Action, role string) {
	if m != nil {
		m.RecordsWritten.WithLabelValues(string(action), role).Inc()
	}
}

func (m *Metrics) fanoutFailed() {
	if m != nil {
		m.FanoutFailures.Inc()
	}
}

func (m *Metrics) loggingFailed() {
	if m != nil {
		m.LoggingFailures.Inc()
	}
}

func (m *Metrics) streamFailed() {
	if m != nil {
		m.StreamFailures.Inc()
	}
}
