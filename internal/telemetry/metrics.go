package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics — Prometheus метрики планировщика.
type SchedulerMetrics struct {
	WorkersConnected     prometheus.Gauge
	WorkersRemoved       *prometheus.CounterVec // reason: removed | timeout
	ActionsAdded         prometheus.Counter
	OperationsDispatched prometheus.Counter
	OperationsCompleted  *prometheus.CounterVec // stage
	OperationsRequeued   prometheus.Counter
	RequeuesPending      prometheus.Gauge
	OwnershipViolations  prometheus.Counter
	MatchDuration        prometheus.Histogram
}

// NewSchedulerMetrics регистрирует метрики в reg.
// Если reg == nil, используется отдельный registry (удобно в тестах).
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &SchedulerMetrics{
		WorkersConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "foreman_workers_connected",
			Help: "Number of workers currently registered with the scheduler",
		}),
		WorkersRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foreman_workers_removed_total",
			Help: "Workers removed from the scheduler",
		}, []string{"reason"}),
		ActionsAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "foreman_actions_added_total",
			Help: "Actions queued by clients",
		}),
		OperationsDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "foreman_operations_dispatched_total",
			Help: "Operations assigned to workers",
		}),
		OperationsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "foreman_operations_completed_total",
			Help: "Operations finished by workers",
		}, []string{"stage"}),
		OperationsRequeued: f.NewCounter(prometheus.CounterOpts{
			Name: "foreman_operations_requeued_total",
			Help: "Operations returned to the queue after worker loss",
		}),
		RequeuesPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "foreman_requeues_pending",
			Help: "Operations of removed workers waiting for a requeue retry",
		}),
		OwnershipViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "foreman_ownership_violations_total",
			Help: "Rejected updates from workers that do not own the operation",
		}),
		MatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "foreman_match_duration_seconds",
			Help:    "Duration of one dispatch pass",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
