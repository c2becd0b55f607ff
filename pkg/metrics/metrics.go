package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics. Collectors are created unregistered
// so tests can build as many instances as they need; Register attaches one
// instance to a registry.
type Metrics struct {
	// Scheduling state machine
	TransitionsTotal *prometheus.CounterVec
	ConflictsTotal   prometheus.Counter

	// Notifications
	NotificationsCreated *prometheus.CounterVec

	// Moderation
	CascadeCancellations prometheus.Counter

	// Outbox delivery
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
}

func New(namespace string) *Metrics {
	return &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultation_transitions_total",
			Help:      "Total number of consultation state transitions attempted",
		}, []string{"action", "outcome"}),
		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultation_conflicts_total",
			Help:      "Total number of conditional updates lost to a concurrent writer",
		}),
		NotificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total number of notification records created",
		}, []string{"type"}),
		CascadeCancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_cancellations_total",
			Help:      "Total number of consultations cancelled by doctor-block cascades",
		}),
		OutboxEventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of outbox events published",
		}),
		OutboxEventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of outbox events that failed to publish",
		}),
		OutboxProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox batches",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.TransitionsTotal,
		m.ConflictsTotal,
		m.NotificationsCreated,
		m.CascadeCancellations,
		m.OutboxEventsProcessed,
		m.OutboxEventsFailed,
		m.OutboxProcessingLatency,
	)
}
