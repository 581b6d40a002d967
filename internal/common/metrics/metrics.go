// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector of the process. It is constructed
// once by the entry point and passed to the components that record into it.
type Metrics struct {
	HandlerMessagesCompleted *prometheus.CounterVec
	HandlerMessagesFailed    *prometheus.CounterVec
	HandlerDuration          *prometheus.HistogramVec
	HandlersActive           *prometheus.GaugeVec

	BusDispositions *prometheus.CounterVec

	StatusTransitions      *prometheus.CounterVec
	CorrelationOutcomes    *prometheus.CounterVec
	CorrelationAmbiguous   prometheus.Counter
	RegistryRequests       *prometheus.CounterVec
	NotificationsPublished *prometheus.CounterVec

	ExpiryProcessed *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HandlerMessagesCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_handler_messages_completed_total",
				Help: "Total number of messages a handler processed without error",
			},
			[]string{"task_type"},
		),
		HandlerMessagesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_handler_messages_failed_total",
				Help: "Total number of messages a handler failed to process",
			},
			[]string{"task_type", "error_code"},
		),
		HandlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soknad_handler_duration_seconds",
				Help:    "Duration of message processing per handler in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_type"},
		),
		HandlersActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "soknad_handlers_active",
				Help: "Number of messages currently being processed per handler",
			},
			[]string{"task_type"},
		),
		BusDispositions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_bus_messages_total",
				Help: "Inbound messages by final disposition (ack, redeliver, drop, dead_letter)",
			},
			[]string{"disposition"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_status_transitions_total",
				Help: "Requested status transitions by target status and outcome",
			},
			[]string{"to", "outcome"},
		),
		CorrelationOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_correlation_outcomes_total",
				Help: "Order-line correlation results by outcome",
			},
			[]string{"outcome"},
		),
		CorrelationAmbiguous: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "soknad_correlation_ambiguous_total",
				Help: "Order lines matching more than one application on the declared decision date",
			},
		),
		RegistryRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_registry_requests_total",
				Help: "Decision registry verifications by result (exists, absent, cached, error)",
			},
			[]string{"result"},
		),
		NotificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_notifications_published_total",
				Help: "Outbound events published by event name",
			},
			[]string{"event"},
		),
		ExpiryProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soknad_expiry_processed_total",
				Help: "Applications considered by the expiry sweep by result",
			},
			[]string{"result"},
		),
	}
}

// NewUnregistered returns collectors registered on a private registry, for
// tests and tools that do not expose metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
