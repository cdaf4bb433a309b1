package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	BillingsCreated    prometheus.Counter
	ReportsGenerated   prometheus.Counter
	SIDAllocations     prometheus.Counter
	SIDFallbacks       prometheus.Counter
	RoutingTransitions *prometheus.CounterVec
	NotificationsSent  prometheus.Counter
	UnmatchedTests     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers metrics on a specific registerer; tests pass a fresh
// registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BillingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "avini_billings_created_total",
			Help: "Total number of billing records created",
		}),
		ReportsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "avini_billing_reports_generated_total",
			Help: "Total number of billing reports generated",
		}),
		SIDAllocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "avini_sid_allocations_total",
			Help: "Total number of SID numbers allocated",
		}),
		SIDFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "avini_sid_fallbacks_total",
			Help: "Total number of TMP fallback SID numbers handed out",
		}),
		RoutingTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "avini_routing_transitions_total",
			Help: "Total number of sample routing transitions by action",
		}, []string{"action"}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "avini_notifications_enqueued_total",
			Help: "Total number of notifications enqueued",
		}),
		UnmatchedTests: factory.NewCounter(prometheus.CounterOpts{
			Name: "avini_unmatched_tests_total",
			Help: "Total number of billing line items that failed test master matching",
		}),
	}
}
