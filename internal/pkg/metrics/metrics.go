// Package metrics exposes Prometheus instrumentation for the submission
// core. All collectors are registered at package init and served through
// Handler on the HTTP router.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submission lifecycle metrics
	SubmissionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formbridge_submissions_created_total",
			Help: "Total number of submissions created by intake",
		},
		[]string{"intake"},
	)

	SubmissionsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formbridge_submissions_submitted_total",
			Help: "Total number of submissions submitted by intake",
		},
		[]string{"intake"},
	)

	SubmissionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formbridge_submissions_expired_total",
			Help: "Total number of submissions marked expired by the scheduler",
		},
	)

	ReviewDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formbridge_review_decisions_total",
			Help: "Total number of reviewer decisions by outcome",
		},
		[]string{"decision"},
	)

	// Webhook delivery metrics
	DeliveryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formbridge_delivery_attempts_total",
			Help: "Total number of webhook delivery attempts",
		},
	)

	DeliveriesSucceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formbridge_deliveries_succeeded_total",
			Help: "Total number of webhook deliveries that reached a 2xx response",
		},
	)

	DeliveriesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formbridge_deliveries_failed_total",
			Help: "Total number of webhook deliveries that exhausted their retries",
		},
	)

	PendingDeliveries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "formbridge_deliveries_pending",
			Help: "Number of deliveries currently pending or awaiting retry",
		},
	)
)

func init() {
	prometheus.MustRegister(SubmissionsCreated)
	prometheus.MustRegister(SubmissionsSubmitted)
	prometheus.MustRegister(SubmissionsExpired)
	prometheus.MustRegister(ReviewDecisions)
	prometheus.MustRegister(DeliveryAttempts)
	prometheus.MustRegister(DeliveriesSucceeded)
	prometheus.MustRegister(DeliveriesFailed)
	prometheus.MustRegister(PendingDeliveries)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
