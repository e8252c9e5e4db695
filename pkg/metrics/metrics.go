package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records payment notification processing outcomes.
type WebhookMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_webhook_duration_seconds",
		Help:    "Duration of payment notification handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_outcomes_total",
		Help: "Payment notification outcomes by result.",
	}, []string{"gateway", "outcome"})
	reg.MustRegister(duration, outcomes)
	return &WebhookMetrics{duration: duration, outcomes: outcomes}
}

// ObserveDuration records how long a notification took to process.
func (w *WebhookMetrics) ObserveDuration(gateway string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(gateway)).Observe(duration.Seconds())
}

// IncOutcome counts one notification by its result (ok, invalid_signature,
// amount_mismatch, order_not_found, forbidden_ip, error).
func (w *WebhookMetrics) IncOutcome(gateway, outcome string) {
	if w == nil || w.outcomes == nil {
		return
	}
	w.outcomes.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}

// CourierMetrics records calls against courier provider APIs.
type CourierMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCourierMetrics registers the courier metrics on the provided registerer.
func NewCourierMetrics(reg prometheus.Registerer) *CourierMetrics {
	if reg == nil {
		return &CourierMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courier_call_duration_seconds",
		Help:    "Duration of courier API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_call_success_total",
		Help: "Successful courier API calls.",
	}, []string{"provider", "operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_call_failure_total",
		Help: "Failed courier API calls.",
	}, []string{"provider", "operation"})
	reg.MustRegister(duration, success, failure)
	return &CourierMetrics{duration: duration, success: success, failure: failure}
}

// ObserveCall records one courier API call and its outcome.
func (c *CourierMetrics) ObserveCall(provider, operation string, duration time.Duration, err error) {
	if c == nil || c.duration == nil {
		return
	}
	provider = normalizeLabel(provider)
	operation = normalizeLabel(operation)
	c.duration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	if err != nil {
		c.failure.WithLabelValues(provider, operation).Inc()
		return
	}
	c.success.WithLabelValues(provider, operation).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
