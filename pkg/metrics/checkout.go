package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcome labels.
const (
	ResultSuccess      = "success"
	ResultValidation   = "validation"
	ResultOutOfStock   = "out_of_stock"
	ResultConflict     = "conflict"
	ResultInProgress   = "in_progress"
	ResultFailure      = "failure"
	ResultReserveRetry = "reserve_retry"
)

// CheckoutMetrics records checkout outcomes and latency.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	retries  prometheus.Counter
}

// NewCheckoutMetrics registers checkout metrics on reg. A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reserve_retries_total",
		Help: "Optimistic inventory reservations retried after a version conflict.",
	})
	reg.MustRegister(duration, outcomes, retries)
	return &CheckoutMetrics{duration: duration, outcomes: outcomes, retries: retries}
}

// Observe records one checkout attempt.
func (c *CheckoutMetrics) Observe(result string, elapsed time.Duration) {
	if c == nil || c.outcomes == nil {
		return
	}
	result = normalizeLabel(result)
	c.outcomes.WithLabelValues(result).Inc()
	c.duration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (c *CheckoutMetrics) IncReserveRetry() {
	if c == nil || c.retries == nil {
		return
	}
	c.retries.Inc()
}

// OrderTransitionMetrics counts order status transitions.
type OrderTransitionMetrics struct {
	transitions *prometheus.CounterVec
}

func NewOrderTransitionMetrics(reg prometheus.Registerer) *OrderTransitionMetrics {
	if reg == nil {
		return &OrderTransitionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order group status transitions by target status and result.",
	}, []string{"to", "result"})
	reg.MustRegister(transitions)
	return &OrderTransitionMetrics{transitions: transitions}
}

func (o *OrderTransitionMetrics) Inc(to, result string) {
	if o == nil || o.transitions == nil {
		return
	}
	o.transitions.WithLabelValues(normalizeLabel(to), normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
