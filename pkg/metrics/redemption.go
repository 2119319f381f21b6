package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RedemptionMetrics records the redemption lifecycle and the provider calls behind it.
type RedemptionMetrics struct {
	started          *prometheus.CounterVec
	retried          *prometheus.CounterVec
	completed        *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
}

// NewRedemptionMetrics registers the redemption metrics on the provided registerer.
func NewRedemptionMetrics(reg prometheus.Registerer) *RedemptionMetrics {
	if reg == nil {
		return &RedemptionMetrics{}
	}
	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redemptions_started_total",
		Help: "Redemptions created with a leased voucher number.",
	}, []string{"service"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redemptions_retried_total",
		Help: "Retries that swapped in a new voucher number.",
	}, []string{"service"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redemptions_completed_total",
		Help: "OTP deliveries applied to a redemption.",
	}, []string{"service"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Inbound OTP webhook calls by outcome.",
	}, []string{"outcome"})
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_duration_seconds",
		Help:    "Latency of number provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action", "outcome"})
	reg.MustRegister(started, retried, completed, webhooks, providerDuration)
	return &RedemptionMetrics{
		started:          started,
		retried:          retried,
		completed:        completed,
		webhooks:         webhooks,
		providerDuration: providerDuration,
	}
}

func (m *RedemptionMetrics) IncStarted(service string) {
	if m == nil || m.started == nil {
		return
	}
	m.started.WithLabelValues(normalizeLabel(service)).Inc()
}

func (m *RedemptionMetrics) IncRetried(service string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(service)).Inc()
}

func (m *RedemptionMetrics) IncCompleted(service string) {
	if m == nil || m.completed == nil {
		return
	}
	m.completed.WithLabelValues(normalizeLabel(service)).Inc()
}

// IncWebhook counts one webhook call. Outcome is a short machine label such as "applied".
func (m *RedemptionMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveProvider records the latency of one provider action.
func (m *RedemptionMetrics) ObserveProvider(action, outcome string, duration time.Duration) {
	if m == nil || m.providerDuration == nil {
		return
	}
	m.providerDuration.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
