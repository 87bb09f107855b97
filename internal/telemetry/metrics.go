package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Materna AI gateway.
type Metrics struct {
	RequestTotal           *prometheus.CounterVec
	RequestDurationMs      *prometheus.HistogramVec
	TokensTotal            *prometheus.CounterVec
	ProviderAttemptTotal   *prometheus.CounterVec
	BreakerTransitionTotal *prometheus.CounterVec
	RateLimitHitTotal      *prometheus.CounterVec
	CrisisRouteTotal       prometheus.Counter
	GuardrailActionTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "materna_request_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"route", "provider", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "materna_request_duration_ms",
			Help:    "Total request duration in milliseconds (including provider latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"route", "provider"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "materna_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"provider", "direction"}),

		ProviderAttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "materna_provider_attempt_total",
			Help: "Provider adapter attempts by outcome (success, failure, circuit_open).",
		}, []string{"provider", "outcome"}),

		BreakerTransitionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "materna_breaker_transition_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"provider", "to"}),

		RateLimitHitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "materna_rate_limit_hit_total",
			Help: "Requests rejected by the rate limiter, by decision source.",
		}, []string{"route", "source"}),

		CrisisRouteTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "materna_crisis_route_total",
			Help: "Requests routed to the safety tier by the crisis classifier.",
		}),

		GuardrailActionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "materna_guardrail_action_total",
			Help: "Guardrail outcomes (pass, blocked, reprocessed, fallback_message).",
		}, []string{"action"}),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(route, provider, status string, durationMs float64, usageIn, usageOut int) {
	m.RequestTotal.WithLabelValues(route, provider, status).Inc()
	m.RequestDurationMs.WithLabelValues(route, provider).Observe(durationMs)

	if usageIn > 0 {
		m.TokensTotal.WithLabelValues(provider, "input").Add(float64(usageIn))
	}
	if usageOut > 0 {
		m.TokensTotal.WithLabelValues(provider, "output").Add(float64(usageOut))
	}
}

func (m *Metrics) RecordProviderAttempt(provider, outcome string) {
	m.ProviderAttemptTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordBreakerTransition(provider, to string) {
	m.BreakerTransitionTotal.WithLabelValues(provider, to).Inc()
}

func (m *Metrics) RecordRateLimitHit(route, source string) {
	m.RateLimitHitTotal.WithLabelValues(route, source).Inc()
}

func (m *Metrics) RecordCrisisRoute() {
	m.CrisisRouteTotal.Inc()
}

func (m *Metrics) RecordGuardrailAction(action string) {
	m.GuardrailActionTotal.WithLabelValues(action).Inc()
}
