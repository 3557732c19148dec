package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault security core.
type Metrics struct {
	TokensIssued       prometheus.Counter
	TokenRefreshes     prometheus.Counter
	TokensRevoked      *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	ReuseDetections    prometheus.Counter

	ActiveSessions     prometheus.Gauge
	SessionsTerminated *prometheus.CounterVec

	AuthFailures prometheus.Counter
	MFAFailures  prometheus.Counter
	MFARateLimit prometheus.Counter

	SecurityEvents *prometheus.CounterVec
	RuleTriggers   *prometheus.CounterVec

	AuditAppends     prometheus.Counter
	AuditChainBreaks prometheus.Counter

	EndpointLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_tokens_issued_total",
			Help: "Total number of access/refresh token pairs issued",
		}),
		TokenRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_token_refreshes_total",
			Help: "Total number of successful refresh rotations",
		}),
		TokensRevoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passq_tokens_revoked_total",
			Help: "Total number of tokens revoked, labeled by reason",
		}, []string{"reason"}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passq_token_validation_failures_total",
			Help: "Total number of token validation failures, labeled by kind",
		}, []string{"kind"}),
		ReuseDetections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_token_reuse_detected_total",
			Help: "Total number of refresh token reuse detections",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "passq_active_sessions",
			Help: "Current number of active sessions",
		}),
		SessionsTerminated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passq_sessions_terminated_total",
			Help: "Total number of sessions terminated, labeled by reason",
		}, []string{"reason"}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		MFAFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_mfa_failures_total",
			Help: "Total number of failed MFA verifications",
		}),
		MFARateLimit: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_mfa_rate_limited_total",
			Help: "Total number of MFA verifications rejected by rate limiting",
		}),
		SecurityEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passq_security_events_total",
			Help: "Total number of security events raised, labeled by type and severity",
		}, []string{"type", "severity"}),
		RuleTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "passq_monitoring_rule_triggers_total",
			Help: "Total number of monitoring rule matches, labeled by rule name",
		}, []string{"rule"}),
		AuditAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_audit_appends_total",
			Help: "Total number of audit ledger entries appended",
		}),
		AuditChainBreaks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "passq_audit_chain_breaks_total",
			Help: "Total number of detected audit chain integrity breaks",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passq_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) IncrementTokensIssued() {
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementTokenRefreshes() {
	m.TokenRefreshes.Inc()
}

func (m *Metrics) IncrementTokensRevoked(reason string) {
	m.TokensRevoked.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementValidationFailures(kind string) {
	m.ValidationFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementReuseDetections() {
	m.ReuseDetections.Inc()
}

func (m *Metrics) IncrementActiveSessions(count int) {
	m.ActiveSessions.Add(float64(count))
}

func (m *Metrics) DecrementActiveSessions(count int) {
	m.ActiveSessions.Sub(float64(count))
}

func (m *Metrics) IncrementSessionsTerminated(reason string) {
	m.SessionsTerminated.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementAuthFailures() {
	m.AuthFailures.Inc()
}

func (m *Metrics) IncrementMFAFailures() {
	m.MFAFailures.Inc()
}

func (m *Metrics) IncrementMFARateLimited() {
	m.MFARateLimit.Inc()
}

func (m *Metrics) IncrementSecurityEvents(eventType, severity string) {
	m.SecurityEvents.WithLabelValues(eventType, severity).Inc()
}

func (m *Metrics) IncrementRuleTriggers(rule string) {
	m.RuleTriggers.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncrementAuditAppends() {
	m.AuditAppends.Inc()
}

func (m *Metrics) IncrementAuditChainBreaks() {
	m.AuditChainBreaks.Inc()
}

// ObserveEndpointLatency records the latency for a given endpoint.
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}
