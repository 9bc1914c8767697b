// Package monitoring exposes Prometheus metrics for the auth core.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	SessionRestores      *prometheus.CounterVec
	SessionRestoreTime   prometheus.Histogram
	ActivationClaims     *prometheus.CounterVec
	IntegrationRefreshes *prometheus.CounterVec
	StateRejections      prometheus.Counter
}

// NewMetrics creates and registers the Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionRestores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goodhang_session_restores_total",
				Help: "Session restore attempts by resulting state.",
			},
			[]string{"result"},
		),
		SessionRestoreTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "goodhang_session_restore_seconds",
				Help:    "Latency of session restores.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ActivationClaims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goodhang_activation_claims_total",
				Help: "Activation key claim attempts by result.",
			},
			[]string{"result"},
		),
		IntegrationRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goodhang_integration_refreshes_total",
				Help: "Integration token refreshes by provider and result.",
			},
			[]string{"provider", "result"},
		),
		StateRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "goodhang_oauth_state_rejections_total",
				Help: "OAuth callbacks rejected for state mismatch or expiry.",
			},
		),
	}
}

// RecordSessionRestore records a restore outcome.
func (m *Metrics) RecordSessionRestore(result string, duration time.Duration) {
	m.SessionRestores.WithLabelValues(result).Inc()
	m.SessionRestoreTime.Observe(duration.Seconds())
}

// RecordActivationClaim records a claim outcome.
func (m *Metrics) RecordActivationClaim(result string) {
	m.ActivationClaims.WithLabelValues(result).Inc()
}

// RecordIntegrationRefresh records a token refresh outcome.
func (m *Metrics) RecordIntegrationRefresh(provider, result string) {
	m.IntegrationRefreshes.WithLabelValues(provider, result).Inc()
}

// RecordStateRejection records a rejected OAuth callback.
func (m *Metrics) RecordStateRejection() {
	m.StateRejections.Inc()
}
