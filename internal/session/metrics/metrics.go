package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the consent session lifecycle and
// proof verification. All methods are nil-safe so wiring metrics is optional
// in tests.
type Metrics struct {
	SessionsCreated  *prometheus.CounterVec
	SessionsApproved *prometheus.CounterVec
	SessionsRejected *prometheus.CounterVec
	SessionsRevoked  *prometheus.CounterVec
	SessionsExpired  prometheus.Counter

	Verifications       *prometheus.CounterVec
	VerificationLatency prometheus.Histogram
	VerificationsInFlight prometheus.Gauge

	DispatchCycleDuration prometheus.Histogram
	Resignatures          *prometheus.CounterVec
}

// New registers and returns session metrics collectors.
func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zkconsent_sessions_created_total",
			Help: "Total number of consent sessions created, labeled by provider",
		}, []string{"provider"}),
		SessionsApproved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zkconsent_sessions_approved_total",
			Help: "Total number of consent sessions approved, labeled by provider",
		}, []string{"provider"}),
		SessionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zkconsent_sessions_rejected_total",
			Help: "Total number of consent sessions rejected, labeled by provider",
		}, []string{"provider"}),
		SessionsRevoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zkconsent_sessions_revoked_total",
			Help: "Total number of consent sessions revoked, labeled by provider",
		}, []string{"provider"}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zkconsent_sessions_expired_total",
			Help: "Total number of consent sessions closed by timer expiry",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zkconsent_proof_verifications_total",
			Help: "Total number of proof verifications, labeled by outcome",
		}, []string{"outcome"}),
		VerificationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkconsent_proof_verification_latency_seconds",
			Help:    "Latency of end-to-end proof verification in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		VerificationsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "zkconsent_proof_verifications_in_flight",
			Help: "Number of proof verifications currently running",
		}),
		DispatchCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkconsent_dispatch_cycle_duration_seconds",
			Help:    "Duration of verification dispatcher poll cycles in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		Resignatures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zkconsent_resignatures_total",
			Help: "Total number of credential re-signatures, labeled by stage",
		}, []string{"stage"}),
	}
}

func (m *Metrics) IncSessionsCreated(provider string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncSessionsApproved(provider string) {
	if m == nil {
		return
	}
	m.SessionsApproved.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncSessionsRejected(provider string) {
	if m == nil {
		return
	}
	m.SessionsRejected.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncSessionsRevoked(provider string) {
	if m == nil {
		return
	}
	m.SessionsRevoked.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncSessionsExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}

func (m *Metrics) IncVerifications(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerificationLatency(seconds float64) {
	if m == nil {
		return
	}
	m.VerificationLatency.Observe(seconds)
}

func (m *Metrics) AddVerificationsInFlight(delta float64) {
	if m == nil {
		return
	}
	m.VerificationsInFlight.Add(delta)
}

func (m *Metrics) ObserveDispatchCycle(seconds float64) {
	if m == nil {
		return
	}
	m.DispatchCycleDuration.Observe(seconds)
}

func (m *Metrics) IncResignatures(stage string) {
	if m == nil {
		return
	}
	m.Resignatures.WithLabelValues(stage).Inc()
}
