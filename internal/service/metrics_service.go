package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Claim outcome labels.
const (
	ClaimOutcomeClaimed         = "claimed"
	ClaimOutcomeMerged          = "merged"
	ClaimOutcomeInvalidToken    = "invalid_token"
	ClaimOutcomeExpired         = "expired"
	ClaimOutcomeAlreadyClaimed  = "already_claimed"
	ClaimOutcomeTooManyAttempts = "too_many_attempts"
	ClaimOutcomeError           = "error"
)

// MetricsService encapsulates Prometheus instrumentation for the identity API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	claimOutcomes   *prometheus.CounterVec
	invitesIssued   prometheus.Counter
	invitesRevoked  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	claimOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_claims_total",
		Help: "Invitation claim attempts by outcome",
	}, []string{"outcome"})

	invitesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "identity_invites_issued_total",
		Help: "Invitation tokens issued or regenerated",
	})

	invitesRevoked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "identity_invites_revoked_total",
		Help: "Invitation tokens revoked by teachers",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, claimOutcomes, invitesIssued, invitesRevoked, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		claimOutcomes:   claimOutcomes,
		invitesIssued:   invitesIssued,
		invitesRevoked:  invitesRevoked,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveClaim counts a claim attempt by outcome.
func (m *MetricsService) ObserveClaim(outcome string) {
	if m == nil {
		return
	}
	m.claimOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveInviteIssued counts an issued invitation token.
func (m *MetricsService) ObserveInviteIssued() {
	if m == nil {
		return
	}
	m.invitesIssued.Inc()
}

// ObserveInviteRevoked counts a revoked invitation token.
func (m *MetricsService) ObserveInviteRevoked() {
	if m == nil {
		return
	}
	m.invitesRevoked.Inc()
}
