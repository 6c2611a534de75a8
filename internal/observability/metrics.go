// Package observability exposes prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the service's prometheus metrics on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	checksTotal      *prometheus.CounterVec
	grantsTotal      *prometheus.CounterVec
	expirationsTotal prometheus.Counter
	outboxPending    prometheus.Gauge
}

// NewMetrics initialises the registry and all metric families.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authcore_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_permission_checks_total",
		Help: "Permission and role checks by outcome.",
	}, []string{"kind", "outcome"})
	grants := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_role_mutations_total",
		Help: "Role assignment mutations by operation.",
	}, []string{"op"})
	expirations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_expirations_processed_total",
		Help: "Temporary assignments retired by the expiration worker.",
	})
	outbox := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authcore_audit_outbox_pending",
		Help: "Audit outbox rows awaiting publication.",
	})
	registry.MustRegister(requests, duration, checks, grants, expirations, outbox)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		checksTotal:      checks,
		grantsTotal:      grants,
		expirationsTotal: expirations,
		outboxPending:    outbox,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveCheck counts one authorization check.
func (m *Metrics) ObserveCheck(kind string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.checksTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveMutation counts one assignment mutation.
func (m *Metrics) ObserveMutation(op string) {
	if m == nil {
		return
	}
	m.grantsTotal.WithLabelValues(op).Inc()
}

// ObserveExpirations counts retired temporary assignments.
func (m *Metrics) ObserveExpirations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expirationsTotal.Add(float64(n))
}

// SetOutboxPending records the audit outbox backlog.
func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
