// Package metrics exposes LexGate's Prometheus instruments.
//
// Every instrument lives on a Metrics value with its own registry, so tests
// and multiple servers never collide on the global default registry. All
// recording methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lexgate"

// Metrics holds the registry and every LexGate instrument.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gateDecisions    *prometheus.CounterVec
	identityOutcomes *prometheus.CounterVec
	authzDecisions   *prometheus.CounterVec
	idpCallbacks     *prometheus.CounterVec
	auditDropped     prometheus.Counter
}

// New creates and registers all instruments, plus Go runtime and process
// collectors and a build_info gauge.
func New(version string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Edge gatekeeper outcomes.",
		}, []string{"decision"}),
		identityOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_resolutions_total",
			Help:      "Identity resolution outcomes by error code (ok on success).",
		}, []string{"code"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Authorization engine decisions by resource kind.",
		}, []string{"resource", "decision"}),
		idpCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idp_callbacks_total",
			Help:      "External IdP callback outcomes.",
		}, []string{"outcome"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit entries dropped because the write buffer was full.",
		}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "LexGate build information.",
	}, []string{"version"})
	buildInfo.WithLabelValues(version).Set(1)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.gateDecisions, m.identityOutcomes, m.authzDecisions, m.idpCallbacks, m.auditDropped,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records in-flight count, request count and latency per chi
// route pattern. Unmatched requests are labelled by "unmatched" to bound
// cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// GateDecision counts one edge gatekeeper outcome.
func (m *Metrics) GateDecision(decision string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(decision).Inc()
}

// IdentityOutcome counts one identity resolution result.
func (m *Metrics) IdentityOutcome(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.identityOutcomes.WithLabelValues(code).Inc()
}

// AuthzDecision counts one authorization decision.
func (m *Metrics) AuthzDecision(resource, decision string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(resource, decision).Inc()
}

// IdPCallback counts one IdP callback outcome.
func (m *Metrics) IdPCallback(outcome string) {
	if m == nil {
		return
	}
	m.idpCallbacks.WithLabelValues(outcome).Inc()
}

// AuditDropped counts an audit entry lost to back-pressure.
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
