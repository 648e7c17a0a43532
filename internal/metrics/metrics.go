// Package metrics exposes Prometheus collectors for HTTP traffic and the
// code and session ledgers.
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

// Metrics groups the collectors registered on a private registry. All
// recording methods accept a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	codesIssued    *prometheus.CounterVec
	codesConsumed  *prometheus.CounterVec
	codesRejected  *prometheus.CounterVec
	sessionsIssued prometheus.Counter
	deliveries     *prometheus.CounterVec
}

// New builds and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_codes_issued_total",
			Help: "Verification codes issued by purpose.",
		}, []string{"purpose"}),
		codesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_codes_consumed_total",
			Help: "Verification codes successfully consumed by purpose.",
		}, []string{"purpose"}),
		codesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_codes_rejected_total",
			Help: "Consumption attempts that matched no valid code, by purpose.",
		}, []string{"purpose"}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessions_issued_total",
			Help: "Login sessions issued.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Code deliveries by channel and result.",
		}, []string{"channel", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.codesIssued,
		m.codesConsumed,
		m.codesRejected,
		m.sessionsIssued,
		m.deliveries,
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) CodeConsumed(purpose string) {
	if m == nil {
		return
	}
	m.codesConsumed.WithLabelValues(purpose).Inc()
}

func (m *Metrics) CodeRejected(purpose string) {
	if m == nil {
		return
	}
	m.codesRejected.WithLabelValues(purpose).Inc()
}

func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

// Delivery records one notification attempt on channel.
func (m *Metrics) Delivery(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "sent"
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
