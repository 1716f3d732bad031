package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// httpMetrics instruments the HTTP surface. The registry is app-owned
// so tests can run handlers without global collector collisions.
type httpMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newHTTPMetrics() *httpMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &httpMetrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustbridge_http_requests_total",
			Help: "HTTP requests by method, path and status class.",
		}, []string{"method", "path", "class"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trustbridge_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trustbridge_http_inflight_requests",
			Help: "Requests currently being served.",
		}),
	}
}

// Registry exposes the app registry for wiring additional collectors.
func (m *httpMetrics) Registry() prometheus.Registerer { return m.registry }

// Handler serves the Prometheus exposition endpoint.
func (m *httpMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records per-request counters and latency.
func (m *httpMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		mrw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(mrw, r)

		path := metricPath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, statusClass(mrw.status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// metricPath keeps label cardinality bounded: only the fixed route set
// is reported verbatim.
func metricPath(p string) string {
	switch p {
	case "/healthz", "/readyz", "/metrics",
		"/api/register", "/api/login", "/api/logout",
		"/api/me", "/api/check-username", "/api/transactions":
		return p
	default:
		return "other"
	}
}
