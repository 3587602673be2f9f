package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Identity subsystem metrics.
var (
	impersonationActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "identity_impersonation_active_sessions",
		Help: "Currently active administrator impersonation sessions.",
	})

	invitationsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "identity_invitations_issued_total",
		Help: "Account-sharing invitations created.",
	})

	readOnlyRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "identity_read_only_rejections_total",
		Help: "Mutations rejected because the session is view-only.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		impersonationActive, invitationsIssued, readOnlyRejections,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ImpersonationStarted increments the active impersonation gauge.
func ImpersonationStarted() { impersonationActive.Inc() }

// ImpersonationEnded decrements the active impersonation gauge.
func ImpersonationEnded() { impersonationActive.Dec() }

// InvitationIssued counts a freshly created invitation.
func InvitationIssued() { invitationsIssued.Inc() }

// ReadOnlyRejected counts a mutation blocked by the access gate.
func ReadOnlyRejected() { readOnlyRejections.Inc() }

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so SSE responses keep streaming through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
