package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by the API layer.
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

// Domain metrics for the trust core.
var (
	auditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit events appended, by type and severity.",
		},
		[]string{"type", "severity"},
	)

	securityAlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "security_alerts_total",
		Help: "High-severity audit events raised to monitoring.",
	})

	collabOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaboration_operations_total",
			Help: "Collaboration protocol operations.",
		},
		[]string{"op"},
	)

	governanceOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governance_operations_total",
			Help: "Governance operations.",
		},
		[]string{"op"},
	)
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more
// than once; only the first call registers.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			auditEventsTotal, securityAlertsTotal,
			collabOpsTotal, governanceOpsTotal,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuditEvent counts one appended audit event.
func ObserveAuditEvent(eventType, severity string) {
	auditEventsTotal.WithLabelValues(eventType, severity).Inc()
}

// ObserveAlert counts one monitoring notification.
func ObserveAlert() {
	securityAlertsTotal.Inc()
}

// ObserveCollabOp counts one collaboration protocol operation.
func ObserveCollabOp(op string) {
	collabOpsTotal.WithLabelValues(op).Inc()
}

// ObserveGovernanceOp counts one governance operation.
func ObserveGovernanceOp(op string) {
	governanceOpsTotal.WithLabelValues(op).Inc()
}

// Instrument wraps an HTTP handler with RPS/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
