package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logiq_build_info",
			Help: "Always 1; labels carry the running version and commit.",
		},
		[]string{"version", "commit"},
	)

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

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logiq_gate_verdicts_total",
			Help: "Authorization verdicts by feature and reason.",
		},
		[]string{"feature", "reason", "allowed"},
	)

	auditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logiq_audit_entries_total",
			Help: "Audit entries written by action.",
		},
		[]string{"action"},
	)

	deniedThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logiq_audit_denials_throttled_total",
		Help: "Denied-attempt audit entries suppressed by the cooldown throttle.",
	})

	suspensionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logiq_suspension_transitions_total",
			Help: "Suspension lifecycle transitions.",
		},
		[]string{"transition"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logiq_ready",
		Help: "1 when the service passed its last readiness check.",
	})
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			verdictsTotal, auditEntriesTotal, deniedThrottledTotal,
			suspensionTransitions, ready, buildInfo,
		)
	})
}

// InitBuildInfo registers the collectors if needed and publishes the build labels.
func InitBuildInfo(version, commit string) {
	Init()
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveVerdict counts one authorization outcome.
func ObserveVerdict(feature, reason string, allowed bool) {
	verdictsTotal.WithLabelValues(feature, reason, strconv.FormatBool(allowed)).Inc()
}

// ObserveAuditEntry counts one persisted audit entry.
func ObserveAuditEntry(action string) {
	auditEntriesTotal.WithLabelValues(action).Inc()
}

// ObserveDenialThrottled counts a suppressed denied-attempt entry.
func ObserveDenialThrottled() {
	deniedThrottledTotal.Inc()
}

// ObserveSuspension counts a suspension lifecycle transition.
func ObserveSuspension(transition string) {
	suspensionTransitions.WithLabelValues(transition).Inc()
}

// SetReady records the outcome of the latest readiness probe.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument wraps next with request count, latency and in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifiers in API paths so metric labels stay bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" || parts[1] != "communities" {
		return raw
	}
	parts[2] = ":community"
	if len(parts) < 5 {
		return "/" + strings.Join(parts, "/")
	}
	switch parts[3] {
	case "overrides":
		parts[4] = ":feature"
	case "suspensions":
		parts[4] = ":user"
	case "security":
		if len(parts) >= 6 {
			switch parts[4] {
			case "protected-groups":
				parts[5] = ":group"
			case "protected-users":
				parts[5] = ":user"
			}
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
