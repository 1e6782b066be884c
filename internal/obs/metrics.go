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

	// AuthFailures counts rejected credentials by reason.
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Rejected authentication or authorization attempts.",
		},
		[]string{"reason"},
	)

	// WebhookEvents counts provider webhook deliveries by event type and outcome.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment provider webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// PaymentsApplied counts payment applications by mode and outcome.
	PaymentsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_applied_total",
			Help: "Payments applied to invoices by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
)

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			AuthFailures, WebhookEvents, PaymentsApplied,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight, count and latency for every request. Paths
// are labelled through routes so label cardinality stays bounded.
func Instrument(next http.Handler, routes *Routes) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routes.Canonical(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// OtherPath labels every request that matches no registered route.
const OtherPath = "/other"

// Routes maps request paths onto the mux patterns they were served by.
type Routes struct {
	patterns [][]string
}

// NewRoutes accepts ServeMux patterns such as "GET /api/branch/read/{id}".
// The method prefix is ignored; "{name}" segments become ":name".
func NewRoutes(patterns ...string) *Routes {
	rt := &Routes{}
	for _, p := range patterns {
		if i := strings.IndexByte(p, ' '); i >= 0 {
			p = strings.TrimSpace(p[i+1:])
		}
		if !strings.HasPrefix(p, "/") {
			continue
		}
		rt.patterns = append(rt.patterns, splitPath(p))
	}
	return rt
}

// Canonical returns the label for raw, or OtherPath when nothing matches.
func (rt *Routes) Canonical(raw string) string {
	if rt == nil {
		return OtherPath
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	parts := splitPath(raw)
	for _, pattern := range rt.patterns {
		if label, ok := matchSegments(pattern, parts); ok {
			return label
		}
	}
	return OtherPath
}

func matchSegments(pattern, parts []string) (string, bool) {
	if len(pattern) != len(parts) {
		return "", false
	}
	var b strings.Builder
	for i, seg := range pattern {
		b.WriteByte('/')
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if parts[i] == "" {
				return "", false
			}
			b.WriteByte(':')
			b.WriteString(strings.TrimSuffix(strings.Trim(seg, "{}"), "..."))
			continue
		}
		if seg != parts[i] {
			return "", false
		}
		b.WriteString(seg)
	}
	if b.Len() == 0 {
		return "/", true
	}
	return b.String(), true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Flush keeps Server-Sent Events working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
