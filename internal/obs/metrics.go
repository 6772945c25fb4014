package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-surface metrics.
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

// Scope/token/filter domain metrics.
var (
	ScopeBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scope_build_duration_seconds",
		Help:    "Time to materialize a scope from upstream group membership.",
		Buckets: prometheus.DefBuckets,
	})

	ScopeCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_cache_requests_total",
			Help: "Scope cache lookups by outcome.",
		},
		[]string{"outcome"}, // hit, miss, expired
	)

	// TokenValidations is registered by Init, but no code path in this
	// module increments it.
	TokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Token validation attempts by outcome.",
		},
		[]string{"outcome"}, // ok, expired, revoked, signature_invalid, scope_missing, malformed
	)

	FilterDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filter_dropped_items_total",
		Help: "Collection items dropped by the response filter as out-of-scope.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		ScopeBuildDuration, ScopeCacheHits, TokenValidations, FilterDropped,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps an http.Handler with request count/latency/in-flight
// metrics, keyed by a cardinality-bounded canonical path.
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

// CanonicalPath collapses variable path segments (group ids, resource ids)
// so the request-duration/count metrics don't blow up in cardinality. It
// always keeps the first segment and replaces any later segment that looks
// like an opaque identifier with ":id".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	out := make([]string, 0, len(segments))
	kept := 0
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if looksLikeID(seg) && kept >= 1 {
			out = append(out, ":id")
			continue
		}
		out = append(out, seg)
		kept++
	}
	return "/" + strings.Join(out, "/")
}

func looksLikeID(seg string) bool {
	if strings.Contains(seg, "@") {
		return true
	}
	if strings.Contains(seg, ".") {
		return false // dotted route literals like "v1.0" or "microsoft.graph.room"
	}
	digits := 0
	for _, r := range seg {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return len(seg) >= 20 || digits*2 > len(seg)
}
