// Package metrics exposes Prometheus counters for the content cache, the
// remote store and the HTTP server.
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

// Collector holds all Prometheus metrics for the application. Each Collector
// owns its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	Fallbacks    *prometheus.CounterVec
	RemoteErrors *prometheus.CounterVec
	Mutations    *prometheus.CounterVec
}

// NewCollector creates a collector with the given namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Read-through cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Read-through cache misses",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_fallbacks_total",
			Help:      "Reads served from bundled sample data",
		}, []string{"domain", "reason"}),
		RemoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_errors_total",
			Help:      "Failed calls to the remote content store",
		}, []string{"domain", "op"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_mutations_total",
			Help:      "Admin writes against the remote content store",
		}, []string{"domain", "op", "result"}),
	}

	c.registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.CacheHits, c.CacheMisses,
		c.Fallbacks, c.RemoteErrors, c.Mutations,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// CacheHit implements cache.Observer
func (c *Collector) CacheHit() { c.CacheHits.Inc() }

// CacheMiss implements cache.Observer
func (c *Collector) CacheMiss() { c.CacheMisses.Inc() }

// Fallback records a read served from sample data
func (c *Collector) Fallback(domain, reason string) {
	c.Fallbacks.WithLabelValues(domain, reason).Inc()
}

// RemoteError records a failed remote call
func (c *Collector) RemoteError(domain, op string) {
	c.RemoteErrors.WithLabelValues(domain, op).Inc()
}

// Mutation records an admin write and whether it succeeded
func (c *Collector) Mutation(domain, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Mutations.WithLabelValues(domain, op, result).Inc()
}

// unmatchedRoute labels requests no route matched, keeping raw paths out of
// the label set
const unmatchedRoute = "unmatched"

// Middleware records request counts and latency keyed by the chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
