package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Outbound dependency calls (identity provider, profile store, blob store)
	DependencyCallsTotal   *prometheus.CounterVec
	DependencyCallDuration *prometheus.HistogramVec

	// Gate outcomes
	AuthFailuresTotal *prometheus.CounterVec

	// Business metrics
	BanMutationsTotal   *prometheus.CounterVec
	SignedURLsTotal     *prometheus.CounterVec
	ReconcileRepairs    prometheus.Counter
	RoleCacheLookups    *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DependencyCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_dependency_calls_total",
				Help: "Total number of calls to backing services",
			},
			[]string{"dependency", "operation", "status"},
		),
		DependencyCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_dependency_call_duration_seconds",
				Help:    "Backing service call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dependency", "operation"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_auth_failures_total",
				Help: "Requests rejected by the credential or role gate",
			},
			[]string{"reason"},
		),
		BanMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_ban_mutations_total",
				Help: "Ban state mutations by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		SignedURLsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_signed_urls_total",
				Help: "Update descriptor resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ReconcileRepairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_reconcile_repairs_total",
				Help: "Profile rows rewritten by the ban-state reconciler",
			},
		),
		RoleCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_role_cache_lookups_total",
				Help: "Role cache lookups by result",
			},
			[]string{"result"},
		),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"scope"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DependencyCallsTotal,
		m.DependencyCallDuration,
		m.AuthFailuresTotal,
		m.BanMutationsTotal,
		m.SignedURLsTotal,
		m.ReconcileRepairs,
		m.RoleCacheLookups,
		m.RateLimitRejections,
	)

	return m
}

// ObserveDependency records the outcome and latency of one backing-service call.
// Safe to call on a nil *Metrics.
func (m *Metrics) ObserveDependency(dependency, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DependencyCallsTotal.WithLabelValues(dependency, operation, status).Inc()
	m.DependencyCallDuration.WithLabelValues(dependency, operation).Observe(time.Since(start).Seconds())
}

// IncAuthFailure counts a gate rejection. Safe to call on a nil *Metrics.
func (m *Metrics) IncAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// IncBanMutation counts a ban mutation. Safe to call on a nil *Metrics.
func (m *Metrics) IncBanMutation(action, outcome string) {
	if m == nil {
		return
	}
	m.BanMutationsTotal.WithLabelValues(action, outcome).Inc()
}

// IncSignedURL counts an update resolution. Safe to call on a nil *Metrics.
func (m *Metrics) IncSignedURL(outcome string) {
	if m == nil {
		return
	}
	m.SignedURLsTotal.WithLabelValues(outcome).Inc()
}

// AddReconcileRepairs counts repaired profile rows. Safe to call on a nil *Metrics.
func (m *Metrics) AddReconcileRepairs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReconcileRepairs.Add(float64(n))
}

// IncRoleCache counts a role cache hit or miss. Safe to call on a nil *Metrics.
func (m *Metrics) IncRoleCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RoleCacheLookups.WithLabelValues(result).Inc()
}

// IncRateLimited counts a rate limit rejection. Safe to call on a nil *Metrics.
func (m *Metrics) IncRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(scope).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
