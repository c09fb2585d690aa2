package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Tenant resolution metrics
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Quota metrics
	QuotaChecksTotal *prometheus.CounterVec

	// Domain verification metrics
	DomainVerificationsTotal *prometheus.CounterVec
	DNSProbeDuration         prometheus.Histogram
	PendingDomainsTotal      prometheus.Gauge

	// Host cache metrics
	HostCacheHitsTotal   prometheus.Counter
	HostCacheMissesTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge

	// Business metrics
	TenantsTotal     prometheus.Gauge
	MembershipsTotal prometheus.Gauge
	CustomRolesTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "origo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "origo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "origo_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "origo_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Tenant resolution metrics. The rule label names which
		// resolution rule produced the tenant (explicit, pin, domain,
		// subdomain, fallback, none).
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "origo_tenant_resolutions_total",
				Help: "Total number of tenant resolutions by winning rule",
			},
			[]string{"rule", "status"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "origo_tenant_resolution_duration_seconds",
				Help:    "Tenant resolution duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"rule"},
		),

		// Authorization metrics
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "origo_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"resource", "action", "decision"},
		),

		// Quota metrics
		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "origo_quota_checks_total",
				Help: "Total number of quota checks",
			},
			[]string{"resource", "outcome"},
		),

		// Domain verification metrics
		DomainVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "origo_domain_verifications_total",
				Help: "Total number of domain verification attempts",
			},
			[]string{"outcome"},
		),
		DNSProbeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "origo_dns_probe_duration_seconds",
				Help:    "Duration of DNS TXT verification probes in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		PendingDomainsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "origo_pending_domains_total",
				Help: "Number of tenants with a pending custom domain",
			},
		),

		// Host cache metrics
		HostCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "origo_host_cache_hits_total",
				Help: "Total number of host cache hits",
			},
		),
		HostCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "origo_host_cache_misses_total",
				Help: "Total number of host cache misses",
			},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "origo_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "origo_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "origo_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),

		// Business metrics
		TenantsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "origo_tenants_total",
				Help: "Total number of tenants",
			},
		),
		MembershipsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "origo_memberships_total",
				Help: "Total number of memberships",
			},
		),
		CustomRolesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "origo_custom_roles_total",
				Help: "Total number of custom roles",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.AuthzDecisionsTotal,
		m.QuotaChecksTotal,
		m.DomainVerificationsTotal,
		m.DNSProbeDuration,
		m.PendingDomainsTotal,
		m.HostCacheHitsTotal,
		m.HostCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RedisConnectionsActive,
		m.TenantsTotal,
		m.MembershipsTotal,
		m.CustomRolesTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
