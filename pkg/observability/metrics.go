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

	// Resolution metrics
	ResolutionsTotal       *prometheus.CounterVec
	ResolutionDuration     *prometheus.HistogramVec
	ResolutionRetriesTotal prometheus.Counter

	// Cascade metrics
	CascadeTriggersTotal  *prometheus.CounterVec
	CascadeAffectedSize   *prometheus.HistogramVec
	CascadeDuration       *prometheus.HistogramVec
	CascadeQueueDepth     prometheus.Gauge
	TierChangedEventsTotal prometheus.Counter

	// Ownership metrics
	OwnershipTransitionsTotal *prometheus.CounterVec
	OwnershipConflictsTotal   prometheus.Counter

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Notifier metrics
	NotificationsTotal       *prometheus.CounterVec
	NotificationRetriesTotal prometheus.Counter

	// Business metrics
	TiersTotal    prometheus.Gauge
	AccountsTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationauth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stationauth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Resolution metrics
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationauth_resolutions_total",
				Help: "Total number of tier resolutions",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stationauth_resolution_duration_seconds",
				Help:    "Tier resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"trigger"},
		),
		ResolutionRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stationauth_resolution_retries_total",
				Help: "Total number of resolution retries after transient failures",
			},
		),

		// Cascade metrics
		CascadeTriggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationauth_cascade_triggers_total",
				Help: "Total number of cascade triggers processed",
			},
			[]string{"trigger"},
		),
		CascadeAffectedSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stationauth_cascade_affected_accounts",
				Help:    "Number of accounts re-evaluated per cascade",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"trigger"},
		),
		CascadeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stationauth_cascade_duration_seconds",
				Help:    "Cascade propagation duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"trigger"},
		),
		CascadeQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stationauth_cascade_queue_depth",
				Help: "Number of cascade triggers waiting to be processed",
			},
		),
		TierChangedEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stationauth_tier_changed_events_total",
				Help: "Total number of tier_changed events emitted",
			},
		),

		// Ownership metrics
		OwnershipTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationauth_ownership_transitions_total",
				Help: "Total number of ownership transitions",
			},
			[]string{"kind"},
		),
		OwnershipConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stationauth_ownership_conflicts_total",
				Help: "Total number of ownership transitions blocked by a live credential",
			},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationauth_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationauth_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stationauth_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stationauth_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		// Notifier metrics
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationauth_notifications_total",
				Help: "Total number of dependent service notifications",
			},
			[]string{"service", "status"},
		),
		NotificationRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stationauth_notification_retries_total",
				Help: "Total number of notification delivery retries",
			},
		),

		// Business metrics
		TiersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stationauth_tiers_total",
				Help: "Total number of tiers",
			},
		),
		AccountsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stationauth_accounts_total",
				Help: "Total number of accounts",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.ResolutionRetriesTotal,
		m.CascadeTriggersTotal,
		m.CascadeAffectedSize,
		m.CascadeDuration,
		m.CascadeQueueDepth,
		m.TierChangedEventsTotal,
		m.OwnershipTransitionsTotal,
		m.OwnershipConflictsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.NotificationsTotal,
		m.NotificationRetriesTotal,
		m.TiersTotal,
		m.AccountsTotal,
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

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
