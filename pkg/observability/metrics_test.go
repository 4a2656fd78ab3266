package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify HTTP metrics are initialized
		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}

		// Verify resolution metrics are initialized
		if metrics.ResolutionsTotal == nil {
			t.Error("ResolutionsTotal is nil")
		}
		if metrics.ResolutionDuration == nil {
			t.Error("ResolutionDuration is nil")
		}
		if metrics.ResolutionRetriesTotal == nil {
			t.Error("ResolutionRetriesTotal is nil")
		}

		// Verify cascade metrics are initialized
		if metrics.CascadeTriggersTotal == nil {
			t.Error("CascadeTriggersTotal is nil")
		}
		if metrics.CascadeAffectedSize == nil {
			t.Error("CascadeAffectedSize is nil")
		}
		if metrics.CascadeDuration == nil {
			t.Error("CascadeDuration is nil")
		}
		if metrics.CascadeQueueDepth == nil {
			t.Error("CascadeQueueDepth is nil")
		}
		if metrics.TierChangedEventsTotal == nil {
			t.Error("TierChangedEventsTotal is nil")
		}

		// Verify ownership metrics are initialized
		if metrics.OwnershipTransitionsTotal == nil {
			t.Error("OwnershipTransitionsTotal is nil")
		}
		if metrics.OwnershipConflictsTotal == nil {
			t.Error("OwnershipConflictsTotal is nil")
		}

		// Verify cache metrics are initialized
		if metrics.CacheHitsTotal == nil {
			t.Error("CacheHitsTotal is nil")
		}
		if metrics.CacheMissesTotal == nil {
			t.Error("CacheMissesTotal is nil")
		}

		// Verify database metrics are initialized
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
		if metrics.DBConnectionsIdle == nil {
			t.Error("DBConnectionsIdle is nil")
		}

		// Verify notifier metrics are initialized
		if metrics.NotificationsTotal == nil {
			t.Error("NotificationsTotal is nil")
		}
		if metrics.NotificationRetriesTotal == nil {
			t.Error("NotificationRetriesTotal is nil")
		}

		// Verify business metrics are initialized
		if metrics.TiersTotal == nil {
			t.Error("TiersTotal is nil")
		}
		if metrics.AccountsTotal == nil {
			t.Error("AccountsTotal is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.ResolutionsTotal.WithLabelValues("changed").Add(0)
		metrics.CascadeTriggersTotal.WithLabelValues("tier_membership_edited").Add(0)
		metrics.OwnershipTransitionsTotal.WithLabelValues("establish").Add(0)
		metrics.NotificationsTotal.WithLabelValues("forum", "delivered").Add(0)
		metrics.CascadeQueueDepth.Set(0)
		metrics.TiersTotal.Set(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		if len(families) == 0 {
			t.Error("No metrics registered in registry")
		}

		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expectedMetrics := []string{
			"stationauth_http_requests_total",
			"stationauth_resolutions_total",
			"stationauth_cascade_triggers_total",
			"stationauth_cascade_queue_depth",
			"stationauth_ownership_transitions_total",
			"stationauth_notifications_total",
			"stationauth_tiers_total",
		}

		for _, name := range expectedMetrics {
			if !metricNames[name] {
				t.Errorf("Expected metric %s not found in registry", name)
			}
		}
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration, but didn't panic")
			}
		}()

		NewMetrics(registry)
	})
}

func TestMetrics_CascadeMetrics(t *testing.T) {
	t.Run("increment cascade trigger counter", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.CascadeTriggersTotal.WithLabelValues("tier_membership_edited").Inc()
		metrics.CascadeTriggersTotal.WithLabelValues("tier_deleted").Inc()

		expected := `
# HELP stationauth_cascade_triggers_total Total number of cascade triggers processed
# TYPE stationauth_cascade_triggers_total counter
stationauth_cascade_triggers_total{trigger="tier_deleted"} 1
stationauth_cascade_triggers_total{trigger="tier_membership_edited"} 1
`
		if err := testutil.CollectAndCompare(metrics.CascadeTriggersTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})

	t.Run("observe affected accounts", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.CascadeAffectedSize.WithLabelValues("tier_membership_edited").Observe(12)
		metrics.CascadeAffectedSize.WithLabelValues("tier_membership_edited").Observe(340)

		count := testutil.CollectAndCount(metrics.CascadeAffectedSize)
		if count != 1 {
			t.Errorf("Expected 1 metric family, got %d", count)
		}
	})

	t.Run("queue depth gauge", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.CascadeQueueDepth.Set(7)
		if got := testutil.ToFloat64(metrics.CascadeQueueDepth); got != 7 {
			t.Errorf("CascadeQueueDepth = %v, want 7", got)
		}

		metrics.CascadeQueueDepth.Dec()
		if got := testutil.ToFloat64(metrics.CascadeQueueDepth); got != 6 {
			t.Errorf("CascadeQueueDepth = %v, want 6", got)
		}
	})

	t.Run("tier changed event counter", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.TierChangedEventsTotal.Inc()
		metrics.TierChangedEventsTotal.Inc()

		if got := testutil.ToFloat64(metrics.TierChangedEventsTotal); got != 2 {
			t.Errorf("TierChangedEventsTotal = %v, want 2", got)
		}
	})
}

func TestMetrics_OwnershipMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.OwnershipTransitionsTotal.WithLabelValues("establish").Inc()
	metrics.OwnershipTransitionsTotal.WithLabelValues("supersede").Inc()
	metrics.OwnershipConflictsTotal.Inc()

	expected := `
# HELP stationauth_ownership_transitions_total Total number of ownership transitions
# TYPE stationauth_ownership_transitions_total counter
stationauth_ownership_transitions_total{kind="establish"} 1
stationauth_ownership_transitions_total{kind="supersede"} 1
`
	if err := testutil.CollectAndCompare(metrics.OwnershipTransitionsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	if got := testutil.ToFloat64(metrics.OwnershipConflictsTotal); got != 1 {
		t.Errorf("OwnershipConflictsTotal = %v, want 1", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/tiers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rec.Code)
	}

	expected := `
# HELP stationauth_http_requests_total Total number of HTTP requests
# TYPE stationauth_http_requests_total counter
stationauth_http_requests_total{method="POST",path="/tiers",status="201"} 1
`
	if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	t.Run("defaults to 200 when handler never writes a header", func(t *testing.T) {
		ok := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))

		req := httptest.NewRequest(http.MethodGet, "/healthy", nil)
		ok.ServeHTTP(httptest.NewRecorder(), req)

		if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/healthy", "200")); got != 1 {
			t.Errorf("Expected one GET /healthy 200 sample, got %v", got)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.TiersTotal.Set(4)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "stationauth_tiers_total 4") {
		t.Error("Expected stationauth_tiers_total in metrics output")
	}
}
