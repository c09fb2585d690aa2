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

		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.ResolutionsTotal == nil {
			t.Error("ResolutionsTotal is nil")
		}
		if metrics.AuthzDecisionsTotal == nil {
			t.Error("AuthzDecisionsTotal is nil")
		}
		if metrics.QuotaChecksTotal == nil {
			t.Error("QuotaChecksTotal is nil")
		}
		if metrics.DomainVerificationsTotal == nil {
			t.Error("DomainVerificationsTotal is nil")
		}
		if metrics.HostCacheHitsTotal == nil {
			t.Error("HostCacheHitsTotal is nil")
		}
		if metrics.DBConnectionsActive == nil {
			t.Error("DBConnectionsActive is nil")
		}
		if metrics.TenantsTotal == nil {
			t.Error("TenantsTotal is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		// Initialize some metrics to make them appear in Gather()
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.ResolutionsTotal.WithLabelValues("domain", "ok").Add(0)
		metrics.AuthzDecisionsTotal.WithLabelValues("pages", "create", "allow").Add(0)
		metrics.QuotaChecksTotal.WithLabelValues("pages", "allowed").Add(0)
		metrics.DBConnectionsActive.Set(0)
		metrics.TenantsTotal.Set(0)

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
			"origo_http_requests_total",
			"origo_tenant_resolutions_total",
			"origo_authz_decisions_total",
			"origo_quota_checks_total",
			"origo_db_connections_active",
			"origo_tenants_total",
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

func TestMetrics_HTTPMetrics(t *testing.T) {
	t.Run("increment HTTP request counter", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/test", "200").Inc()

		count := testutil.CollectAndCount(metrics.HTTPRequestsTotal)
		if count != 1 {
			t.Errorf("Expected 1 metric, got %d", count)
		}

		expected := `
# HELP origo_http_requests_total Total number of HTTP requests
# TYPE origo_http_requests_total counter
origo_http_requests_total{method="GET",path="/api/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected metric value: %v", err)
		}
	})
}

func TestMetrics_ResolutionMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ResolutionsTotal.WithLabelValues("pin", "ok").Inc()
	metrics.ResolutionsTotal.WithLabelValues("pin", "ok").Inc()
	metrics.ResolutionsTotal.WithLabelValues("none", "no_resolution").Inc()

	expected := `
# HELP origo_tenant_resolutions_total Total number of tenant resolutions by winning rule
# TYPE origo_tenant_resolutions_total counter
origo_tenant_resolutions_total{rule="none",status="no_resolution"} 1
origo_tenant_resolutions_total{rule="pin",status="ok"} 2
`
	if err := testutil.CollectAndCompare(metrics.ResolutionsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest("POST", "/api/tenants/1/roles", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("middleware altered status: got %d", rec.Code)
	}

	value := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", "/api/tenants/1/roles", "418"))
	if value != 1 {
		t.Errorf("Expected counter 1, got %v", value)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.TenantsTotal.Set(42)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "origo_tenants_total 42") {
		t.Errorf("Expected origo_tenants_total in exposition, got:\n%s", body)
	}
}
