package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegistersEverything(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	// Touch the vectors so they show up in a gather.
	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/check", "200").Add(0)
	metrics.AuthzDecisionsTotal.WithLabelValues("edit_okr", "PUBLISH_LOCK").Add(0)
	metrics.AuthzCheckDuration.WithLabelValues("edit_okr").Observe(0)
	metrics.CacheHitsTotal.WithLabelValues("redis").Add(0)
	metrics.CacheMissesTotal.WithLabelValues("local").Add(0)
	metrics.CacheErrorsTotal.WithLabelValues("redis", "get").Add(0)
	metrics.AuditEntriesTotal.WithLabelValues("authz.grant_role").Add(0)
	metrics.RoleGrantsTotal.WithLabelValues("TENANT_ADMIN", "tenant").Add(0)
	metrics.RoleRevokesTotal.WithLabelValues("TENANT_ADMIN", "tenant").Add(0)
	metrics.DBConnectionsActive.Set(0)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	got := make(map[string]bool, len(families))
	for _, f := range families {
		got[f.GetName()] = true
	}

	expected := []string{
		"stride_http_requests_total",
		"stride_authz_decisions_total",
		"stride_authz_check_duration_seconds",
		"stride_context_cache_hits_total",
		"stride_context_cache_misses_total",
		"stride_context_cache_errors_total",
		"stride_audit_entries_total",
		"stride_role_grants_total",
		"stride_role_revokes_total",
		"stride_db_connections_active",
	}
	for _, name := range expected {
		if !got[name] {
			t.Errorf("expected metric %s to be registered", name)
		}
	}
}

func TestNewMetricsDoubleRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if r := recover(); r == nil {
			t.Error("registering the same metrics twice should panic")
		}
	}()
	NewMetrics(registry)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("middleware should pass the response through, got %d", rec.Code)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "stride_http_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == "418" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected a request counted with status 418")
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}
