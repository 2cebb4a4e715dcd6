package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityMiddlewareExtractsPrincipal(t *testing.T) {
	var got *Principal
	handler := NewIdentityMiddleware(false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r)
	}))

	req := httptest.NewRequest("GET", "/goals", nil)
	req.Header.Set(HeaderUserID, "user-1")
	req.Header.Set(HeaderTenantID, "tenant-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil {
		t.Fatal("expected principal in context")
	}
	if got.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", got.UserID)
	}
	if got.TenantID == nil || *got.TenantID != "tenant-1" {
		t.Errorf("expected tenant-1, got %v", got.TenantID)
	}
}

func TestIdentityMiddlewareSuperuserHasNoTenant(t *testing.T) {
	var got *Principal
	handler := NewIdentityMiddleware(false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r)
	}))

	req := httptest.NewRequest("GET", "/goals", nil)
	req.Header.Set(HeaderUserID, "root-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got == nil {
		t.Fatal("expected principal in context")
	}
	if got.TenantID != nil {
		t.Errorf("expected nil tenant, got %v", *got.TenantID)
	}
}

func TestIdentityMiddlewareRejectsAnonymous(t *testing.T) {
	handler := NewIdentityMiddleware(false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/goals", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIdentityMiddlewareOptionalPassesAnonymous(t *testing.T) {
	called := false
	handler := NewIdentityMiddleware(true).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if GetPrincipal(r) != nil {
			t.Error("expected no principal for anonymous request")
		}
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/goals", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatal("expected generated request ID header")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/goals", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != "req-abc" {
		t.Fatalf("expected req-abc, got %s", got)
	}
}
