package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/strideworks/stride/pkg/audit"
	"github.com/strideworks/stride/pkg/middleware"
)

type handlerFixture struct {
	router  *mux.Router
	store   *Store
	builder *ContextBuilder
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	db := NewTestDB(t)
	store := NewStore(db)
	cache := NewLayeredCache(LayeredCacheConfig{TTL: time.Minute})
	builder := NewContextBuilder(store, cache)
	engine := NewEngine()

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		t.Fatalf("NewDBLogger: %v", err)
	}
	svc := NewAssignmentService(store, builder, WithAssignmentAudit(auditLog))

	router := mux.NewRouter()
	NewHandlers(store, builder, svc, engine, auditLog).RegisterRoutes(router)

	f := &handlerFixture{router: router, store: store, builder: builder}

	// A tenant with an admin who may manage roles, plus a regular member.
	seedAcme(t, store)
	tenantID := "t1"
	if _, err := store.UpsertRoleAssignment(context.Background(), RoleAssignment{
		UserID: "admin-1", Role: RoleTenantAdmin, ScopeType: ScopeTenant, ScopeID: &tenantID,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}, p *middleware.Principal) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func adminPrincipal() *middleware.Principal {
	tenantID := "t1"
	return &middleware.Principal{UserID: "admin-1", TenantID: &tenantID}
}

func TestGrantRoleEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "POST", "/authz/users/u1/roles", roleChangeRequest{
		Role:      RoleWorkspaceMember,
		ScopeType: ScopeWorkspace,
		ScopeID:   strPtr("w1"),
	}, adminPrincipal())

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var a RoleAssignment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if a.UserID != "u1" || a.Role != RoleWorkspaceMember {
		t.Errorf("unexpected assignment: %+v", a)
	}
}

func TestGrantRoleRequiresPrincipal(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "POST", "/authz/users/u1/roles", roleChangeRequest{
		Role:      RoleWorkspaceMember,
		ScopeType: ScopeWorkspace,
		ScopeID:   strPtr("w1"),
	}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGrantRoleForbiddenForNonAdmin(t *testing.T) {
	f := newHandlerFixture(t)

	tenantID := "t1"
	rec := f.do(t, "POST", "/authz/users/u1/roles", roleChangeRequest{
		Role:      RoleWorkspaceMember,
		ScopeType: ScopeWorkspace,
		ScopeID:   strPtr("w1"),
	}, &middleware.Principal{UserID: "u1", TenantID: &tenantID})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRevokeRoleEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	body := roleChangeRequest{Role: RoleWorkspaceMember, ScopeType: ScopeWorkspace, ScopeID: strPtr("w1")}
	if rec := f.do(t, "POST", "/authz/users/u1/roles", body, adminPrincipal()); rec.Code != http.StatusCreated {
		t.Fatalf("grant failed: %d", rec.Code)
	}

	rec := f.do(t, "DELETE", "/authz/users/u1/roles", body, adminPrincipal())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	assignments, err := f.store.ListRoleAssignments(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListRoleAssignments: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("expected grant removed, got %+v", assignments)
	}
}

func TestListUserRolesEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	body := roleChangeRequest{Role: RoleTeamLead, ScopeType: ScopeTeam, ScopeID: strPtr("tm1")}
	if rec := f.do(t, "POST", "/authz/users/u1/roles", body, adminPrincipal()); rec.Code != http.StatusCreated {
		t.Fatalf("grant failed: %d", rec.Code)
	}

	rec := f.do(t, "GET", "/authz/users/u1/roles", nil, adminPrincipal())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		UserID      string           `json:"user_id"`
		Assignments []RoleAssignment `json:"assignments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Assignments) != 1 || resp.Assignments[0].Role != RoleTeamLead {
		t.Fatalf("unexpected assignments: %+v", resp.Assignments)
	}
}

func TestCheckEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	// admin-1 holds TENANT_ADMIN at t1; u1 holds nothing.
	rec := f.do(t, "POST", "/authz/check", checkRequest{
		UserID:   "admin-1",
		Action:   ActionManageUsers,
		TenantID: "t1",
	}, adminPrincipal())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var d Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got %+v", d)
	}

	rec = f.do(t, "POST", "/authz/check", checkRequest{
		UserID:   "u1",
		Action:   ActionManageUsers,
		TenantID: "t1",
	}, adminPrincipal())
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if d.Allowed || d.Reason != ReasonRoleDeny {
		t.Fatalf("expected ROLE_DENY, got %+v", d)
	}
}

func TestCheckEndpointWithGoal(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "POST", "/authz/check", checkRequest{
		UserID:   "u1",
		Action:   ActionViewGoal,
		TenantID: "t1",
		Goal: &Goal{
			ID: "g1", OwnerID: "admin-1", TenantID: "t1",
			Visibility: VisibilityPrivate,
		},
	}, adminPrincipal())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var d Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if d.Allowed || d.Reason != ReasonPrivateVisibility {
		t.Fatalf("expected PRIVATE_VISIBILITY deny, got %+v", d)
	}
}

func TestEffectiveRolesEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "GET", "/authz/users/admin-1/effective-roles?tenant_id=t1", nil, adminPrincipal())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		UserID string `json:"user_id"`
		Roles  []Role `json:"roles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Roles) != 1 || resp.Roles[0] != RoleTenantAdmin {
		t.Fatalf("unexpected roles: %v", resp.Roles)
	}

	rec = f.do(t, "GET", "/authz/users/admin-1/effective-roles", nil, adminPrincipal())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant_id, got %d", rec.Code)
	}
}

func TestSweepEndpointSuperuserOnly(t *testing.T) {
	f := newHandlerFixture(t)
	db := f.store.DB()

	SeedUser(t, db, "root", "root@stride.test", true, nil)

	rec := f.do(t, "POST", "/authz/sweep", nil, adminPrincipal())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for tenant admin, got %d", rec.Code)
	}

	rec = f.do(t, "POST", "/authz/sweep", nil, &middleware.Principal{UserID: "root"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for superuser, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSearchAuditEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	// Produce an audit entry through a grant.
	if rec := f.do(t, "POST", "/authz/users/u1/roles", roleChangeRequest{
		Role:      RoleWorkspaceMember,
		ScopeType: ScopeWorkspace,
		ScopeID:   strPtr("w1"),
	}, adminPrincipal()); rec.Code != http.StatusCreated {
		t.Fatalf("grant failed: %d", rec.Code)
	}

	rec := f.do(t, "GET", "/authz/audit?event_type=authz.grant_role", nil, adminPrincipal())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Entries []*audit.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(resp.Entries))
	}
	if resp.Entries[0].ActorUserID != "admin-1" {
		t.Errorf("expected actor admin-1, got %s", resp.Entries[0].ActorUserID)
	}
}
