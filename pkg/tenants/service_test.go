package tenants

import (
	"context"
	"testing"

	"github.com/strideworks/stride/pkg/authz"
)

type fixture struct {
	service    *Service
	store      *Store
	authzStore *authz.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := authz.NewTestDB(t)
	authzStore := authz.NewStore(db)
	cache := authz.NewLayeredCache(authz.LayeredCacheConfig{LocalSize: 128})
	builder := authz.NewContextBuilder(authzStore, cache)
	engine := authz.NewEngine()
	assignments := authz.NewAssignmentService(authzStore, builder)
	store := NewStore(db)

	authz.SeedTenant(t, db, "t1", "acme")
	authz.SeedTenant(t, db, "t2", "globex")
	authz.SeedUser(t, db, "root", "root@stride.io", true, nil)
	authz.SeedUser(t, db, "owner-1", "owner@acme.io", false, nil)
	authz.SeedUser(t, db, "admin-1", "admin@acme.io", false, nil)
	authz.SeedUser(t, db, "member-1", "member@acme.io", false, nil)
	authz.SeedUser(t, db, "outsider-1", "admin@globex.io", false, nil)

	grant := func(userID string, role authz.Role, scopeType authz.ScopeType, scopeID *string) {
		t.Helper()
		if _, err := assignments.AssignRole(context.Background(), authz.AssignParams{
			UserID:      userID,
			Role:        role,
			ScopeType:   scopeType,
			ScopeID:     scopeID,
			ActorUserID: "root",
		}); err != nil {
			t.Fatalf("grant %s to %s: %v", role, userID, err)
		}
	}
	t1 := "t1"
	t2 := "t2"
	grant("admin-1", authz.RoleTenantAdmin, authz.ScopeTenant, &t1)
	grant("member-1", authz.RoleTenantViewer, authz.ScopeTenant, &t1)
	grant("outsider-1", authz.RoleTenantAdmin, authz.ScopeTenant, &t2)

	return &fixture{
		service:    NewService(store, engine, builder, assignments),
		store:      store,
		authzStore: authzStore,
	}
}

func strPtr(s string) *string { return &s }

func superuser() Caller  { return Caller{UserID: "root"} }
func acmeAdmin() Caller  { return Caller{UserID: "admin-1", TenantID: strPtr("t1")} }
func acmeMember() Caller { return Caller{UserID: "member-1", TenantID: strPtr("t1")} }
func globexAdmin() Caller {
	return Caller{UserID: "outsider-1", TenantID: strPtr("t2")}
}

func TestCreateTenantRequiresSuperuser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.CreateTenant(ctx, acmeAdmin(), "initech", "owner-1"); err == nil {
		t.Fatal("tenant admin must not provision tenants")
	}

	created, err := f.service.CreateTenant(ctx, superuser(), "initech", "owner-1")
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if created.Name != "initech" {
		t.Errorf("unexpected tenant name %q", created.Name)
	}

	got, err := f.store.GetTenant(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("round trip mismatch: %s vs %s", got.ID, created.ID)
	}
}

func TestCreateTenantBootstrapsOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateTenant(ctx, superuser(), "initech", "owner-1")
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	assignments, err := f.authzStore.ListRoleAssignments(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListRoleAssignments: %v", err)
	}
	found := false
	for _, a := range assignments {
		if a.Role == authz.RoleTenantOwner && a.ScopeID != nil && *a.ScopeID == created.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected a TENANT_OWNER grant on the new tenant")
	}
}

func TestRenameTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.RenameTenant(ctx, acmeAdmin(), "t1", "acme corp"); err != nil {
		t.Fatalf("RenameTenant: %v", err)
	}
	got, err := f.store.GetTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.Name != "acme corp" {
		t.Errorf("rename not persisted, got %q", got.Name)
	}

	if err := f.service.RenameTenant(ctx, acmeMember(), "t1", "evil corp"); err == nil {
		t.Fatal("member must not rename the tenant")
	}
	if err := f.service.RenameTenant(ctx, globexAdmin(), "t1", "evil corp"); err == nil {
		t.Fatal("cross-tenant rename must fail")
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.service.CreateWorkspace(ctx, acmeAdmin(), "t1", "engineering")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if ws.TenantID != "t1" {
		t.Errorf("workspace bound to wrong tenant %q", ws.TenantID)
	}

	if _, err := f.service.CreateWorkspace(ctx, acmeMember(), "t1", "rogue"); err == nil {
		t.Fatal("member must not create workspaces")
	}
	if _, err := f.service.CreateWorkspace(ctx, globexAdmin(), "t1", "rogue"); err == nil {
		t.Fatal("cross-tenant workspace creation must fail")
	}

	list, err := f.service.ListWorkspaces(ctx, acmeMember(), "t1")
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(list) != 1 || list[0].ID != ws.ID {
		t.Errorf("unexpected workspace listing %+v", list)
	}

	if err := f.service.DeleteWorkspace(ctx, globexAdmin(), ws.ID); err == nil {
		t.Fatal("cross-tenant workspace delete must fail")
	}
	if err := f.service.DeleteWorkspace(ctx, acmeAdmin(), ws.ID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	if _, err := f.store.GetWorkspace(ctx, ws.ID); !authz.IsNotFound(err) {
		t.Errorf("expected workspace gone, got %v", err)
	}
}

func TestTeamLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.service.CreateWorkspace(ctx, acmeAdmin(), "t1", "engineering")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	team, err := f.service.CreateTeam(ctx, acmeAdmin(), ws.ID, "platform")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if team.TenantID != "t1" {
		t.Errorf("team resolved to wrong tenant %q", team.TenantID)
	}

	if _, err := f.service.CreateTeam(ctx, globexAdmin(), ws.ID, "rogue"); err == nil {
		t.Fatal("cross-tenant team creation must fail")
	}

	teams, err := f.service.ListTeams(ctx, acmeMember(), ws.ID)
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(teams) != 1 || teams[0].ID != team.ID {
		t.Errorf("unexpected team listing %+v", teams)
	}

	if err := f.service.DeleteTeam(ctx, acmeAdmin(), team.ID); err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}
	if err := f.service.DeleteTeam(ctx, acmeAdmin(), team.ID); !authz.IsNotFound(err) {
		t.Errorf("expected not found on double delete, got %v", err)
	}
}

func TestMutationsRequireTenantAffiliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A request that lost its tenant header keeps the caller's stored grants,
	// but must stop at the boundary guard before any write.
	detached := Caller{UserID: "admin-1"}
	if err := f.service.RenameTenant(ctx, detached, "t1", "headerless corp"); !authz.IsBoundaryViolation(err) {
		t.Errorf("rename: expected boundary violation, got %v", err)
	}
	if _, err := f.service.CreateWorkspace(ctx, detached, "t1", "rogue"); !authz.IsBoundaryViolation(err) {
		t.Errorf("create workspace: expected boundary violation, got %v", err)
	}
}

func TestGetTenantMembershipBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.GetTenant(ctx, acmeMember(), "t1"); err != nil {
		t.Fatalf("member should read own tenant: %v", err)
	}
	if _, err := f.service.GetTenant(ctx, globexAdmin(), "t1"); !authz.IsBoundaryViolation(err) {
		t.Errorf("expected boundary violation, got %v", err)
	}
	if _, err := f.service.GetTenant(ctx, superuser(), "t1"); err != nil {
		t.Fatalf("superuser should read any tenant: %v", err)
	}
}

func TestTenantConfigHeldToSettingsBar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := &authz.TenantConfig{
		ID:                             "t1",
		AllowTenantAdminExecVisibility: true,
	}
	if err := f.service.UpdateTenantConfig(ctx, acmeAdmin(), f.authzStore, cfg); err != nil {
		t.Fatalf("UpdateTenantConfig: %v", err)
	}

	got, err := f.service.GetTenantConfig(ctx, acmeAdmin(), f.authzStore, "t1")
	if err != nil {
		t.Fatalf("GetTenantConfig: %v", err)
	}
	if !got.AllowTenantAdminExecVisibility {
		t.Error("config flag not persisted")
	}

	if _, err := f.service.GetTenantConfig(ctx, acmeMember(), f.authzStore, "t1"); err == nil {
		t.Fatal("member must not read tenant config")
	}
	if err := f.service.UpdateTenantConfig(ctx, globexAdmin(), f.authzStore, cfg); err == nil {
		t.Fatal("cross-tenant config write must fail")
	}
}
