package authz

import (
	"context"
	"testing"
	"time"
)

func newBuilder(t *testing.T) (*ContextBuilder, *Store) {
	t.Helper()
	db := NewTestDB(t)
	store := NewStore(db)
	cache := NewLayeredCache(LayeredCacheConfig{TTL: time.Minute})
	return NewContextBuilder(store, cache), store
}

func TestBuildUserContextAggregatesRoles(t *testing.T) {
	builder, store := newBuilder(t)
	db := store.DB()
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")
	SeedUser(t, db, "u1", "u1@acme.test", false, nil)
	SeedWorkspace(t, db, "w1", "t1", "Engineering")
	SeedTeam(t, db, "tm1", "w1", "Platform")

	tenantID := "t1"
	wsID := "w1"
	teamID := "tm1"
	for _, a := range []RoleAssignment{
		{UserID: "u1", Role: RoleTenantViewer, ScopeType: ScopeTenant, ScopeID: &tenantID},
		{UserID: "u1", Role: RoleWorkspaceLead, ScopeType: ScopeWorkspace, ScopeID: &wsID},
		{UserID: "u1", Role: RoleTeamContributor, ScopeType: ScopeTeam, ScopeID: &teamID},
	} {
		if _, err := store.UpsertRoleAssignment(ctx, a); err != nil {
			t.Fatalf("UpsertRoleAssignment: %v", err)
		}
	}

	uc, err := builder.BuildUserContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}

	if uc.IsSuperuser {
		t.Error("expected regular user")
	}
	if !uc.HasRoleAt(RoleTenantViewer, ScopeTenant, "t1") {
		t.Error("missing tenant role")
	}
	if !uc.HasRoleAt(RoleWorkspaceLead, ScopeWorkspace, "w1") {
		t.Error("missing workspace role")
	}
	if !uc.HasRoleAt(RoleTeamContributor, ScopeTeam, "tm1") {
		t.Error("missing team role")
	}
	if len(uc.RoleAssignments) != 3 {
		t.Errorf("expected 3 assignments, got %d", len(uc.RoleAssignments))
	}
}

func TestBuildUserContextSuperuser(t *testing.T) {
	builder, store := newBuilder(t)
	db := store.DB()
	ctx := context.Background()

	SeedUser(t, db, "root", "root@stride.test", true, nil)
	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "root", Role: RoleSuperuser, ScopeType: ScopePlatform,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}

	uc, err := builder.BuildUserContext(ctx, "root")
	if err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}
	if !uc.IsSuperuser {
		t.Error("expected superuser flag")
	}
	// The platform row is carried by the flag, not by a scope map entry.
	if len(uc.TenantRoles)+len(uc.WorkspaceRoles)+len(uc.TeamRoles) != 0 {
		t.Error("platform assignments must not appear in scope maps")
	}
}

func TestBuildUserContextDirectReports(t *testing.T) {
	builder, store := newBuilder(t)
	db := store.DB()

	SeedUser(t, db, "mgr", "mgr@acme.test", false, nil)
	mgr := "mgr"
	SeedUser(t, db, "r1", "r1@acme.test", false, &mgr)
	SeedUser(t, db, "r2", "r2@acme.test", false, &mgr)

	uc, err := builder.BuildUserContext(context.Background(), "mgr")
	if err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}
	if len(uc.DirectReports) != 2 {
		t.Fatalf("expected 2 direct reports, got %d", len(uc.DirectReports))
	}
	if !uc.IsManagerOf("r1") || !uc.IsManagerOf("r2") {
		t.Error("expected r1 and r2 as direct reports")
	}
	if uc.IsManagerOf("mgr") {
		t.Error("a user is not their own manager")
	}
}

func TestBuildUserContextUnknownUser(t *testing.T) {
	builder, _ := newBuilder(t)

	_, err := builder.BuildUserContext(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for unknown user")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestBuildUserContextServedFromCache(t *testing.T) {
	builder, store := newBuilder(t)
	db := store.DB()
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")
	SeedUser(t, db, "u1", "u1@acme.test", false, nil)

	first, err := builder.BuildUserContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}
	if len(first.RoleAssignments) != 0 {
		t.Fatalf("expected no assignments yet")
	}

	// A grant made behind the cache's back is invisible until invalidation.
	tenantID := "t1"
	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantAdmin, ScopeType: ScopeTenant, ScopeID: &tenantID,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}

	cached, err := builder.BuildUserContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}
	if len(cached.RoleAssignments) != 0 {
		t.Fatal("expected stale cached context before invalidation")
	}

	if err := builder.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	fresh, err := builder.BuildUserContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}
	if len(fresh.RoleAssignments) != 1 {
		t.Fatal("expected fresh context after invalidation")
	}
}

func TestBuildUserContextUncachedBypassesCache(t *testing.T) {
	builder, store := newBuilder(t)
	db := store.DB()
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")
	SeedUser(t, db, "u1", "u1@acme.test", false, nil)

	if _, err := builder.BuildUserContext(ctx, "u1"); err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}

	tenantID := "t1"
	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantAdmin, ScopeType: ScopeTenant, ScopeID: &tenantID,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}

	uc, err := builder.BuildUserContextUncached(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildUserContextUncached: %v", err)
	}
	if len(uc.RoleAssignments) != 1 {
		t.Fatal("uncached build must read the database")
	}

	// The uncached path must not overwrite the cached entry either.
	cached, err := builder.BuildUserContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildUserContext: %v", err)
	}
	if len(cached.RoleAssignments) != 0 {
		t.Fatal("uncached build must leave the cache untouched")
	}
}

func TestExpiredAssignmentsExcludedFromContext(t *testing.T) {
	builder, store := newBuilder(t)
	db := store.DB()
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")
	SeedUser(t, db, "u1", "u1@acme.test", false, nil)

	tenantID := "t1"
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantAdmin, ScopeType: ScopeTenant,
		ScopeID: &tenantID, ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}

	uc, err := builder.BuildUserContextUncached(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildUserContextUncached: %v", err)
	}
	if uc.HasRoleAt(RoleTenantAdmin, ScopeTenant, "t1") {
		t.Fatal("expired grant must not confer the role")
	}
}
