package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStoreGetUser(t *testing.T) {
	db := NewTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	mgr := "mgr-1"
	SeedUser(t, db, "mgr-1", "mgr@acme.test", false, nil)
	SeedUser(t, db, "u1", "u1@acme.test", false, &mgr)

	u, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Email != "u1@acme.test" {
		t.Errorf("expected email u1@acme.test, got %s", u.Email)
	}
	if u.ManagerID == nil || *u.ManagerID != "mgr-1" {
		t.Errorf("expected manager mgr-1, got %v", u.ManagerID)
	}

	_, err = store.GetUser(ctx, "ghost")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestStoreUpsertRoundTripsPlatformScope(t *testing.T) {
	db := NewTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	SeedUser(t, db, "root", "root@stride.test", true, nil)

	a, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "root", Role: RoleSuperuser, ScopeType: ScopePlatform,
	})
	if err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}
	if a.ScopeID != nil {
		t.Errorf("platform scope id must round-trip as nil, got %v", *a.ScopeID)
	}

	assignments, err := store.ListRoleAssignments(ctx, "root")
	if err != nil {
		t.Fatalf("ListRoleAssignments: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(assignments))
	}
	if assignments[0].ScopeID != nil {
		t.Error("platform scope id must be nil after listing")
	}
}

func TestStoreUpsertTouchesExistingRow(t *testing.T) {
	db := NewTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")
	SeedUser(t, db, "u1", "u1@acme.test", false, nil)

	tenantID := "t1"
	first, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantAdmin, ScopeType: ScopeTenant, ScopeID: &tenantID,
	})
	if err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}

	future := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	second, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantAdmin, ScopeType: ScopeTenant,
		ScopeID: &tenantID, ExpiresAt: &future,
	})
	if err != nil {
		t.Fatalf("UpsertRoleAssignment again: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("upsert must keep the row id: %s vs %s", first.ID, second.ID)
	}
	if second.ExpiresAt == nil {
		t.Error("expected expiry to be updated")
	}
	if !second.UpdatedAt.After(second.AssignedAt) && !second.UpdatedAt.Equal(second.AssignedAt) {
		t.Error("updated_at must not precede assigned_at")
	}
}

func TestStoreDeleteRoleAssignment(t *testing.T) {
	db := NewTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")
	SeedUser(t, db, "u1", "u1@acme.test", false, nil)

	tenantID := "t1"
	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantAdmin, ScopeType: ScopeTenant, ScopeID: &tenantID,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}

	removed, err := store.DeleteRoleAssignment(ctx, "u1", RoleTenantAdmin, ScopeTenant, &tenantID)
	if err != nil {
		t.Fatalf("DeleteRoleAssignment: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to be reported")
	}

	removed, err = store.DeleteRoleAssignment(ctx, "u1", RoleTenantAdmin, ScopeTenant, &tenantID)
	if err != nil {
		t.Fatalf("DeleteRoleAssignment again: %v", err)
	}
	if removed {
		t.Fatal("second delete must report nothing removed")
	}
}

func TestStoreTenantConfigDefaultsWhenMissing(t *testing.T) {
	db := NewTestDB(t)
	store := NewStore(db)

	cfg, err := store.GetTenantConfig(context.Background(), "t-missing")
	if err != nil {
		t.Fatalf("GetTenantConfig: %v", err)
	}
	if cfg == nil || cfg.ID != "t-missing" {
		t.Fatalf("expected default config for the tenant, got %+v", cfg)
	}
	if cfg.AllowTenantAdminExecVisibility {
		t.Error("default config must not enable exec visibility")
	}
}

func TestStoreTenantConfigRoundTrip(t *testing.T) {
	db := NewTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")

	cfg := &TenantConfig{
		ID:                             "t1",
		AllowTenantAdminExecVisibility: true,
		PrivateWhitelist:               []string{"u1", "u2"},
		Metadata: &TenantConfigMetadata{
			ExecOnlyWhitelist: []string{"u3"},
		},
	}
	if err := store.SaveTenantConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveTenantConfig: %v", err)
	}

	got, err := store.GetTenantConfig(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenantConfig: %v", err)
	}
	if !got.AllowTenantAdminExecVisibility {
		t.Error("exec visibility flag lost")
	}
	if len(got.PrivateWhitelist) != 2 {
		t.Errorf("expected 2 whitelist entries, got %d", len(got.PrivateWhitelist))
	}
	if !got.WhitelistedFor("u3") {
		t.Error("metadata whitelist lost")
	}

	// Saving again overwrites in place.
	cfg.AllowTenantAdminExecVisibility = false
	if err := store.SaveTenantConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveTenantConfig again: %v", err)
	}
	got, err = store.GetTenantConfig(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenantConfig: %v", err)
	}
	if got.AllowTenantAdminExecVisibility {
		t.Error("expected flag cleared after second save")
	}
}

func TestStoreListExpiredAssignments(t *testing.T) {
	db := NewTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	SeedTenant(t, db, "t1", "Acme")
	SeedUser(t, db, "u1", "u1@acme.test", false, nil)

	tenantID := "t1"
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantAdmin, ScopeType: ScopeTenant,
		ScopeID: &tenantID, ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}
	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleTenantViewer, ScopeType: ScopeTenant,
		ScopeID: &tenantID, ExpiresAt: &future,
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}
	if _, err := store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID: "u1", Role: RoleWorkspaceMember, ScopeType: ScopeWorkspace, ScopeID: strPtr("w1"),
	}); err != nil {
		t.Fatalf("UpsertRoleAssignment: %v", err)
	}

	expired, err := store.ListExpiredAssignments(ctx, now)
	if err != nil {
		t.Fatalf("ListExpiredAssignments: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired assignment, got %d", len(expired))
	}
	if expired[0].Role != RoleTenantAdmin {
		t.Errorf("expected the past grant, got %s", expired[0].Role)
	}
}

func TestStorePropagatesQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT .+ FROM users").WillReturnError(boom)

	store := NewStore(db)
	_, err = store.GetUser(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
