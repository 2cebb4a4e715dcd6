package authz

// CanView reports whether the user may read the given goal. It is a pure
// function over the inputs; storage and caching are the caller's problem.
//
// Only the PRIVATE level restricts reads. The legacy levels (WORKSPACE_ONLY,
// TEAM_ONLY, MANAGER_CHAIN, EXEC_ONLY) still appear in stored rows but are
// interpreted as tenant-visible.
func CanView(uc *UserContext, goal Goal, cfg *TenantConfig) bool {
	if uc == nil {
		return false
	}
	if uc.IsSuperuser {
		return true
	}
	if goal.OwnerID == uc.UserID {
		return true
	}
	if !goal.Visibility.Restricted() {
		return true
	}

	// PRIVATE. Tenant owners see everything in their tenant.
	if uc.HasRoleAt(RoleTenantOwner, ScopeTenant, goal.TenantID) {
		return true
	}
	if cfg.WhitelistedFor(uc.UserID) {
		return true
	}
	// The flag predates the PRIVATE level rename; it still gates admin
	// access to restricted goals.
	if cfg != nil && cfg.AllowTenantAdminExecVisibility &&
		uc.HasRoleAt(RoleTenantAdmin, ScopeTenant, goal.TenantID) {
		return true
	}
	return false
}

// VisibleGoals filters goals down to those the user may read. Order is
// preserved. List surfaces use this instead of issuing one check per row.
func VisibleGoals(uc *UserContext, goals []Goal, cfg *TenantConfig) []Goal {
	out := make([]Goal, 0, len(goals))
	for _, g := range goals {
		if CanView(uc, g, cfg) {
			out = append(out, g)
		}
	}
	return out
}
