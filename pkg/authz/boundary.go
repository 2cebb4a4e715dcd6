package authz

// Tenant boundary guard. Every scope-mutating write path calls one of these
// before touching storage, independently of what Authorize already decided.
// A nil caller tenant means a platform superuser acting across tenants.

// AssertSameTenant fails with a BoundaryError unless the caller's tenant
// matches the tenant that owns the target scope, or the caller is a
// superuser.
func AssertSameTenant(targetTenantID string, callerTenantID *string) error {
	if callerTenantID == nil {
		return nil
	}
	if *callerTenantID != targetTenantID {
		return &BoundaryError{
			TargetTenantID: targetTenantID,
			CallerTenantID: callerTenantID,
		}
	}
	return nil
}

// AssertCanMutateTenant fails when the caller has no tenant affiliation and
// is not a superuser. Requests that lost their tenant header somewhere in the
// chain end here rather than in a cross-tenant write.
func AssertCanMutateTenant(callerTenantID *string, isSuperuser bool) error {
	if isSuperuser {
		return nil
	}
	if callerTenantID == nil || *callerTenantID == "" {
		return &BoundaryError{CallerTenantID: callerTenantID}
	}
	return nil
}
