// Package tenants manages the organizational hierarchy: tenants, their
// workspaces and teams, and the per-tenant visibility configuration. All
// mutations are checked against the authorization engine and the tenant
// boundary before touching the database.
package tenants
