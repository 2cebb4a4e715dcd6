// Package authz is the central authorization engine: role grants across the
// platform/tenant/workspace/team scope hierarchy, per-goal visibility, tenant
// isolation and the layered user-context cache that keeps decisions cheap.
//
// All permission checks flow through Engine.Authorize. Denials are ordinary
// decisions carrying a machine-readable reason; errors are reserved for
// malformed input.
package authz
