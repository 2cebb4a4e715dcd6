// Package api assembles the HTTP surface of the authorization service.
//
// The server owns the middleware chain (request IDs, request logging, HTTP
// metrics, rate limiting, caller identity) and mounts the domain routes:
//
//	/authz/...     role grants, effective roles, decision checks, audit search
//	/tenants/...   tenant, workspace and team management, tenant config
//	/goals/...     goal CRUD, publish lifecycle, check-in requests
//
// The service sits behind an authenticating gateway; caller identity arrives
// in X-Stride-User-ID and X-Stride-Tenant-ID headers and every route past the
// identity middleware requires one. Liveness, readiness and metrics are
// served from a separate listener wired up in cmd/stride.
package api
