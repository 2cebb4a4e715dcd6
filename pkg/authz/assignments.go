package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/strideworks/stride/pkg/audit"
	"github.com/strideworks/stride/pkg/observability"
)

// AssignmentService owns the role grant lifecycle: validation, tenant
// boundary enforcement, the idempotent upsert, cache invalidation and the
// audit trail. Nothing else writes role_assignments.
type AssignmentService struct {
	store   *Store
	builder *ContextBuilder
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// AssignmentServiceOption configures an AssignmentService.
type AssignmentServiceOption func(*AssignmentService)

// WithAssignmentAudit sets the audit sink for grant/revoke events.
func WithAssignmentAudit(l audit.Logger) AssignmentServiceOption {
	return func(s *AssignmentService) { s.audit = l }
}

// WithAssignmentLogger sets the structured logger.
func WithAssignmentLogger(l *observability.Logger) AssignmentServiceOption {
	return func(s *AssignmentService) { s.logger = l }
}

// WithAssignmentMetrics sets the metrics collector.
func WithAssignmentMetrics(m *observability.Metrics) AssignmentServiceOption {
	return func(s *AssignmentService) { s.metrics = m }
}

// NewAssignmentService creates the service.
func NewAssignmentService(store *Store, builder *ContextBuilder, opts ...AssignmentServiceOption) *AssignmentService {
	s := &AssignmentService{store: store, builder: builder}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = audit.NewNoopLogger()
	}
	return s
}

// AssignParams describes a grant or revocation request. CallerTenantID is
// nil when the actor is a platform superuser.
type AssignParams struct {
	UserID         string
	Role           Role
	ScopeType      ScopeType
	ScopeID        *string
	ActorUserID    string
	CallerTenantID *string
	ExpiresAt      *time.Time
}

func (p AssignParams) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("authz: user id is required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("authz: unknown role %q", p.Role)
	}
	tier, _ := p.Role.ScopeTier()
	if tier != p.ScopeType {
		return fmt.Errorf("authz: role %s is granted at %s scope, not %s", p.Role, tier, p.ScopeType)
	}
	if p.ScopeType == ScopePlatform {
		if p.ScopeID != nil {
			return fmt.Errorf("authz: platform-scope grants take no scope id")
		}
	} else if p.ScopeID == nil || *p.ScopeID == "" {
		return fmt.Errorf("authz: scope id is required for %s-scope grants", p.ScopeType)
	}
	return nil
}

// resolveOwningTenant walks the scope up to the tenant that owns it. For
// team scope that is team -> workspace -> tenant. Platform scope has no
// owning tenant and returns "".
func (s *AssignmentService) resolveOwningTenant(ctx context.Context, scopeType ScopeType, scopeID *string) (string, error) {
	switch scopeType {
	case ScopePlatform:
		return "", nil
	case ScopeTenant:
		exists, err := s.store.TenantExists(ctx, *scopeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", &NotFoundError{Kind: "tenant", ID: *scopeID}
		}
		return *scopeID, nil
	case ScopeWorkspace:
		ws, err := s.store.GetWorkspace(ctx, *scopeID)
		if err != nil {
			return "", err
		}
		return ws.TenantID, nil
	case ScopeTeam:
		team, err := s.store.GetTeam(ctx, *scopeID)
		if err != nil {
			return "", err
		}
		ws, err := s.store.GetWorkspace(ctx, team.WorkspaceID)
		if err != nil {
			return "", err
		}
		return ws.TenantID, nil
	}
	return "", fmt.Errorf("authz: unknown scope type %q", scopeType)
}

func (s *AssignmentService) guardBoundary(ctx context.Context, p AssignParams) error {
	owningTenant, err := s.resolveOwningTenant(ctx, p.ScopeType, p.ScopeID)
	if err != nil {
		return err
	}
	if p.ScopeType == ScopePlatform {
		// Platform grants come only from platform operators.
		if p.CallerTenantID != nil {
			return &BoundaryError{CallerTenantID: p.CallerTenantID}
		}
		return nil
	}
	return AssertSameTenant(owningTenant, p.CallerTenantID)
}

// AssignRole grants a role to a user at a scope. Re-granting an existing
// tuple refreshes updated_at and expires_at instead of duplicating the row.
// The target's cached context is invalidated and a GRANT_ROLE audit entry is
// written synchronously; an audit sink failure is surfaced to monitoring but
// does not undo the grant.
func (s *AssignmentService) AssignRole(ctx context.Context, p AssignParams) (RoleAssignment, error) {
	if err := p.validate(); err != nil {
		return RoleAssignment{}, err
	}
	if _, err := s.store.GetUser(ctx, p.UserID); err != nil {
		return RoleAssignment{}, err
	}
	if err := s.guardBoundary(ctx, p); err != nil {
		return RoleAssignment{}, err
	}

	actor := p.ActorUserID
	stored, err := s.store.UpsertRoleAssignment(ctx, RoleAssignment{
		UserID:     p.UserID,
		Role:       p.Role,
		ScopeType:  p.ScopeType,
		ScopeID:    p.ScopeID,
		AssignedBy: &actor,
		ExpiresAt:  p.ExpiresAt,
	})
	if err != nil {
		return RoleAssignment{}, err
	}

	s.invalidate(ctx, p.UserID)
	if s.metrics != nil {
		s.metrics.RoleGrantsTotal.WithLabelValues(string(p.Role), string(p.ScopeType)).Inc()
	}
	s.recordLifecycle(ctx, audit.EventTypeGrantRole, p, nil, (*string)(&p.Role))

	return stored, nil
}

// RevokeRole removes a grant. Revoking a tuple that does not exist is a
// no-op success; the boundary guard still applies so a cross-tenant caller
// cannot probe for grants.
func (s *AssignmentService) RevokeRole(ctx context.Context, p AssignParams) error {
	if err := p.validate(); err != nil {
		return err
	}
	if err := s.guardBoundary(ctx, p); err != nil {
		return err
	}

	removed, err := s.store.DeleteRoleAssignment(ctx, p.UserID, p.Role, p.ScopeType, p.ScopeID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.invalidate(ctx, p.UserID)
	if s.metrics != nil {
		s.metrics.RoleRevokesTotal.WithLabelValues(string(p.Role), string(p.ScopeType)).Inc()
	}
	s.recordLifecycle(ctx, audit.EventTypeRevokeRole, p, (*string)(&p.Role), nil)

	return nil
}

// SweepExpired removes every assignment whose expiry has passed and
// invalidates the affected users' contexts. It returns how many grants were
// removed.
func (s *AssignmentService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredAssignments(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, a := range expired {
		if err := s.store.DeleteAssignmentByID(ctx, a.ID); err != nil {
			return swept, err
		}
		swept++
		s.invalidate(ctx, a.UserID)

		role := string(a.Role)
		entry := audit.NewEntry(audit.EventTypeExpireRole, "system")
		entry.TargetType = audit.TargetTypeUser
		entry.TargetID = a.UserID
		entry.PreviousRole = &role
		entry.Metadata["scope_type"] = string(a.ScopeType)
		if a.ScopeID != nil {
			entry.Metadata["scope_id"] = *a.ScopeID
		}
		s.record(ctx, entry)
	}

	if s.metrics != nil && swept > 0 {
		s.metrics.ExpiredGrantsSwept.Add(float64(swept))
	}
	return swept, nil
}

func (s *AssignmentService) invalidate(ctx context.Context, userID string) {
	if s.builder == nil {
		return
	}
	if err := s.builder.Invalidate(ctx, userID); err != nil && s.logger != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to invalidate cached context")
	}
}

func (s *AssignmentService) recordLifecycle(ctx context.Context, et audit.EventType, p AssignParams, previous, next *string) {
	entry := audit.NewEntry(et, p.ActorUserID)
	entry.TargetType = audit.TargetTypeUser
	entry.TargetID = p.UserID
	entry.TenantID = p.CallerTenantID
	entry.PreviousRole = previous
	entry.NewRole = next
	entry.Metadata["scope_type"] = string(p.ScopeType)
	if p.ScopeID != nil {
		entry.Metadata["scope_id"] = *p.ScopeID
	}
	if p.ExpiresAt != nil {
		entry.Metadata["expires_at"] = p.ExpiresAt.UTC().Format(time.RFC3339)
	}
	s.record(ctx, entry)
}

func (s *AssignmentService) record(ctx context.Context, entry *audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.AuditFailuresTotal.Inc()
		}
		if s.logger != nil {
			s.logger.WithError(err).WithField("event_type", string(entry.EventType)).Error("failed to record audit entry")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.AuditEntriesTotal.WithLabelValues(string(entry.EventType)).Inc()
	}
}
