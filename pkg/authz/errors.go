package authz

import (
	"errors"
	"fmt"
)

// ErrMissingTenantID is returned when an action that requires a tenant scope
// is checked against a resource context with no tenant id. This is a caller
// bug, not a deny: denials are Decisions, never errors.
var ErrMissingTenantID = errors.New("authz: resource context is missing a tenant id")

// NotFoundError indicates that a referenced user, workspace, team or tenant
// does not exist. It is never folded into a deny or an allow; callers see it
// as a typed error.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err (or anything it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// BoundaryError indicates a write whose declared scope does not belong to
// the caller's tenant. It is always fatal to the operation.
type BoundaryError struct {
	TargetTenantID string
	CallerTenantID *string
}

func (e *BoundaryError) Error() string {
	caller := "<none>"
	if e.CallerTenantID != nil {
		caller = *e.CallerTenantID
	}
	return fmt.Sprintf("tenant boundary violation: target tenant %q, caller tenant %q", e.TargetTenantID, caller)
}

// Reason returns the decision reason code for the violation.
func (e *BoundaryError) Reason() Reason { return ReasonTenantBoundary }

// IsBoundaryViolation reports whether err is a tenant boundary violation.
func IsBoundaryViolation(err error) bool {
	var be *BoundaryError
	return errors.As(err, &be)
}

// DeniedError wraps a negative Decision for service layers that surface
// denials as errors. The transport maps it to a 403 while keeping the reason
// code for operators.
type DeniedError struct {
	Action Action
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("action %s denied: %s", e.Action, e.Reason)
}

// IsDenied reports whether err is a DeniedError and returns it if so.
func IsDenied(err error) (*DeniedError, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
