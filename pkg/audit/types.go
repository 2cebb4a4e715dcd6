package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened. The authz.* events are the security
// trail for role lifecycle and denied access.
type EventType string

const (
	EventTypeGrantRole    EventType = "authz.grant_role"
	EventTypeRevokeRole   EventType = "authz.revoke_role"
	EventTypeExpireRole   EventType = "authz.expire_role"
	EventTypeAccessDenied EventType = "authz.access_denied"
	EventTypeImpersonate  EventType = "authz.impersonate"
)

// TargetType identifies the kind of object an event refers to.
type TargetType string

const (
	TargetTypeUser           TargetType = "user"
	TargetTypeTenant         TargetType = "tenant"
	TargetTypeWorkspace      TargetType = "workspace"
	TargetTypeTeam           TargetType = "team"
	TargetTypeGoal           TargetType = "goal"
	TargetTypeRoleAssignment TargetType = "role_assignment"
)

// Entry is one audit record. Role lifecycle events carry the role in NewRole
// (grants) or PreviousRole (revocations); denials carry the decision reason.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	EventType    EventType      `json:"event_type"`
	ActorUserID  string         `json:"actor_user_id"`
	TargetType   TargetType     `json:"target_type,omitempty"`
	TargetID     string         `json:"target_id,omitempty"`
	TenantID     *string        `json:"tenant_id,omitempty"`
	PreviousRole *string        `json:"previous_role,omitempty"`
	NewRole      *string        `json:"new_role,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewEntry creates an entry with a fresh id, the current UTC time and an
// empty metadata map ready to be filled in.
func NewEntry(eventType EventType, actorUserID string) *Entry {
	return &Entry{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		ActorUserID: actorUserID,
		Metadata:    make(map[string]any),
	}
}

// SearchFilter narrows a Search query. Zero values mean "no constraint".
type SearchFilter struct {
	EventTypes  []EventType
	ActorUserID string
	TargetType  TargetType
	TargetID    string
	TenantID    string
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}
