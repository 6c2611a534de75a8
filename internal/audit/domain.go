// Package audit captures every mutation of a tracked entity as an immutable
// record, plus a curated user-facing activity stream.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit action tags. Every tracked mutation carries exactly one.
const (
	ActionCreate            = "CREATE"
	ActionUpdate            = "UPDATE"
	ActionDelete            = "DELETE"
	ActionRestore           = "RESTORE"
	ActionRoleAssigned      = "ROLE_GRANT"
	ActionRoleRevoked       = "ROLE_REVOKE"
	ActionPermissionChanged = "PERMISSION_CHANGE"
	ActionIDModification    = "ID_MODIFICATION_ATTEMPT"
)

// Activity types surfaced in the per-principal history.
const (
	ActivityRoleAssigned      = "role_assigned"
	ActivityRoleRevoked       = "role_revoked"
	ActivityPermissionChanged = "permission_changed"
	ActivityCreated           = "created"
	ActivityUpdated           = "updated"
	ActivityDeleted           = "deleted"
	ActivityRestored          = "restored"
)

// Entry is one mutation to record. Before and After are JSON snapshots of
// the entity state around the mutation; either may be nil for create/delete.
type Entry struct {
	Entity   string
	EntityID string
	Action   string
	Before   json.RawMessage
	After    json.RawMessage
	ActorID  int64
	At       time.Time
}

// Activity is one user-facing history item scoped to a principal.
type Activity struct {
	PrincipalID int64
	Type        string
	Description string
	Details     map[string]any
	At          time.Time
}

// Record is a persisted audit entry. Immutable once written.
type Record struct {
	ID       uuid.UUID
	Entity   string
	EntityID string
	Action   string
	Before   json.RawMessage
	After    json.RawMessage
	ActorID  int64
	At       time.Time
}

// ActivityRecord is a persisted activity item. Immutable once written.
type ActivityRecord struct {
	ID          uuid.UUID
	PrincipalID int64
	Type        string
	Description string
	Details     map[string]any
	At          time.Time
}

// Snapshot marshals an entity state for use as a before/after image.
// A nil input produces a nil snapshot.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
