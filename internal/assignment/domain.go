// Package assignment manages role holdings of principals: grants, revokes,
// temporary grants and their scheduled expiration.
package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/authcore-io/authcore/internal/hierarchy"
)

// Assignment is one (principal, role) holding. At most one active,
// non-deleted assignment exists per pair; a revoke leaves the record behind
// its delete marker and a re-grant creates a fresh one.
type Assignment struct {
	ID          int64             `json:"id"`
	PrincipalID int64             `json:"principal_id"`
	RoleID      int64             `json:"role_id"`
	RoleTag     hierarchy.RoleTag `json:"role_tag"`
	Scope       string            `json:"scope,omitempty"`
	AssignedBy  int64             `json:"assigned_by"`
	AssignedAt  time.Time         `json:"assigned_at"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Active      bool              `json:"active"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
}

// Live reports whether the assignment counts for privilege at instant now.
func (a Assignment) Live(now time.Time) bool {
	if !a.Active || a.DeletedAt != nil {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// Level returns the hierarchy rank of the held role.
func (a Assignment) Level() int {
	level, _ := hierarchy.Level(a.RoleTag)
	return level
}

// ScheduledExpiration is the persisted contract with the expiration worker:
// the referenced assignment must be retired once ExecuteAt passes. Rows are
// processed at least once; processing an already-inactive assignment is a
// no-op.
type ScheduledExpiration struct {
	TaskID       uuid.UUID  `json:"task_id"`
	AssignmentID int64      `json:"assignment_id"`
	ExecuteAt    time.Time  `json:"execute_at"`
	Processed    bool       `json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}
