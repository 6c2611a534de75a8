// Package roles administers the role and permission catalogue, including
// the role-to-permission grants and cascade-consistent soft delete.
package roles

import (
	"time"

	"github.com/authcore-io/authcore/internal/hierarchy"
)

// Role is a named bundle of permissions ranked by its tag.
type Role struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Tag       hierarchy.RoleTag `json:"tag"`
	System    bool              `json:"system"`
	Active    bool              `json:"active"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Usable reports whether the role may be assigned or granted against.
func (r Role) Usable() bool {
	return r.Active && r.DeletedAt == nil
}

// Permission is an atomic capability on a (resource, action) pair.
type Permission struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Resource  string     `json:"resource"`
	Action    string     `json:"action"`
	System    bool       `json:"system"`
	Active    bool       `json:"active"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Usable reports whether the permission may be granted.
func (p Permission) Usable() bool {
	return p.Active && p.DeletedAt == nil
}

// Grant ties a permission to a role. At most one active grant exists per
// (role, permission) pair; revoked grants stay behind their delete marker.
type Grant struct {
	ID           int64      `json:"id"`
	RoleID       int64      `json:"role_id"`
	PermissionID int64      `json:"permission_id"`
	GrantedBy    int64      `json:"granted_by"`
	GrantedAt    time.Time  `json:"granted_at"`
	Active       bool       `json:"active"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}
