// Package permission answers "can principal X do action A on resource R".
// Membership is explicit-grant-only: hierarchy rank never confers a
// permission by itself, so a top-ranked role with no grants can do nothing.
package permission

import "github.com/authcore-io/authcore/internal/hierarchy"

// Snapshot is the authorization state of one principal at a single instant:
// the tags of its live roles and the (resource, action) pairs those roles
// are granted.
type Snapshot struct {
	Tags        []hierarchy.RoleTag `json:"tags"`
	Permissions []string            `json:"permissions"`
}

// Key formats a (resource, action) pair for membership lookups.
func Key(resource, action string) string {
	return resource + ":" + action
}

// Allows reports whether the snapshot contains the pair.
func (s Snapshot) Allows(resource, action string) bool {
	key := Key(resource, action)
	for _, p := range s.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

// HoldsAny reports whether the snapshot contains any of the tags exactly.
func (s Snapshot) HoldsAny(tags []hierarchy.RoleTag) bool {
	for _, want := range tags {
		for _, held := range s.Tags {
			if held == want {
				return true
			}
		}
	}
	return false
}
