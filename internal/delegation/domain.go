// Package delegation lets a privileged principal authorize another to
// manage a bounded subset of role tags, always strictly below the
// delegator's own rank.
package delegation

import (
	"time"

	"github.com/authcore-io/authcore/internal/hierarchy"
)

// Delegation is one delegated-administration authorization.
type Delegation struct {
	ID          int64               `json:"id"`
	DelegatorID int64               `json:"delegator_id"`
	DelegateID  int64               `json:"delegate_id"`
	RoleTags    []hierarchy.RoleTag `json:"role_tags"`
	Active      bool                `json:"active"`
	DeletedAt   *time.Time          `json:"deleted_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Covers reports whether the delegation authorizes managing tag.
func (d Delegation) Covers(tag hierarchy.RoleTag) bool {
	if !d.Active || d.DeletedAt != nil {
		return false
	}
	for _, t := range d.RoleTags {
		if t == tag {
			return true
		}
	}
	return false
}
