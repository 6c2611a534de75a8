// Package principal tracks the accounts the authorization core reasons
// about. Principals are created by the external identity provider; this
// core only deactivates and restores them.
package principal

import "time"

// Principal is one account in the system.
type Principal struct {
	ID         int64      `json:"id"`
	ExternalID string     `json:"external_id"`
	Active     bool       `json:"active"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Usable reports whether the principal may take part in privilege checks.
func (p Principal) Usable() bool {
	return p.Active && p.DeletedAt == nil
}
