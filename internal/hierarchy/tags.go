// Package hierarchy maps role tags to privilege levels.
//
// The tag set is closed. Adding a tag means touching every switch in this
// package, which is intentional: each dispatch site must be reviewed when
// the hierarchy grows.
package hierarchy

import (
	"fmt"

	"github.com/authcore-io/authcore/internal/authz"
)

// RoleTag identifies one tier of the role hierarchy.
type RoleTag string

const (
	TagSuperAdmin RoleTag = "super_admin"
	TagAdmin      RoleTag = "admin"
	TagManager    RoleTag = "manager"
	TagSupervisor RoleTag = "supervisor"
	TagOperator   RoleTag = "operator"
	TagUser       RoleTag = "user"
	TagGuest      RoleTag = "guest"
)

// levels is the single canonical tag-to-rank table. Higher means more
// privileged. Keep it strictly ordered; Level relies on every defined tag
// having a distinct positive rank.
var levels = map[RoleTag]int{
	TagSuperAdmin: 7,
	TagAdmin:      6,
	TagManager:    5,
	TagSupervisor: 4,
	TagOperator:   3,
	TagUser:       2,
	TagGuest:      1,
}

// Tags returns all defined tags ordered from most to least privileged.
func Tags() []RoleTag {
	return []RoleTag{TagSuperAdmin, TagAdmin, TagManager, TagSupervisor, TagOperator, TagUser, TagGuest}
}

// Level returns the privilege rank for tag. The second result is false for
// tags outside the closed set.
func Level(tag RoleTag) (int, bool) {
	level, ok := levels[tag]
	return level, ok
}

// MustLevel returns the privilege rank for a tag known to be valid.
// It panics on an unknown tag; callers must parse inputs first.
func MustLevel(tag RoleTag) int {
	level, ok := levels[tag]
	if !ok {
		panic(fmt.Sprintf("hierarchy: unknown role tag %q", tag))
	}
	return level
}

// ParseTag validates an externally supplied tag string.
func ParseTag(raw string) (RoleTag, error) {
	tag := RoleTag(raw)
	if _, ok := levels[tag]; !ok {
		return "", fmt.Errorf("%w: unknown role tag %q", authz.ErrValidation, raw)
	}
	return tag, nil
}

// DisplayName returns the human label for a tag. The switch is exhaustive
// over the closed set.
func DisplayName(tag RoleTag) string {
	switch tag {
	case TagSuperAdmin:
		return "Super Administrator"
	case TagAdmin:
		return "Administrator"
	case TagManager:
		return "Manager"
	case TagSupervisor:
		return "Supervisor"
	case TagOperator:
		return "Operator"
	case TagUser:
		return "User"
	case TagGuest:
		return "Guest"
	default:
		return string(tag)
	}
}

// IsValid reports whether tag belongs to the closed set.
func (t RoleTag) IsValid() bool {
	_, ok := levels[t]
	return ok
}

func (t RoleTag) String() string {
	return string(t)
}
