package roles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
)

// Invalidator drops cached authorization state after catalogue mutations.
type Invalidator interface {
	InvalidateRole(ctx context.Context, roleID int64)
}

// Service administers roles, permissions and role-to-permission grants.
type Service struct {
	repo        Repository
	trail       *audit.Trail
	invalidator Invalidator
	collator    *collate.Collator
}

// NewService constructs a role administration service. invalidator may be nil.
func NewService(repo Repository, trail *audit.Trail, invalidator Invalidator) *Service {
	return &Service{
		repo:        repo,
		trail:       trail,
		invalidator: invalidator,
		collator:    collate.New(language.English, collate.IgnoreCase),
	}
}

// CreateRole adds a role for the given tag.
func (s *Service) CreateRole(ctx context.Context, name, rawTag string, actorID int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", authz.ErrValidation)
	}
	tag, err := hierarchy.ParseTag(rawTag)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, name, tag, false)
	if err != nil {
		return Role{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "roles",
		EntityID: strconv.FormatInt(role.ID, 10),
		Action:   audit.ActionCreate,
		After:    audit.Snapshot(role),
		ActorID:  actorID,
	})
	return role, nil
}

// RenameRole changes a role's display name. A request that also carries a
// different role id for the same record trips the identity guard first.
func (s *Service) RenameRole(ctx context.Context, id int64, name string, actorID int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", authz.ErrValidation)
	}
	before, err := s.repo.FindRoleByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !before.Usable() {
		return Role{}, fmt.Errorf("%w: role %d retired", authz.ErrInvalidState, id)
	}
	after, err := s.repo.RenameRole(ctx, id, name)
	if err != nil {
		return Role{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "roles",
		EntityID: strconv.FormatInt(id, 10),
		Action:   audit.ActionUpdate,
		Before:   audit.Snapshot(before),
		After:    audit.Snapshot(after),
		ActorID:  actorID,
	})
	return after, nil
}

// GuardRoleIdentity rejects any attempt to rewrite a role's primary
// identifier and audits the attempt itself.
func (s *Service) GuardRoleIdentity(ctx context.Context, id, requestedID, actorID int64) error {
	if requestedID == 0 || requestedID == id {
		return nil
	}
	current, err := s.repo.FindRoleByID(ctx, id)
	if err != nil {
		return err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "roles",
		EntityID: strconv.FormatInt(id, 10),
		Action:   audit.ActionIDModification,
		Before:   audit.Snapshot(current),
		After:    audit.Snapshot(map[string]int64{"id": requestedID}),
		ActorID:  actorID,
	})
	return fmt.Errorf("%w: role identifier is immutable", authz.ErrFatal)
}

// DeleteRole soft-deletes a role and cascades to its assignments and
// grants. System roles refuse deletion.
func (s *Service) DeleteRole(ctx context.Context, id, actorID int64) error {
	before, err := s.repo.FindRoleByID(ctx, id)
	if err != nil {
		return err
	}
	if before.System {
		return fmt.Errorf("%w: system role %s cannot be deleted", authz.ErrInvalidState, before.Tag)
	}
	if !before.Usable() {
		return fmt.Errorf("%w: role %d already retired", authz.ErrInvalidState, id)
	}
	after, err := s.repo.SoftDeleteRoleCascade(ctx, id)
	if err != nil {
		return err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "roles",
		EntityID: strconv.FormatInt(id, 10),
		Action:   audit.ActionDelete,
		Before:   audit.Snapshot(before),
		After:    audit.Snapshot(after),
		ActorID:  actorID,
	})
	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, id)
	}
	return nil
}

// ListRoles returns the catalogue sorted by display name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	s.sortRoles(roles)
	return roles, nil
}

// CreatePermission adds a permission for a (resource, action) pair.
func (s *Service) CreatePermission(ctx context.Context, name, resource, action string, actorID int64) (Permission, error) {
	name = strings.TrimSpace(name)
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if name == "" || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: name, resource and action required", authz.ErrValidation)
	}
	perm, err := s.repo.CreatePermission(ctx, name, resource, action, false)
	if err != nil {
		return Permission{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "permissions",
		EntityID: strconv.FormatInt(perm.ID, 10),
		Action:   audit.ActionCreate,
		After:    audit.Snapshot(perm),
		ActorID:  actorID,
	})
	return perm, nil
}

// DeletePermission soft-deletes a permission and its live grants.
func (s *Service) DeletePermission(ctx context.Context, id, actorID int64) error {
	before, err := s.repo.FindPermissionByID(ctx, id)
	if err != nil {
		return err
	}
	if before.System {
		return fmt.Errorf("%w: system permission cannot be deleted", authz.ErrInvalidState)
	}
	if !before.Usable() {
		return fmt.Errorf("%w: permission %d already retired", authz.ErrInvalidState, id)
	}
	after, err := s.repo.SoftDeletePermission(ctx, id)
	if err != nil {
		return err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "permissions",
		EntityID: strconv.FormatInt(id, 10),
		Action:   audit.ActionDelete,
		Before:   audit.Snapshot(before),
		After:    audit.Snapshot(after),
		ActorID:  actorID,
	})
	return nil
}

// ListPermissions returns the catalogue sorted by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	s.collator.Sort(permissionsByName(perms))
	return perms, nil
}

// GrantPermission attaches a permission to a role. Duplicate live grants
// surface as Conflict.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID, actorID int64) (Grant, error) {
	role, err := s.repo.FindRoleByID(ctx, roleID)
	if err != nil {
		return Grant{}, err
	}
	if !role.Usable() {
		return Grant{}, fmt.Errorf("%w: role %d retired", authz.ErrInvalidState, roleID)
	}
	perm, err := s.repo.FindPermissionByID(ctx, permissionID)
	if err != nil {
		return Grant{}, err
	}
	if !perm.Usable() {
		return Grant{}, fmt.Errorf("%w: permission %d retired", authz.ErrInvalidState, permissionID)
	}
	grant, err := s.repo.CreateGrant(ctx, roleID, permissionID, actorID)
	if err != nil {
		return Grant{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "role_grants",
		EntityID: strconv.FormatInt(grant.ID, 10),
		Action:   audit.ActionPermissionChanged,
		After:    audit.Snapshot(grant),
		ActorID:  actorID,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: actorID,
		Type:        audit.ActivityPermissionChanged,
		Description: fmt.Sprintf("granted %s to role %s", perm.Name, role.Name),
		Details:     map[string]any{"role_id": roleID, "permission_id": permissionID},
	})
	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, roleID)
	}
	return grant, nil
}

// RevokePermission detaches a permission from a role. Revoking an absent
// grant is a no-op success so retrying callers stay idempotent.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID, actorID int64) error {
	grant, err := s.repo.SoftDeleteGrant(ctx, roleID, permissionID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return nil
		}
		return err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "role_grants",
		EntityID: strconv.FormatInt(grant.ID, 10),
		Action:   audit.ActionPermissionChanged,
		Before:   audit.Snapshot(grant),
		ActorID:  actorID,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: actorID,
		Type:        audit.ActivityPermissionChanged,
		Description: fmt.Sprintf("revoked permission %d from role %d", permissionID, roleID),
		Details:     map[string]any{"role_id": roleID, "permission_id": permissionID},
	})
	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, roleID)
	}
	return nil
}

// ListGrants returns the live permission grants of a role.
func (s *Service) ListGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	if _, err := s.repo.FindRoleByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListGrantsForRole(ctx, roleID)
}

func (s *Service) sortRoles(roles []Role) {
	s.collator.Sort(rolesByName(roles))
}

type rolesByName []Role

func (r rolesByName) Len() int           { return len(r) }
func (r rolesByName) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r rolesByName) Bytes(i int) []byte { return []byte(r[i].Name) }

type permissionsByName []Permission

func (p permissionsByName) Len() int           { return len(p) }
func (p permissionsByName) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p permissionsByName) Bytes(i int) []byte { return []byte(p[i].Name) }
