package roles

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
)

type memRepo struct {
	nextID int64
	roles  map[int64]Role
	perms  map[int64]Permission
	grants map[int64]Grant
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID: 1,
		roles:  map[int64]Role{},
		perms:  map[int64]Permission{},
		grants: map[int64]Grant{},
	}
}

func (m *memRepo) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *memRepo) CreateRole(ctx context.Context, name string, tag hierarchy.RoleTag, system bool) (Role, error) {
	for _, r := range m.roles {
		if r.Name == name && r.DeletedAt == nil {
			return Role{}, fmt.Errorf("%w: role name taken", authz.ErrConflict)
		}
	}
	role := Role{ID: m.id(), Name: name, Tag: tag, System: system, Active: true, CreatedAt: time.Now()}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) FindRoleByID(ctx context.Context, id int64) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, id)
	}
	return r, nil
}

func (m *memRepo) FindActiveRoleByTag(ctx context.Context, tag hierarchy.RoleTag) (Role, error) {
	for _, r := range m.roles {
		if r.Tag == tag && r.Usable() {
			return r, nil
		}
	}
	return Role{}, fmt.Errorf("%w: role %s", authz.ErrNotFound, tag)
}

func (m *memRepo) RenameRole(ctx context.Context, id int64, name string) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, id)
	}
	r.Name = name
	m.roles[id] = r
	return r, nil
}

func (m *memRepo) SoftDeleteRoleCascade(ctx context.Context, id int64) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, id)
	}
	now := time.Now()
	r.Active = false
	r.DeletedAt = &now
	m.roles[id] = r
	for gid, g := range m.grants {
		if g.RoleID == id && g.DeletedAt == nil {
			g.Active = false
			g.DeletedAt = &now
			m.grants[gid] = g
		}
	}
	return r, nil
}

func (m *memRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		if r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) CreatePermission(ctx context.Context, name, resource, action string, system bool) (Permission, error) {
	p := Permission{ID: m.id(), Name: name, Resource: resource, Action: action, System: system, Active: true, CreatedAt: time.Now()}
	m.perms[p.ID] = p
	return p, nil
}

func (m *memRepo) FindPermissionByID(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %d", authz.ErrNotFound, id)
	}
	return p, nil
}

func (m *memRepo) SoftDeletePermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %d", authz.ErrNotFound, id)
	}
	now := time.Now()
	p.Active = false
	p.DeletedAt = &now
	m.perms[id] = p
	for gid, g := range m.grants {
		if g.PermissionID == id && g.DeletedAt == nil {
			g.Active = false
			g.DeletedAt = &now
			m.grants[gid] = g
		}
	}
	return p, nil
}

func (m *memRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		if p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memRepo) CreateGrant(ctx context.Context, roleID, permissionID, grantedBy int64) (Grant, error) {
	for _, g := range m.grants {
		if g.RoleID == roleID && g.PermissionID == permissionID && g.DeletedAt == nil {
			return Grant{}, fmt.Errorf("%w: grant exists", authz.ErrConflict)
		}
	}
	g := Grant{ID: m.id(), RoleID: roleID, PermissionID: permissionID, GrantedBy: grantedBy, GrantedAt: time.Now(), Active: true}
	m.grants[g.ID] = g
	return g, nil
}

func (m *memRepo) SoftDeleteGrant(ctx context.Context, roleID, permissionID int64) (Grant, error) {
	for gid, g := range m.grants {
		if g.RoleID == roleID && g.PermissionID == permissionID && g.DeletedAt == nil {
			now := time.Now()
			g.Active = false
			g.DeletedAt = &now
			m.grants[gid] = g
			return g, nil
		}
	}
	return Grant{}, fmt.Errorf("%w: grant absent", authz.ErrNotFound)
}

func (m *memRepo) ListGrantsForRole(ctx context.Context, roleID int64) ([]Grant, error) {
	out := []Grant{}
	for _, g := range m.grants {
		if g.RoleID == roleID && g.DeletedAt == nil {
			out = append(out, g)
		}
	}
	return out, nil
}

type memOutbox struct {
	entries    []audit.Entry
	activities []audit.Activity
}

func (m *memOutbox) EnqueueEntry(ctx context.Context, id uuid.UUID, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memOutbox) EnqueueActivity(ctx context.Context, id uuid.UUID, activity audit.Activity) error {
	m.activities = append(m.activities, activity)
	return nil
}

type memInvalidator struct {
	roleIDs []int64
}

func (m *memInvalidator) InvalidateRole(ctx context.Context, roleID int64) {
	m.roleIDs = append(m.roleIDs, roleID)
}

func newFixture() (*Service, *memRepo, *memOutbox, *memInvalidator) {
	repo := newMemRepo()
	outbox := &memOutbox{}
	inv := &memInvalidator{}
	svc := NewService(repo, audit.NewTrail(outbox, slog.Default()), inv)
	return svc, repo, outbox, inv
}

const actor = int64(99)

func TestCreateRoleValidatesTag(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.CreateRole(context.Background(), "Shift Lead", "overlord", actor)
	assert.ErrorIs(t, err, authz.ErrValidation)

	role, err := svc.CreateRole(context.Background(), "Shift Lead", "supervisor", actor)
	require.NoError(t, err)
	assert.Equal(t, hierarchy.TagSupervisor, role.Tag)
}

func TestRenameRoleAudited(t *testing.T) {
	svc, _, outbox, _ := newFixture()
	role, err := svc.CreateRole(context.Background(), "Ops", "operator", actor)
	require.NoError(t, err)

	renamed, err := svc.RenameRole(context.Background(), role.ID, "Operations", actor)
	require.NoError(t, err)
	assert.Equal(t, "Operations", renamed.Name)

	last := outbox.entries[len(outbox.entries)-1]
	assert.Equal(t, audit.ActionUpdate, last.Action)
	assert.Equal(t, "roles", last.Entity)
}

func TestGuardRoleIdentity(t *testing.T) {
	svc, _, outbox, _ := newFixture()
	role, err := svc.CreateRole(context.Background(), "Ops", "operator", actor)
	require.NoError(t, err)

	require.NoError(t, svc.GuardRoleIdentity(context.Background(), role.ID, role.ID, actor))
	require.NoError(t, svc.GuardRoleIdentity(context.Background(), role.ID, 0, actor))

	err = svc.GuardRoleIdentity(context.Background(), role.ID, role.ID+7, actor)
	assert.ErrorIs(t, err, authz.ErrFatal)
	last := outbox.entries[len(outbox.entries)-1]
	assert.Equal(t, audit.ActionIDModification, last.Action)
}

func TestDeleteRoleCascadesToGrants(t *testing.T) {
	svc, repo, _, inv := newFixture()
	role, err := svc.CreateRole(context.Background(), "Ops", "operator", actor)
	require.NoError(t, err)
	perm, err := svc.CreatePermission(context.Background(), "Read reports", "reports", "read", actor)
	require.NoError(t, err)
	_, err = svc.GrantPermission(context.Background(), role.ID, perm.ID, actor)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRole(context.Background(), role.ID, actor))

	grants, err := repo.ListGrantsForRole(context.Background(), role.ID)
	require.NoError(t, err)
	assert.Empty(t, grants, "grants must retire with the role")
	assert.Contains(t, inv.roleIDs, role.ID)
}

func TestDeleteSystemRoleRefused(t *testing.T) {
	svc, repo, _, _ := newFixture()
	role, err := repo.CreateRole(context.Background(), "Root", hierarchy.TagSuperAdmin, true)
	require.NoError(t, err)

	err = svc.DeleteRole(context.Background(), role.ID, actor)
	assert.ErrorIs(t, err, authz.ErrInvalidState)
}

func TestGrantPermissionDuplicateConflicts(t *testing.T) {
	svc, _, _, _ := newFixture()
	role, err := svc.CreateRole(context.Background(), "Ops", "operator", actor)
	require.NoError(t, err)
	perm, err := svc.CreatePermission(context.Background(), "Read reports", "reports", "read", actor)
	require.NoError(t, err)

	_, err = svc.GrantPermission(context.Background(), role.ID, perm.ID, actor)
	require.NoError(t, err)
	_, err = svc.GrantPermission(context.Background(), role.ID, perm.ID, actor)
	assert.ErrorIs(t, err, authz.ErrConflict)
}

func TestGrantPermissionAgainstRetiredPermission(t *testing.T) {
	svc, _, _, _ := newFixture()
	role, err := svc.CreateRole(context.Background(), "Ops", "operator", actor)
	require.NoError(t, err)
	perm, err := svc.CreatePermission(context.Background(), "Read reports", "reports", "read", actor)
	require.NoError(t, err)
	require.NoError(t, svc.DeletePermission(context.Background(), perm.ID, actor))

	_, err = svc.GrantPermission(context.Background(), role.ID, perm.ID, actor)
	assert.ErrorIs(t, err, authz.ErrInvalidState)
}

func TestRevokePermissionIdempotent(t *testing.T) {
	svc, _, _, inv := newFixture()
	role, err := svc.CreateRole(context.Background(), "Ops", "operator", actor)
	require.NoError(t, err)
	perm, err := svc.CreatePermission(context.Background(), "Read reports", "reports", "read", actor)
	require.NoError(t, err)
	_, err = svc.GrantPermission(context.Background(), role.ID, perm.ID, actor)
	require.NoError(t, err)

	require.NoError(t, svc.RevokePermission(context.Background(), role.ID, perm.ID, actor))
	invalidations := len(inv.roleIDs)
	require.NoError(t, svc.RevokePermission(context.Background(), role.ID, perm.ID, actor),
		"revoking an absent grant succeeds quietly")
	assert.Len(t, inv.roleIDs, invalidations, "no-op revoke must not invalidate again")
}

func TestListRolesSortedByName(t *testing.T) {
	svc, _, _, _ := newFixture()
	for _, spec := range []struct{ name, tag string }{
		{"zulu desk", "user"},
		{"Alpha desk", "operator"},
		{"manager pool", "manager"},
	} {
		_, err := svc.CreateRole(context.Background(), spec.name, spec.tag, actor)
		require.NoError(t, err)
	}

	listed, err := svc.ListRoles(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(listed))
	for _, r := range listed {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Alpha desk", "manager pool", "zulu desk"}, names)
}
