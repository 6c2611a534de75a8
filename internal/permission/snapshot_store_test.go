package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/roles"
)

// tableStore models the relational rows behind Snapshot with the same
// liveness rules the store applies: a row counts only while it is active,
// not soft-deleted, and not expired, and only for an active principal.
type tableStore struct {
	principals  map[int64]bool // id -> active
	roleRows    map[int64]roleRow
	assignments []assignmentRow
	grants      []grantRow
	permissions map[int64]permissionRow
}

type roleRow struct {
	tag    hierarchy.RoleTag
	active bool
}

type assignmentRow struct {
	principalID int64
	roleID      int64
	active      bool
	expiresAt   *time.Time
}

type grantRow struct {
	roleID       int64
	permissionID int64
	active       bool
}

type permissionRow struct {
	resource string
	action   string
	active   bool
}

func (s *tableStore) Snapshot(ctx context.Context, principalID int64, now time.Time) (Snapshot, error) {
	var snap Snapshot
	if !s.principals[principalID] {
		return snap, nil
	}
	for _, a := range s.assignments {
		if a.principalID != principalID || !a.active {
			continue
		}
		if a.expiresAt != nil && !a.expiresAt.After(now) {
			continue
		}
		role, ok := s.roleRows[a.roleID]
		if !ok || !role.active {
			continue
		}
		snap.Tags = append(snap.Tags, role.tag)
		for _, g := range s.grants {
			if g.roleID != a.roleID || !g.active {
				continue
			}
			perm, ok := s.permissions[g.permissionID]
			if !ok || !perm.active {
				continue
			}
			snap.Permissions = append(snap.Permissions, Key(perm.resource, perm.action))
		}
	}
	return snap, nil
}

func (s *tableStore) RolePermissions(ctx context.Context, roleID int64) ([]roles.Permission, error) {
	return nil, nil
}

func newTableStore() *tableStore {
	return &tableStore{
		principals: map[int64]bool{1: true},
		roleRows: map[int64]roleRow{
			5: {tag: hierarchy.TagManager, active: true},
		},
		assignments: []assignmentRow{
			{principalID: 1, roleID: 5, active: true},
		},
		grants: []grantRow{
			{roleID: 5, permissionID: 20, active: true},
		},
		permissions: map[int64]permissionRow{
			20: {resource: "reports", action: "export", active: true},
		},
	}
}

func TestRevokedGrantStopsConferringPermission(t *testing.T) {
	store := newTableStore()
	resolver := NewResolver(store, nil)
	ctx := context.Background()

	ok, err := resolver.HasPermission(ctx, 1, "reports", "export")
	require.NoError(t, err)
	require.True(t, ok)

	// The role stays live; only its grant is retired.
	store.grants[0].active = false

	ok, err = resolver.HasPermission(ctx, 1, "reports", "export")
	require.NoError(t, err)
	assert.False(t, ok, "a retired grant must not confer the permission")

	holds, err := resolver.HasAnyRole(ctx, 1, []string{"manager"})
	require.NoError(t, err)
	assert.True(t, holds, "the role holding itself is untouched")
}

func TestRetiredPermissionStopsConferring(t *testing.T) {
	store := newTableStore()
	resolver := NewResolver(store, nil)
	ctx := context.Background()

	perm := store.permissions[20]
	perm.active = false
	store.permissions[20] = perm

	ok, err := resolver.HasPermission(ctx, 1, "reports", "export")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeactivatedPrincipalReadsAgree(t *testing.T) {
	store := newTableStore()
	resolver := NewResolver(store, nil)
	ctx := context.Background()

	store.principals[1] = false

	ok, err := resolver.HasPermission(ctx, 1, "reports", "export")
	require.NoError(t, err)
	assert.False(t, ok, "deactivated principals hold no permissions")

	holds, err := resolver.HasAnyRole(ctx, 1, []string{"manager"})
	require.NoError(t, err)
	assert.False(t, holds, "deactivated principals hold no roles")
}

func TestExpiredAssignmentStopsConferring(t *testing.T) {
	store := newTableStore()
	past := time.Now().UTC().Add(-time.Minute)
	store.assignments[0].expiresAt = &past
	resolver := NewResolver(store, nil)

	ok, err := resolver.HasPermission(context.Background(), 1, "reports", "export")
	require.NoError(t, err)
	assert.False(t, ok)
}
