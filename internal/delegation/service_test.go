package delegation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/principal"
)

type memRepo struct {
	nextID      int64
	delegations []Delegation
}

func (m *memRepo) Create(ctx context.Context, delegatorID, delegateID int64, tags []hierarchy.RoleTag) (Delegation, error) {
	m.nextID++
	d := Delegation{
		ID:          m.nextID,
		DelegatorID: delegatorID,
		DelegateID:  delegateID,
		RoleTags:    tags,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	m.delegations = append(m.delegations, d)
	return d, nil
}

func (m *memRepo) FindByID(ctx context.Context, id int64) (Delegation, error) {
	for _, d := range m.delegations {
		if d.ID == id {
			return d, nil
		}
	}
	return Delegation{}, authz.ErrNotFound
}

func (m *memRepo) ActiveForDelegate(ctx context.Context, delegateID int64) ([]Delegation, error) {
	var out []Delegation
	for _, d := range m.delegations {
		if d.DelegateID == delegateID && d.Active && d.DeletedAt == nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) SoftDelete(ctx context.Context, id int64) (Delegation, error) {
	now := time.Now().UTC()
	for i, d := range m.delegations {
		if d.ID == id && d.DeletedAt == nil {
			m.delegations[i].Active = false
			m.delegations[i].DeletedAt = &now
			return m.delegations[i], nil
		}
	}
	return Delegation{}, authz.ErrNotFound
}

type memRanks map[int64]int

func (m memRanks) MaxLevel(ctx context.Context, principalID int64) (int, error) {
	return m[principalID], nil
}

type memPrincipals map[int64]bool // id -> inactive

func (m memPrincipals) FindByID(ctx context.Context, id int64) (principal.Principal, error) {
	if id <= 0 || id > 100 {
		return principal.Principal{}, authz.ErrNotFound
	}
	if m[id] {
		now := time.Now().UTC()
		return principal.Principal{ID: id, DeletedAt: &now}, nil
	}
	return principal.Principal{ID: id, Active: true}, nil
}

type nullOutbox struct{ entries []audit.Entry }

func (n *nullOutbox) EnqueueEntry(ctx context.Context, id uuid.UUID, entry audit.Entry) error {
	n.entries = append(n.entries, entry)
	return nil
}

func (n *nullOutbox) EnqueueActivity(ctx context.Context, id uuid.UUID, activity audit.Activity) error {
	return nil
}

func newService(ranks memRanks, inactive memPrincipals) (*Service, *memRepo, *nullOutbox) {
	repo := &memRepo{}
	outbox := &nullOutbox{}
	svc := NewService(repo, ranks, inactive, audit.NewTrail(outbox, slog.Default()))
	return svc, repo, outbox
}

func TestDelegateBelowOwnRank(t *testing.T) {
	svc, _, outbox := newService(memRanks{1: 6}, memPrincipals{})

	created, err := svc.Delegate(context.Background(), 1, 2, []string{"manager", "user"})
	require.NoError(t, err)
	assert.Len(t, created.RoleTags, 2)
	require.Len(t, outbox.entries, 1)
	assert.Equal(t, audit.ActionCreate, outbox.entries[0].Action)
}

func TestDelegateEqualRankTagDenied(t *testing.T) {
	svc, _, _ := newService(memRanks{1: 6}, memPrincipals{})

	// admin=6 is not strictly below the delegator's rank 6.
	_, err := svc.Delegate(context.Background(), 1, 2, []string{"manager", "admin"})
	require.ErrorIs(t, err, authz.ErrPrivilege)
}

func TestDelegateWithoutRank(t *testing.T) {
	svc, _, _ := newService(memRanks{}, memPrincipals{})
	_, err := svc.Delegate(context.Background(), 1, 2, []string{"user"})
	require.ErrorIs(t, err, authz.ErrPrivilege)
}

func TestDelegateInactiveParty(t *testing.T) {
	svc, _, _ := newService(memRanks{1: 6}, memPrincipals{2: true})
	_, err := svc.Delegate(context.Background(), 1, 2, []string{"user"})
	require.ErrorIs(t, err, authz.ErrInvalidState)
}

func TestDelegateToSelf(t *testing.T) {
	svc, _, _ := newService(memRanks{1: 6}, memPrincipals{})
	_, err := svc.Delegate(context.Background(), 1, 1, []string{"user"})
	require.ErrorIs(t, err, authz.ErrValidation)
}

func TestCanManage(t *testing.T) {
	svc, _, _ := newService(memRanks{1: 7}, memPrincipals{})
	ctx := context.Background()

	_, err := svc.Delegate(ctx, 1, 2, []string{"manager"})
	require.NoError(t, err)

	ok, err := svc.CanManage(ctx, 2, "manager")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanManage(ctx, 2, "admin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeOnlyByDelegator(t *testing.T) {
	svc, _, _ := newService(memRanks{1: 7}, memPrincipals{})
	ctx := context.Background()

	created, err := svc.Delegate(ctx, 1, 2, []string{"manager"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Revoke(ctx, created.ID, 2), authz.ErrPrivilege)
	require.NoError(t, svc.Revoke(ctx, created.ID, 1))

	ok, err := svc.CanManage(ctx, 2, "manager")
	require.NoError(t, err)
	assert.False(t, ok)
}
