package principal

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
)

type memRepo struct {
	nextID int64
	rows   map[int64]Principal
	byExt  map[string]int64
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, rows: map[int64]Principal{}, byExt: map[string]int64{}}
}

func (m *memRepo) Create(ctx context.Context, externalID string) (Principal, error) {
	if _, ok := m.byExt[externalID]; ok {
		return Principal{}, fmt.Errorf("%w: external id taken", authz.ErrConflict)
	}
	p := Principal{ID: m.nextID, ExternalID: externalID, Active: true, CreatedAt: time.Now()}
	m.rows[p.ID] = p
	m.byExt[externalID] = p.ID
	m.nextID++
	return p, nil
}

func (m *memRepo) FindByID(ctx context.Context, id int64) (Principal, error) {
	p, ok := m.rows[id]
	if !ok {
		return Principal{}, fmt.Errorf("%w: principal %d", authz.ErrNotFound, id)
	}
	return p, nil
}

func (m *memRepo) FindByExternalID(ctx context.Context, externalID string) (Principal, error) {
	id, ok := m.byExt[externalID]
	if !ok {
		return Principal{}, fmt.Errorf("%w: principal %s", authz.ErrNotFound, externalID)
	}
	return m.rows[id], nil
}

func (m *memRepo) SetActive(ctx context.Context, id int64, active bool) (Principal, error) {
	p, ok := m.rows[id]
	if !ok {
		return Principal{}, fmt.Errorf("%w: principal %d", authz.ErrNotFound, id)
	}
	p.Active = active
	if active {
		p.DeletedAt = nil
	} else {
		now := time.Now()
		p.DeletedAt = &now
	}
	m.rows[id] = p
	return p, nil
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

func newFixture() (*Service, *memRepo, *memOutbox) {
	repo := newMemRepo()
	outbox := &memOutbox{}
	svc := NewService(repo, audit.NewTrail(outbox, slog.Default()), nil)
	return svc, repo, outbox
}

func TestHandleCreatedRegistersPrincipal(t *testing.T) {
	svc, _, outbox := newFixture()

	p, err := svc.HandleCreated(context.Background(), "idp-651", 9)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, "idp-651", p.ExternalID)
	require.Len(t, outbox.entries, 1)
	assert.Equal(t, audit.ActionCreate, outbox.entries[0].Action)
}

func TestHandleCreatedAbsorbsRedelivery(t *testing.T) {
	svc, _, outbox := newFixture()

	first, err := svc.HandleCreated(context.Background(), "idp-651", 9)
	require.NoError(t, err)
	again, err := svc.HandleCreated(context.Background(), "idp-651", 9)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, outbox.entries, 1, "redelivery must not audit a second create")
}

func TestHandleCreatedRejectsBlankIdentifier(t *testing.T) {
	svc, _, _ := newFixture()
	_, err := svc.HandleCreated(context.Background(), "   ", 9)
	assert.ErrorIs(t, err, authz.ErrValidation)
}

func TestDeactivateThenRestore(t *testing.T) {
	svc, _, outbox := newFixture()
	p, err := svc.HandleCreated(context.Background(), "idp-7", 9)
	require.NoError(t, err)

	gone, err := svc.Deactivate(context.Background(), p.ID, 9)
	require.NoError(t, err)
	assert.False(t, gone.Usable())

	back, err := svc.Restore(context.Background(), p.ID, 9)
	require.NoError(t, err)
	assert.True(t, back.Usable())
	assert.Nil(t, back.DeletedAt)

	actions := make([]string, 0, len(outbox.entries))
	for _, e := range outbox.entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{audit.ActionCreate, audit.ActionDelete, audit.ActionRestore}, actions)
}

type memInvalidator struct {
	dropped []int64
}

func (m *memInvalidator) InvalidatePrincipal(ctx context.Context, principalID int64) {
	m.dropped = append(m.dropped, principalID)
}

func TestLifecycleDropsCachedAuthorization(t *testing.T) {
	repo := newMemRepo()
	inv := &memInvalidator{}
	svc := NewService(repo, audit.NewTrail(&memOutbox{}, slog.Default()), inv)

	p, err := svc.HandleCreated(context.Background(), "idp-7", 9)
	require.NoError(t, err)

	_, err = svc.Deactivate(context.Background(), p.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, inv.dropped, "deactivation must orphan the snapshot")

	_, err = svc.Restore(context.Background(), p.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID, p.ID}, inv.dropped)
}

func TestDeactivateTwiceIsNoOp(t *testing.T) {
	svc, _, outbox := newFixture()
	p, err := svc.HandleCreated(context.Background(), "idp-7", 9)
	require.NoError(t, err)

	_, err = svc.Deactivate(context.Background(), p.ID, 9)
	require.NoError(t, err)
	audited := len(outbox.entries)

	_, err = svc.Deactivate(context.Background(), p.ID, 9)
	require.NoError(t, err)
	assert.Len(t, outbox.entries, audited, "repeated deactivate must not audit again")
}

func TestDeactivateUnknownPrincipal(t *testing.T) {
	svc, _, _ := newFixture()
	_, err := svc.Deactivate(context.Background(), 404, 9)
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestVerifyIdentifierAcceptsCurrentValue(t *testing.T) {
	svc, _, _ := newFixture()
	p, err := svc.HandleCreated(context.Background(), "idp-7", 9)
	require.NoError(t, err)

	assert.NoError(t, svc.VerifyIdentifier(context.Background(), p.ID, "idp-7", 9))
	assert.NoError(t, svc.VerifyIdentifier(context.Background(), p.ID, "", 9))
}

func TestVerifyIdentifierRejectsMutation(t *testing.T) {
	svc, _, outbox := newFixture()
	p, err := svc.HandleCreated(context.Background(), "idp-7", 9)
	require.NoError(t, err)

	err = svc.VerifyIdentifier(context.Background(), p.ID, "idp-8", 9)
	assert.ErrorIs(t, err, authz.ErrFatal)

	last := outbox.entries[len(outbox.entries)-1]
	assert.Equal(t, audit.ActionIDModification, last.Action)
}
