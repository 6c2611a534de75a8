package principal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/authz"
)

// Invalidator drops cached authorization state for a principal.
type Invalidator interface {
	InvalidatePrincipal(ctx context.Context, principalID int64)
}

// Service applies identity-provider lifecycle notifications to the core.
type Service struct {
	repo        Repository
	trail       *audit.Trail
	invalidator Invalidator
}

// NewService constructs a principal service. invalidator may be nil.
func NewService(repo Repository, trail *audit.Trail, invalidator Invalidator) *Service {
	return &Service{repo: repo, trail: trail, invalidator: invalidator}
}

// HandleCreated registers a principal announced by the identity provider.
// Redelivered notifications are absorbed: an already-known external id
// returns the existing principal.
func (s *Service) HandleCreated(ctx context.Context, externalID string, actorID int64) (Principal, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Principal{}, fmt.Errorf("%w: external id required", authz.ErrValidation)
	}
	created, err := s.repo.Create(ctx, externalID)
	if err != nil {
		if errors.Is(err, authz.ErrConflict) {
			return s.repo.FindByExternalID(ctx, externalID)
		}
		return Principal{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "principals",
		EntityID: strconv.FormatInt(created.ID, 10),
		Action:   audit.ActionCreate,
		After:    audit.Snapshot(created),
		ActorID:  actorID,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: created.ID,
		Type:        audit.ActivityCreated,
		Description: "account registered",
	})
	return created, nil
}

// Deactivate marks a principal deleted. All privilege checks fail for a
// deactivated principal. Deactivating an already-inactive principal is a
// no-op success.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) (Principal, error) {
	before, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	if !before.Usable() {
		return before, nil
	}
	after, err := s.repo.SetActive(ctx, id, false)
	if err != nil {
		return Principal{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "principals",
		EntityID: strconv.FormatInt(id, 10),
		Action:   audit.ActionDelete,
		Before:   audit.Snapshot(before),
		After:    audit.Snapshot(after),
		ActorID:  actorID,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: id,
		Type:        audit.ActivityDeleted,
		Description: "account deactivated",
	})
	// Cached snapshots must not keep answering for a deactivated account.
	s.invalidate(ctx, id)
	return after, nil
}

// Restore clears the delete marker. Restoring an active principal is a
// no-op success.
func (s *Service) Restore(ctx context.Context, id, actorID int64) (Principal, error) {
	before, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	if before.Usable() {
		return before, nil
	}
	after, err := s.repo.SetActive(ctx, id, true)
	if err != nil {
		return Principal{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "principals",
		EntityID: strconv.FormatInt(id, 10),
		Action:   audit.ActionRestore,
		Before:   audit.Snapshot(before),
		After:    audit.Snapshot(after),
		ActorID:  actorID,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: id,
		Type:        audit.ActivityRestored,
		Description: "account restored",
	})
	s.invalidate(ctx, id)
	return after, nil
}

func (s *Service) invalidate(ctx context.Context, principalID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidatePrincipal(ctx, principalID)
	}
}

// Get fetches a principal by internal id.
func (s *Service) Get(ctx context.Context, id int64) (Principal, error) {
	return s.repo.FindByID(ctx, id)
}

// VerifyIdentifier enforces identifier immutability. Any attempt to move a
// principal to a different external id is rejected as Fatal and audited.
func (s *Service) VerifyIdentifier(ctx context.Context, id int64, externalID string, actorID int64) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if externalID == "" || externalID == current.ExternalID {
		return nil
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "principals",
		EntityID: strconv.FormatInt(id, 10),
		Action:   audit.ActionIDModification,
		Before:   audit.Snapshot(current),
		After:    audit.Snapshot(map[string]string{"external_id": externalID}),
		ActorID:  actorID,
	})
	return fmt.Errorf("%w: principal identifier is immutable", authz.ErrFatal)
}
