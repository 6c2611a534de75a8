package delegation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/principal"
)

// RankSource resolves a principal's current maximum hierarchy level.
type RankSource interface {
	MaxLevel(ctx context.Context, principalID int64) (int, error)
}

// PrincipalDirectory resolves principals.
type PrincipalDirectory interface {
	FindByID(ctx context.Context, id int64) (principal.Principal, error)
}

// Service manages delegated administration.
type Service struct {
	repo       Repository
	ranks      RankSource
	principals PrincipalDirectory
	trail      *audit.Trail
}

// NewService constructs a delegation service.
func NewService(repo Repository, ranks RankSource, principals PrincipalDirectory, trail *audit.Trail) *Service {
	return &Service{repo: repo, ranks: ranks, principals: principals, trail: trail}
}

// Delegate authorizes delegate to manage the given role tags on the
// delegator's behalf. Every tag must rank strictly below the delegator's
// own maximum level.
func (s *Service) Delegate(ctx context.Context, delegatorID, delegateID int64, rawTags []string) (Delegation, error) {
	if len(rawTags) == 0 {
		return Delegation{}, fmt.Errorf("%w: at least one role tag required", authz.ErrValidation)
	}
	if delegatorID == delegateID {
		return Delegation{}, fmt.Errorf("%w: cannot delegate to oneself", authz.ErrValidation)
	}
	for _, id := range []int64{delegatorID, delegateID} {
		p, err := s.principals.FindByID(ctx, id)
		if err != nil {
			return Delegation{}, err
		}
		if !p.Usable() {
			return Delegation{}, fmt.Errorf("%w: principal %d inactive", authz.ErrInvalidState, id)
		}
	}

	maxLevel, err := s.ranks.MaxLevel(ctx, delegatorID)
	if err != nil {
		return Delegation{}, err
	}
	if maxLevel == 0 {
		return Delegation{}, fmt.Errorf("%w: delegator %d holds no active role", authz.ErrPrivilege, delegatorID)
	}

	tags := make([]hierarchy.RoleTag, 0, len(rawTags))
	for _, raw := range rawTags {
		tag, err := hierarchy.ParseTag(raw)
		if err != nil {
			return Delegation{}, err
		}
		if hierarchy.MustLevel(tag) >= maxLevel {
			return Delegation{}, fmt.Errorf("%w: tag %s not below delegator rank %d", authz.ErrPrivilege, tag, maxLevel)
		}
		tags = append(tags, tag)
	}

	created, err := s.repo.Create(ctx, delegatorID, delegateID, tags)
	if err != nil {
		return Delegation{}, err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "delegations",
		EntityID: strconv.FormatInt(created.ID, 10),
		Action:   audit.ActionCreate,
		After:    audit.Snapshot(created),
		ActorID:  delegatorID,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: delegateID,
		Type:        audit.ActivityUpdated,
		Description: fmt.Sprintf("received delegated management of %d role tags", len(tags)),
		Details:     map[string]any{"delegation_id": created.ID, "delegator_id": delegatorID},
	})
	return created, nil
}

// Revoke retires a delegation. Only the delegator may revoke it. Revoking
// an already-retired delegation is a no-op success.
func (s *Service) Revoke(ctx context.Context, delegationID, actorID int64) error {
	current, err := s.repo.FindByID(ctx, delegationID)
	if err != nil {
		return err
	}
	if current.DelegatorID != actorID {
		return fmt.Errorf("%w: only the delegator may revoke", authz.ErrPrivilege)
	}
	revoked, err := s.repo.SoftDelete(ctx, delegationID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return nil
		}
		return err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "delegations",
		EntityID: strconv.FormatInt(delegationID, 10),
		Action:   audit.ActionDelete,
		Before:   audit.Snapshot(revoked),
		ActorID:  actorID,
	})
	return nil
}

// CanManage reports whether delegate holds a live delegation covering tag.
func (s *Service) CanManage(ctx context.Context, delegateID int64, rawTag string) (bool, error) {
	tag, err := hierarchy.ParseTag(rawTag)
	if err != nil {
		return false, err
	}
	delegations, err := s.repo.ActiveForDelegate(ctx, delegateID)
	if err != nil {
		return false, err
	}
	for _, d := range delegations {
		if d.Covers(tag) {
			return true, nil
		}
	}
	return false, nil
}

// ListForDelegate returns the live delegations granted to a principal.
func (s *Service) ListForDelegate(ctx context.Context, delegateID int64) ([]Delegation, error) {
	return s.repo.ActiveForDelegate(ctx, delegateID)
}
