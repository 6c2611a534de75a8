package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/authcore-io/authcore/internal/audit"
	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/principal"
	"github.com/authcore-io/authcore/internal/roles"
)

// RoleDirectory resolves role tags against the catalogue.
type RoleDirectory interface {
	FindActiveRoleByTag(ctx context.Context, tag hierarchy.RoleTag) (roles.Role, error)
}

// PrincipalDirectory resolves principals.
type PrincipalDirectory interface {
	FindByID(ctx context.Context, id int64) (principal.Principal, error)
}

// Scheduler hands an expiration over to the background queue. The persisted
// scheduled_expirations row stays the source of truth; the queue is a
// delivery hint and a lost message is recovered by the periodic sweep.
type Scheduler interface {
	ScheduleExpiration(ctx context.Context, taskID uuid.UUID, assignmentID int64, executeAt time.Time) error
}

// Invalidator drops cached authorization state for a principal.
type Invalidator interface {
	InvalidatePrincipal(ctx context.Context, principalID int64)
}

// Service orchestrates role assignment operations.
type Service struct {
	repo        Repository
	rolesDir    RoleDirectory
	principals  PrincipalDirectory
	trail       *audit.Trail
	scheduler   Scheduler
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs an assignment service. scheduler and invalidator
// may be nil.
func NewService(repo Repository, rolesDir RoleDirectory, principals PrincipalDirectory, trail *audit.Trail, scheduler Scheduler, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		rolesDir:    rolesDir,
		principals:  principals,
		trail:       trail,
		scheduler:   scheduler,
		invalidator: invalidator,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Grant assigns the role behind tag to a principal. The manager must hold a
// rank strictly above the granted role.
func (s *Service) Grant(ctx context.Context, principalID int64, rawTag, scope string, managedBy int64) (Assignment, error) {
	return s.grant(ctx, principalID, rawTag, scope, managedBy, nil)
}

// AssignTemporary grants a role until expiresAt, which must lie strictly in
// the future. On success an expiration task is registered for expiresAt.
func (s *Service) AssignTemporary(ctx context.Context, principalID int64, rawTag, scope string, expiresAt time.Time, assignedBy int64) (Assignment, error) {
	if !expiresAt.After(s.now()) {
		return Assignment{}, fmt.Errorf("%w: expiry must be in the future", authz.ErrValidation)
	}
	return s.grant(ctx, principalID, rawTag, scope, assignedBy, &expiresAt)
}

func (s *Service) grant(ctx context.Context, principalID int64, rawTag, scope string, managedBy int64, expiresAt *time.Time) (Assignment, error) {
	tag, err := hierarchy.ParseTag(rawTag)
	if err != nil {
		return Assignment{}, err
	}
	level := hierarchy.MustLevel(tag)

	if err := s.requireUsable(ctx, principalID); err != nil {
		return Assignment{}, err
	}
	if err := s.requireRank(ctx, managedBy, level); err != nil {
		return Assignment{}, err
	}
	role, err := s.rolesDir.FindActiveRoleByTag(ctx, tag)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return Assignment{}, fmt.Errorf("%w: no active role for tag %s", authz.ErrNotFound, tag)
		}
		return Assignment{}, err
	}
	if err := s.checkScopeConflicts(ctx, principalID, level, scope); err != nil {
		return Assignment{}, err
	}

	params := CreateParams{
		PrincipalID: principalID,
		RoleID:      role.ID,
		Scope:       scope,
		AssignedBy:  managedBy,
		ExpiresAt:   expiresAt,
	}

	var created Assignment
	if expiresAt == nil {
		created, err = s.repo.Create(ctx, params)
		if err != nil {
			return Assignment{}, err
		}
	} else {
		// Grant row and expiration contract commit together or not at all.
		taskID := uuid.New()
		created, err = s.repo.CreateWithExpiration(ctx, params, taskID, *expiresAt)
		if err != nil {
			return Assignment{}, err
		}
		if s.scheduler != nil {
			if err := s.scheduler.ScheduleExpiration(ctx, taskID, created.ID, *expiresAt); err != nil {
				// The sweep picks the row up; the grant itself stands.
				s.logger.Warn("enqueue expiration task",
					slog.Int64("assignment_id", created.ID),
					slog.Any("error", err))
			}
		}
	}

	s.trail.Record(ctx, audit.Entry{
		Entity:   "role_assignments",
		EntityID: strconv.FormatInt(created.ID, 10),
		Action:   audit.ActionRoleAssigned,
		After:    audit.Snapshot(created),
		ActorID:  managedBy,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: principalID,
		Type:        audit.ActivityRoleAssigned,
		Description: fmt.Sprintf("assigned role %s", hierarchy.DisplayName(tag)),
		Details:     activityDetails(created),
	})
	s.invalidate(ctx, principalID)
	return created, nil
}

// Revoke retires a principal's holding of the role behind tag. Revoking an
// absent or already-revoked assignment is a no-op success so retrying
// callers stay idempotent.
func (s *Service) Revoke(ctx context.Context, principalID int64, rawTag string, managedBy int64) error {
	tag, err := hierarchy.ParseTag(rawTag)
	if err != nil {
		return err
	}
	if err := s.requireRank(ctx, managedBy, hierarchy.MustLevel(tag)); err != nil {
		return err
	}
	role, err := s.rolesDir.FindActiveRoleByTag(ctx, tag)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return nil
		}
		return err
	}
	revoked, err := s.repo.SoftDelete(ctx, principalID, role.ID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return nil
		}
		return err
	}
	s.trail.Record(ctx, audit.Entry{
		Entity:   "role_assignments",
		EntityID: strconv.FormatInt(revoked.ID, 10),
		Action:   audit.ActionRoleRevoked,
		Before:   audit.Snapshot(revoked),
		ActorID:  managedBy,
	})
	s.trail.Activity(ctx, audit.Activity{
		PrincipalID: principalID,
		Type:        audit.ActivityRoleRevoked,
		Description: fmt.Sprintf("revoked role %s", hierarchy.DisplayName(tag)),
		Details:     activityDetails(revoked),
	})
	s.invalidate(ctx, principalID)
	return nil
}

// Check reports whether the principal holds a live assignment matching tag.
// With includeHigher a holding of any rank at or above the tag counts;
// otherwise only the exact tag does. A deactivated principal fails with
// InvalidState rather than a plain false.
func (s *Service) Check(ctx context.Context, principalID int64, rawTag string, includeHigher bool) (bool, error) {
	tag, err := hierarchy.ParseTag(rawTag)
	if err != nil {
		return false, err
	}
	if err := s.requireUsable(ctx, principalID); err != nil {
		return false, err
	}
	level := hierarchy.MustLevel(tag)
	active, err := s.repo.ActiveForPrincipal(ctx, principalID, s.now())
	if err != nil {
		return false, err
	}
	for _, a := range active {
		if includeHigher {
			if a.Level() >= level {
				return true, nil
			}
			continue
		}
		if a.RoleTag == tag {
			return true, nil
		}
	}
	return false, nil
}

// EffectiveRoles returns the live assignments of a principal ordered by
// descending rank, ties broken by earliest assignment for determinism.
func (s *Service) EffectiveRoles(ctx context.Context, principalID int64) ([]Assignment, error) {
	if err := s.requireUsable(ctx, principalID); err != nil {
		return nil, err
	}
	active, err := s.repo.ActiveForPrincipal(ctx, principalID, s.now())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Level() != active[j].Level() {
			return active[i].Level() > active[j].Level()
		}
		return active[i].AssignedAt.Before(active[j].AssignedAt)
	})
	return active, nil
}

// MaxLevel returns the highest rank among the principal's live assignments,
// zero when there are none.
func (s *Service) MaxLevel(ctx context.Context, principalID int64) (int, error) {
	active, err := s.repo.ActiveForPrincipal(ctx, principalID, s.now())
	if err != nil {
		return 0, err
	}
	max := 0
	for _, a := range active {
		if level := a.Level(); level > max {
			max = level
		}
	}
	return max, nil
}

// ListPrincipalsByRole lists principals currently holding the role.
func (s *Service) ListPrincipalsByRole(ctx context.Context, rawTag string) ([]int64, error) {
	tag, err := hierarchy.ParseTag(rawTag)
	if err != nil {
		return nil, err
	}
	role, err := s.rolesDir.FindActiveRoleByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	return s.repo.PrincipalsWithRole(ctx, role.ID, s.now())
}

// History returns a principal's assignment records inside the window,
// revoked and expired included.
func (s *Service) History(ctx context.Context, principalID int64, from, to time.Time) ([]Assignment, error) {
	if _, err := s.principals.FindByID(ctx, principalID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, principalID, from, to)
}

// ProcessExpiration retires the assignment behind an expiration task and
// marks the task processed. Re-delivery of the same task finds the
// assignment already inactive and changes nothing.
func (s *Service) ProcessExpiration(ctx context.Context, taskID uuid.UUID, assignmentID int64) error {
	expired, changed, err := s.repo.DeactivateByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if changed {
		s.trail.Record(ctx, audit.Entry{
			Entity:   "role_assignments",
			EntityID: strconv.FormatInt(assignmentID, 10),
			Action:   audit.ActionRoleRevoked,
			Before:   audit.Snapshot(expired),
			ActorID:  0,
		})
		s.trail.Activity(ctx, audit.Activity{
			PrincipalID: expired.PrincipalID,
			Type:        audit.ActivityRoleRevoked,
			Description: fmt.Sprintf("temporary role %s expired", hierarchy.DisplayName(expired.RoleTag)),
			Details:     activityDetails(expired),
		})
		s.invalidate(ctx, expired.PrincipalID)
	}
	return s.repo.MarkProcessed(ctx, taskID)
}

// SweepDue processes every overdue, unprocessed expiration row. It backs up
// the queue path: a lost task message cannot leave a grant active past its
// expiry. Returns the number of rows handled.
func (s *Service) SweepDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	due, err := s.repo.DueExpirations(ctx, s.now(), batch)
	if err != nil {
		return 0, err
	}
	for _, task := range due {
		if err := s.ProcessExpiration(ctx, task.TaskID, task.AssignmentID); err != nil {
			return 0, err
		}
	}
	return len(due), nil
}

// requireUsable rejects operations against a missing or deactivated
// principal.
func (s *Service) requireUsable(ctx context.Context, principalID int64) error {
	p, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		return err
	}
	if !p.Usable() {
		return fmt.Errorf("%w: principal %d inactive", authz.ErrInvalidState, principalID)
	}
	return nil
}

// requireRank verifies the manager is usable, holds at least one live
// assignment, and outranks level strictly.
func (s *Service) requireRank(ctx context.Context, managedBy int64, level int) error {
	manager, err := s.principals.FindByID(ctx, managedBy)
	if err != nil {
		return err
	}
	if !manager.Usable() {
		return fmt.Errorf("%w: manager %d inactive", authz.ErrInvalidState, managedBy)
	}
	managerLevel, err := s.MaxLevel(ctx, managedBy)
	if err != nil {
		return err
	}
	if managerLevel == 0 {
		return fmt.Errorf("%w: manager %d holds no active role", authz.ErrPrivilege, managedBy)
	}
	if level >= managerLevel {
		return fmt.Errorf("%w: role rank %d not below manager rank %d", authz.ErrPrivilege, level, managerLevel)
	}
	return nil
}

// checkScopeConflicts rejects a grant when the principal already holds an
// equal-or-higher rank under a different scope boundary. The check only
// applies when both sides carry a scope; unscoped holdings never conflict.
func (s *Service) checkScopeConflicts(ctx context.Context, principalID int64, level int, scope string) error {
	if scope == "" {
		return nil
	}
	active, err := s.repo.ActiveForPrincipal(ctx, principalID, s.now())
	if err != nil {
		return err
	}
	for _, a := range active {
		if a.Scope != "" && a.Scope != scope && a.Level() >= level {
			return fmt.Errorf("%w: principal holds rank %d in scope %s", authz.ErrConflict, a.Level(), a.Scope)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, principalID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidatePrincipal(ctx, principalID)
	}
}

func activityDetails(a Assignment) map[string]any {
	details := map[string]any{
		"assignment_id": a.ID,
		"role_tag":      string(a.RoleTag),
	}
	if a.Scope != "" {
		details["scope"] = a.Scope
	}
	if a.ExpiresAt != nil {
		details["expires_at"] = a.ExpiresAt.Format(time.RFC3339)
	}
	return details
}
