package permission

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/roles"
)

// Resolver is the read-only authorization surface. Each call evaluates one
// consistent snapshot; repeated calls may observe different results as
// writes land.
type Resolver struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewResolver constructs a Resolver. cache may be nil, in which case every
// call reads through to the store.
func NewResolver(repo Repository, cache *Cache) *Resolver {
	return &Resolver{
		repo:  repo,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// HasPermission reports whether the principal holds at least one live role
// with an active grant for exactly (resource, action). No rank shortcut
// applies here.
func (r *Resolver) HasPermission(ctx context.Context, principalID int64, resource, action string) (bool, error) {
	if resource == "" || action == "" {
		return false, fmt.Errorf("%w: resource and action required", authz.ErrValidation)
	}
	snap, err := r.snapshot(ctx, principalID)
	if err != nil {
		return false, err
	}
	return snap.Allows(resource, action), nil
}

// HasAnyRole reports exact tag membership among the principal's live
// assignments; rank is not considered.
func (r *Resolver) HasAnyRole(ctx context.Context, principalID int64, rawTags []string) (bool, error) {
	if len(rawTags) == 0 {
		return false, nil
	}
	tags := make([]hierarchy.RoleTag, 0, len(rawTags))
	for _, raw := range rawTags {
		tag, err := hierarchy.ParseTag(raw)
		if err != nil {
			return false, err
		}
		tags = append(tags, tag)
	}
	snap, err := r.snapshot(ctx, principalID)
	if err != nil {
		return false, err
	}
	return snap.HoldsAny(tags), nil
}

// RolePermissions lists the active grants of a role for administrative
// display.
func (r *Resolver) RolePermissions(ctx context.Context, roleID int64) ([]roles.Permission, error) {
	return r.repo.RolePermissions(ctx, roleID)
}

// snapshot loads the principal's authorization state, serving from cache
// when possible. Concurrent misses for the same principal collapse into a
// single store read.
func (r *Resolver) snapshot(ctx context.Context, principalID int64) (Snapshot, error) {
	if r.cache != nil {
		if snap, ok := r.cache.Get(ctx, principalID); ok {
			return snap, nil
		}
	}
	v, err, _ := r.group.Do(fmt.Sprintf("snapshot:%d", principalID), func() (any, error) {
		snap, err := r.repo.Snapshot(ctx, principalID, r.now())
		if err != nil {
			return Snapshot{}, err
		}
		if r.cache != nil {
			r.cache.Set(ctx, principalID, snap)
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}
