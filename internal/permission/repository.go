package permission

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/roles"
)

// Repository loads authorization snapshots and grant listings.
type Repository interface {
	Snapshot(ctx context.Context, principalID int64, now time.Time) (Snapshot, error)
	RolePermissions(ctx context.Context, roleID int64) ([]roles.Permission, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Snapshot loads a principal's live role tags and granted permissions in a
// single consistent read.
func (r *PGRepository) Snapshot(ctx context.Context, principalID int64, now time.Time) (Snapshot, error) {
	var snap Snapshot

	rows, err := r.pool.Query(ctx,
		`SELECT r.tag
		 FROM role_assignments ra
		 JOIN roles r ON r.id = ra.role_id
		 JOIN principals p ON p.id = ra.principal_id
		 WHERE ra.principal_id = $1
		   AND ra.active AND ra.deleted_at IS NULL
		   AND (ra.expires_at IS NULL OR ra.expires_at > $2)
		   AND r.active AND r.deleted_at IS NULL
		   AND p.active AND p.deleted_at IS NULL`, principalID, now)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		snap.Tags = append(snap.Tags, hierarchy.RoleTag(tag))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT DISTINCT pm.resource, pm.action
		 FROM role_assignments ra
		 JOIN roles r ON r.id = ra.role_id
		 JOIN principals p ON p.id = ra.principal_id
		 JOIN role_grants rg ON rg.role_id = r.id
		 JOIN permissions pm ON pm.id = rg.permission_id
		 WHERE ra.principal_id = $1
		   AND ra.active AND ra.deleted_at IS NULL
		   AND (ra.expires_at IS NULL OR ra.expires_at > $2)
		   AND r.active AND r.deleted_at IS NULL
		   AND p.active AND p.deleted_at IS NULL
		   AND rg.active AND rg.deleted_at IS NULL
		   AND pm.active AND pm.deleted_at IS NULL`, principalID, now)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var resource, action string
		if err := rows.Scan(&resource, &action); err != nil {
			return Snapshot{}, err
		}
		snap.Permissions = append(snap.Permissions, Key(resource, action))
	}
	return snap, rows.Err()
}

// RolePermissions lists the permissions a role is actively granted, for
// administrative display.
func (r *PGRepository) RolePermissions(ctx context.Context, roleID int64) ([]roles.Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pm.id, pm.name, pm.resource, pm.action, pm.is_system, pm.active, pm.deleted_at, pm.created_at, pm.updated_at
		 FROM role_grants rg
		 JOIN permissions pm ON pm.id = rg.permission_id
		 WHERE rg.role_id = $1
		   AND rg.active AND rg.deleted_at IS NULL
		   AND pm.deleted_at IS NULL
		 ORDER BY pm.resource, pm.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []roles.Permission
	for rows.Next() {
		var p roles.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.System, &p.Active, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
