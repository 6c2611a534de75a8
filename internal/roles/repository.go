package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/platform/db"
)

// Repository defines persistence operations for the role catalogue.
type Repository interface {
	CreateRole(ctx context.Context, name string, tag hierarchy.RoleTag, system bool) (Role, error)
	FindRoleByID(ctx context.Context, id int64) (Role, error)
	FindActiveRoleByTag(ctx context.Context, tag hierarchy.RoleTag) (Role, error)
	RenameRole(ctx context.Context, id int64, name string) (Role, error)
	SoftDeleteRoleCascade(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)

	CreatePermission(ctx context.Context, name, resource, action string, system bool) (Permission, error)
	FindPermissionByID(ctx context.Context, id int64) (Permission, error)
	SoftDeletePermission(ctx context.Context, id int64) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)

	CreateGrant(ctx context.Context, roleID, permissionID, grantedBy int64) (Grant, error)
	SoftDeleteGrant(ctx context.Context, roleID, permissionID int64) (Grant, error)
	ListGrantsForRole(ctx context.Context, roleID int64) ([]Grant, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, name, tag, is_system, active, deleted_at, created_at, updated_at`
const permissionColumns = `id, name, resource, action, is_system, active, deleted_at, created_at, updated_at`
const grantColumns = `id, role_id, permission_id, granted_by, granted_at, active, deleted_at`

// CreateRole inserts a role. Name uniqueness holds among non-deleted roles.
func (r *PGRepository) CreateRole(ctx context.Context, name string, tag hierarchy.RoleTag, system bool) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, tag, is_system, active, created_at, updated_at)
		 VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		 RETURNING `+roleColumns, name, string(tag), system)
	role, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_roles_name_live") {
			return Role{}, fmt.Errorf("%w: role name %q in use", authz.ErrConflict, name)
		}
		return Role{}, err
	}
	return role, nil
}

// FindRoleByID fetches a role regardless of its delete marker.
func (r *PGRepository) FindRoleByID(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return roleNotFound(scanRole(row))
}

// FindActiveRoleByTag fetches the live role carrying tag.
func (r *PGRepository) FindActiveRoleByTag(ctx context.Context, tag hierarchy.RoleTag) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE tag = $1 AND active AND deleted_at IS NULL`, string(tag))
	return roleNotFound(scanRole(row))
}

// RenameRole updates a role name.
func (r *PGRepository) RenameRole(ctx context.Context, id int64, name string) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+roleColumns, id, name)
	role, err := roleNotFound(scanRole(row))
	if err != nil && db.IsUniqueViolation(err, "uq_roles_name_live") {
		return Role{}, fmt.Errorf("%w: role name %q in use", authz.ErrConflict, name)
	}
	return role, err
}

// SoftDeleteRoleCascade retires a role together with all of its assignments
// and grants in one transaction, keeping the catalogue cascade-consistent.
func (r *PGRepository) SoftDeleteRoleCascade(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE roles SET active = FALSE, deleted_at = NOW(), updated_at = NOW()
			 WHERE id = $1 AND deleted_at IS NULL
			 RETURNING `+roleColumns, id)
		var err error
		role, err = scanRole(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return authz.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE role_assignments SET active = FALSE, deleted_at = NOW()
			 WHERE role_id = $1 AND deleted_at IS NULL`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE role_grants SET active = FALSE, deleted_at = NOW()
			 WHERE role_id = $1 AND deleted_at IS NULL`, id)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all non-deleted roles.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CreatePermission inserts a permission.
func (r *PGRepository) CreatePermission(ctx context.Context, name, resource, action string, system bool) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, resource, action, is_system, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		 RETURNING `+permissionColumns, name, resource, action, system)
	perm, err := scanPermission(row)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Permission{}, fmt.Errorf("%w: permission %s:%s exists", authz.ErrConflict, resource, action)
		}
		return Permission{}, err
	}
	return perm, nil
}

// FindPermissionByID fetches a permission regardless of its delete marker.
func (r *PGRepository) FindPermissionByID(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	return permissionNotFound(scanPermission(row))
}

// SoftDeletePermission retires a permission and its live grants.
func (r *PGRepository) SoftDeletePermission(ctx context.Context, id int64) (Permission, error) {
	var perm Permission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE permissions SET active = FALSE, deleted_at = NOW(), updated_at = NOW()
			 WHERE id = $1 AND deleted_at IS NULL
			 RETURNING `+permissionColumns, id)
		var err error
		perm, err = scanPermission(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return authz.ErrNotFound
			}
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE role_grants SET active = FALSE, deleted_at = NOW()
			 WHERE permission_id = $1 AND deleted_at IS NULL`, id)
		return err
	})
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions returns all non-deleted permissions.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// CreateGrant inserts a role-to-permission grant. The partial unique index
// over (role_id, permission_id) WHERE deleted_at IS NULL makes exactly one
// of two racing inserts succeed.
func (r *PGRepository) CreateGrant(ctx context.Context, roleID, permissionID, grantedBy int64) (Grant, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO role_grants (role_id, permission_id, granted_by, granted_at, active)
		 VALUES ($1, $2, $3, NOW(), TRUE)
		 RETURNING `+grantColumns, roleID, permissionID, grantedBy)
	grant, err := scanGrant(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_role_grants_live") {
			return Grant{}, fmt.Errorf("%w: grant already active", authz.ErrConflict)
		}
		return Grant{}, err
	}
	return grant, nil
}

// SoftDeleteGrant retires the live grant for (role, permission). Returns
// ErrNotFound when no live grant exists; callers decide whether that is an
// error.
func (r *PGRepository) SoftDeleteGrant(ctx context.Context, roleID, permissionID int64) (Grant, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE role_grants SET active = FALSE, deleted_at = NOW()
		 WHERE role_id = $1 AND permission_id = $2 AND deleted_at IS NULL
		 RETURNING `+grantColumns, roleID, permissionID)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, authz.ErrNotFound
		}
		return Grant{}, err
	}
	return grant, nil
}

// ListGrantsForRole returns the live grants of a role.
func (r *PGRepository) ListGrantsForRole(ctx context.Context, roleID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM role_grants
		 WHERE role_id = $1 AND active AND deleted_at IS NULL
		 ORDER BY granted_at`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var tag string
	if err := row.Scan(&role.ID, &role.Name, &tag, &role.System, &role.Active, &role.DeletedAt, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.Tag = hierarchy.RoleTag(tag)
	return role, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	if err := row.Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.System, &perm.Active, &perm.DeletedAt, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
		return Permission{}, err
	}
	return perm, nil
}

func scanGrant(row pgx.Row) (Grant, error) {
	var grant Grant
	if err := row.Scan(&grant.ID, &grant.RoleID, &grant.PermissionID, &grant.GrantedBy, &grant.GrantedAt, &grant.Active, &grant.DeletedAt); err != nil {
		return Grant{}, err
	}
	return grant, nil
}

func roleNotFound(role Role, err error) (Role, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, authz.ErrNotFound
	}
	return role, err
}

func permissionNotFound(perm Permission, err error) (Permission, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, authz.ErrNotFound
	}
	return perm, err
}

var _ Repository = (*PGRepository)(nil)
