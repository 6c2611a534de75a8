package delegation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
)

// Repository defines persistence operations for delegations.
type Repository interface {
	Create(ctx context.Context, delegatorID, delegateID int64, tags []hierarchy.RoleTag) (Delegation, error)
	FindByID(ctx context.Context, id int64) (Delegation, error)
	ActiveForDelegate(ctx context.Context, delegateID int64) ([]Delegation, error)
	SoftDelete(ctx context.Context, id int64) (Delegation, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const delegationColumns = `id, delegator_id, delegate_id, role_tags, active, deleted_at, created_at`

// Create inserts a delegation record.
func (r *PGRepository) Create(ctx context.Context, delegatorID, delegateID int64, tags []hierarchy.RoleTag) (Delegation, error) {
	raw := make([]string, len(tags))
	for i, tag := range tags {
		raw[i] = string(tag)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO delegations (delegator_id, delegate_id, role_tags, active, created_at)
		 VALUES ($1, $2, $3, TRUE, NOW())
		 RETURNING `+delegationColumns, delegatorID, delegateID, raw)
	return scanDelegation(row)
}

// FindByID fetches a delegation regardless of its delete marker.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (Delegation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+delegationColumns+` FROM delegations WHERE id = $1`, id)
	d, err := scanDelegation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delegation{}, authz.ErrNotFound
	}
	return d, err
}

// ActiveForDelegate lists the live delegations granted to a principal.
func (r *PGRepository) ActiveForDelegate(ctx context.Context, delegateID int64) ([]Delegation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+delegationColumns+` FROM delegations
		 WHERE delegate_id = $1 AND active AND deleted_at IS NULL
		 ORDER BY created_at`, delegateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var delegations []Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		delegations = append(delegations, d)
	}
	return delegations, rows.Err()
}

// SoftDelete retires a delegation.
func (r *PGRepository) SoftDelete(ctx context.Context, id int64) (Delegation, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE delegations SET active = FALSE, deleted_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+delegationColumns, id)
	d, err := scanDelegation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delegation{}, authz.ErrNotFound
	}
	return d, err
}

func scanDelegation(row pgx.Row) (Delegation, error) {
	var d Delegation
	var raw []string
	if err := row.Scan(&d.ID, &d.DelegatorID, &d.DelegateID, &raw, &d.Active, &d.DeletedAt, &d.CreatedAt); err != nil {
		return Delegation{}, err
	}
	d.RoleTags = make([]hierarchy.RoleTag, len(raw))
	for i, tag := range raw {
		d.RoleTags[i] = hierarchy.RoleTag(tag)
	}
	return d, nil
}

var _ Repository = (*PGRepository)(nil)
