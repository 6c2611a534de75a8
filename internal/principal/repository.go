package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/platform/db"
)

// Repository defines persistence operations for principals.
type Repository interface {
	Create(ctx context.Context, externalID string) (Principal, error)
	FindByID(ctx context.Context, id int64) (Principal, error)
	FindByExternalID(ctx context.Context, externalID string) (Principal, error)
	SetActive(ctx context.Context, id int64, active bool) (Principal, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const principalColumns = `id, external_id, active, deleted_at, created_at, updated_at`

// Create inserts a principal for an identity-provider account.
func (r *PGRepository) Create(ctx context.Context, externalID string) (Principal, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO principals (external_id, active, created_at, updated_at)
		 VALUES ($1, TRUE, NOW(), NOW())
		 RETURNING `+principalColumns, externalID)
	p, err := scanPrincipal(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_principals_external_id") {
			return Principal{}, fmt.Errorf("%w: principal %s already registered", authz.ErrConflict, externalID)
		}
		return Principal{}, err
	}
	return p, nil
}

// FindByID fetches a principal regardless of its delete marker.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanNotFound(scanPrincipal(row))
}

// FindByExternalID fetches a principal by its identity-provider reference.
func (r *PGRepository) FindByExternalID(ctx context.Context, externalID string) (Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE external_id = $1`, externalID)
	return scanNotFound(scanPrincipal(row))
}

// SetActive flips the active flag and maintains the delete marker.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) (Principal, error) {
	row := r.pool.QueryRow(
		ctx,
		`UPDATE principals
		 SET active = $2,
		     deleted_at = CASE WHEN $2 THEN NULL ELSE NOW() END,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+principalColumns, id, active)
	return scanNotFound(scanPrincipal(row))
}

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	if err := row.Scan(&p.ID, &p.ExternalID, &p.Active, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Principal{}, err
	}
	return p, nil
}

func scanNotFound(p Principal, err error) (Principal, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, authz.ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

var _ Repository = (*PGRepository)(nil)
