package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authcore-io/authcore/internal/authz"
	"github.com/authcore-io/authcore/internal/hierarchy"
	"github.com/authcore-io/authcore/internal/platform/db"
)

// CreateParams carries one assignment insert.
type CreateParams struct {
	PrincipalID int64
	RoleID      int64
	Scope       string
	AssignedBy  int64
	ExpiresAt   *time.Time
}

// Repository defines persistence operations for assignments and their
// scheduled expirations.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Assignment, error)
	CreateWithExpiration(ctx context.Context, params CreateParams, taskID uuid.UUID, executeAt time.Time) (Assignment, error)
	ActiveForPrincipal(ctx context.Context, principalID int64, now time.Time) ([]Assignment, error)
	SoftDelete(ctx context.Context, principalID, roleID int64) (Assignment, error)
	DeactivateByID(ctx context.Context, id int64) (Assignment, bool, error)
	PrincipalsWithRole(ctx context.Context, roleID int64, now time.Time) ([]int64, error)
	History(ctx context.Context, principalID int64, from, to time.Time) ([]Assignment, error)

	DueExpirations(ctx context.Context, now time.Time, limit int) ([]ScheduledExpiration, error)
	MarkProcessed(ctx context.Context, taskID uuid.UUID) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const assignmentColumns = `ra.id, ra.principal_id, ra.role_id, r.tag, COALESCE(ra.scope, ''), ra.assigned_by, ra.assigned_at, ra.expires_at, ra.active, ra.deleted_at`

// rowQuerier abstracts over pool and transaction for single-row reads.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAssignment(ctx context.Context, q rowQuerier, params CreateParams) (Assignment, error) {
	row := q.QueryRow(ctx,
		`INSERT INTO role_assignments AS ra (principal_id, role_id, scope, assigned_by, assigned_at, expires_at, active)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NOW(), $5, TRUE)
		 RETURNING ra.id, ra.principal_id, ra.role_id,
		           (SELECT tag FROM roles WHERE id = ra.role_id),
		           COALESCE(ra.scope, ''), ra.assigned_by, ra.assigned_at, ra.expires_at, ra.active, ra.deleted_at`,
		params.PrincipalID, params.RoleID, params.Scope, params.AssignedBy, params.ExpiresAt)
	return scanAssignment(row)
}

func mapCreateError(err error) error {
	if db.IsUniqueViolation(err, "uq_role_assignments_live") {
		return fmt.Errorf("%w: assignment already active", authz.ErrConflict)
	}
	return err
}

// Create inserts an assignment. The partial unique index over
// (principal_id, role_id) WHERE deleted_at IS NULL turns a duplicate live
// assignment into Conflict, also under concurrent grants.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Assignment, error) {
	assignment, err := insertAssignment(ctx, r.pool, params)
	if err != nil {
		return Assignment{}, mapCreateError(err)
	}
	return assignment, nil
}

// CreateWithExpiration inserts a temporary assignment together with its
// expiration contract in one transaction. Either both rows land or neither
// does; a failed schedule insert cannot leave a grant standing.
func (r *PGRepository) CreateWithExpiration(ctx context.Context, params CreateParams, taskID uuid.UUID, executeAt time.Time) (Assignment, error) {
	var created Assignment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		assignment, err := insertAssignment(ctx, tx, params)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO scheduled_expirations (task_id, task_kind, assignment_id, execute_at, processed)
			 VALUES ($1, 'assignment_expiry', $2, $3, FALSE)`,
			taskID, assignment.ID, executeAt); err != nil {
			return err
		}
		created = assignment
		return nil
	})
	if err != nil {
		return Assignment{}, mapCreateError(err)
	}
	return created, nil
}

// ActiveForPrincipal returns the live, non-expired assignments of a
// principal. Deactivated principals match no rows, so every read built on
// this agrees with the tag and permission snapshots.
func (r *PGRepository) ActiveForPrincipal(ctx context.Context, principalID int64, now time.Time) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+`
		 FROM role_assignments ra
		 JOIN roles r ON r.id = ra.role_id
		 JOIN principals p ON p.id = ra.principal_id
		 WHERE ra.principal_id = $1
		   AND ra.active AND ra.deleted_at IS NULL
		   AND (ra.expires_at IS NULL OR ra.expires_at > $2)
		   AND r.active AND r.deleted_at IS NULL
		   AND p.active AND p.deleted_at IS NULL
		 ORDER BY ra.assigned_at`, principalID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// SoftDelete retires the live assignment for (principal, role). Absent
// assignments surface as ErrNotFound; the service treats that as a no-op.
func (r *PGRepository) SoftDelete(ctx context.Context, principalID, roleID int64) (Assignment, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE role_assignments ra
		 SET active = FALSE, deleted_at = NOW()
		 FROM roles r
		 WHERE ra.principal_id = $1 AND ra.role_id = $2
		   AND ra.deleted_at IS NULL
		   AND r.id = ra.role_id
		 RETURNING `+assignmentColumns, principalID, roleID)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, authz.ErrNotFound
		}
		return Assignment{}, err
	}
	return assignment, nil
}

// DeactivateByID retires one assignment by primary key. The boolean result
// reports whether this call changed state; a second call for the same id
// returns false, which keeps expiration processing idempotent.
func (r *PGRepository) DeactivateByID(ctx context.Context, id int64) (Assignment, bool, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE role_assignments ra
		 SET active = FALSE, deleted_at = NOW()
		 FROM roles r
		 WHERE ra.id = $1 AND ra.active AND ra.deleted_at IS NULL
		   AND r.id = ra.role_id
		 RETURNING `+assignmentColumns, id)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, false, nil
		}
		return Assignment{}, false, err
	}
	return assignment, true, nil
}

// PrincipalsWithRole lists principals holding a live, non-expired
// assignment of the role.
func (r *PGRepository) PrincipalsWithRole(ctx context.Context, roleID int64, now time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ra.principal_id
		 FROM role_assignments ra
		 JOIN principals p ON p.id = ra.principal_id
		 WHERE ra.role_id = $1
		   AND ra.active AND ra.deleted_at IS NULL
		   AND (ra.expires_at IS NULL OR ra.expires_at > $2)
		   AND p.active AND p.deleted_at IS NULL
		 ORDER BY ra.assigned_at`, roleID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// History returns every assignment record of a principal inside the window,
// including revoked and expired ones, newest first.
func (r *PGRepository) History(ctx context.Context, principalID int64, from, to time.Time) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+`
		 FROM role_assignments ra
		 JOIN roles r ON r.id = ra.role_id
		 WHERE ra.principal_id = $1
		   AND ($2::timestamptz IS NULL OR ra.assigned_at >= $2)
		   AND ($3::timestamptz IS NULL OR ra.assigned_at <= $3)
		 ORDER BY ra.assigned_at DESC`, principalID, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// DueExpirations returns unprocessed rows whose execute_at has passed.
func (r *PGRepository) DueExpirations(ctx context.Context, now time.Time, limit int) ([]ScheduledExpiration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT task_id, assignment_id, execute_at, processed, processed_at
		 FROM scheduled_expirations
		 WHERE NOT processed AND execute_at <= $1
		 ORDER BY execute_at
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []ScheduledExpiration
	for rows.Next() {
		var task ScheduledExpiration
		if err := rows.Scan(&task.TaskID, &task.AssignmentID, &task.ExecuteAt, &task.Processed, &task.ProcessedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// MarkProcessed flags an expiration row done. Re-marking is harmless.
func (r *PGRepository) MarkProcessed(ctx context.Context, taskID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE scheduled_expirations SET processed = TRUE, processed_at = NOW() WHERE task_id = $1`, taskID)
	return err
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	var tag string
	if err := row.Scan(&a.ID, &a.PrincipalID, &a.RoleID, &tag, &a.Scope, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt, &a.Active, &a.DeletedAt); err != nil {
		return Assignment{}, err
	}
	a.RoleTag = hierarchy.RoleTag(tag)
	return a, nil
}

func collectAssignments(rows pgx.Rows) ([]Assignment, error) {
	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ Repository = (*PGRepository)(nil)
