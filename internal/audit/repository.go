package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox row kinds.
const (
	kindAudit    = "audit"
	kindActivity = "activity"
)

// PGOutbox implements Outbox on PostgreSQL. Rows stay in audit_outbox until
// the publisher copies them to the immutable record tables.
type PGOutbox struct {
	pool *pgxpool.Pool
}

// NewOutbox constructs a PostgreSQL outbox.
func NewOutbox(pool *pgxpool.Pool) *PGOutbox {
	return &PGOutbox{pool: pool}
}

// EnqueueEntry stores a pending audit record.
func (o *PGOutbox) EnqueueEntry(ctx context.Context, id uuid.UUID, entry Entry) error {
	payload, err := json.Marshal(outboxEntry{
		Entity:   entry.Entity,
		EntityID: entry.EntityID,
		Action:   entry.Action,
		Before:   entry.Before,
		After:    entry.After,
		ActorID:  entry.ActorID,
		At:       entry.At,
	})
	if err != nil {
		return fmt.Errorf("audit: marshal outbox entry: %w", err)
	}
	_, err = o.pool.Exec(ctx,
		`INSERT INTO audit_outbox (id, kind, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		id, kindAudit, payload)
	return err
}

// EnqueueActivity stores a pending activity record.
func (o *PGOutbox) EnqueueActivity(ctx context.Context, id uuid.UUID, activity Activity) error {
	payload, err := json.Marshal(outboxActivity{
		PrincipalID: activity.PrincipalID,
		Type:        activity.Type,
		Description: activity.Description,
		Details:     activity.Details,
		At:          activity.At,
	})
	if err != nil {
		return fmt.Errorf("audit: marshal outbox activity: %w", err)
	}
	_, err = o.pool.Exec(ctx,
		`INSERT INTO audit_outbox (id, kind, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		id, kindActivity, payload)
	return err
}

type outboxEntry struct {
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Action   string          `json:"action"`
	Before   json.RawMessage `json:"before,omitempty"`
	After    json.RawMessage `json:"after,omitempty"`
	ActorID  int64           `json:"actor_id"`
	At       time.Time       `json:"at"`
}

type outboxActivity struct {
	PrincipalID int64          `json:"principal_id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	At          time.Time      `json:"at"`
}

// Repository reads and publishes immutable audit state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Publish drains up to limit unpublished outbox rows into the record
// tables. Inserts are keyed by outbox id, so re-publishing a row that
// already landed is a no-op; safe under at-least-once delivery.
func (r *Repository) Publish(ctx context.Context, limit int) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("audit: begin publish tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx,
		`SELECT id, kind, payload FROM audit_outbox
		 WHERE published_at IS NULL
		 ORDER BY created_at
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, err
	}
	type pending struct {
		id      uuid.UUID
		kind    string
		payload []byte
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.kind, &p.payload); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, p := range batch {
		switch p.kind {
		case kindAudit:
			var e outboxEntry
			if err := json.Unmarshal(p.payload, &e); err != nil {
				return 0, fmt.Errorf("audit: decode outbox entry %s: %w", p.id, err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO audit_records (id, entity, entity_id, action, before_state, after_state, actor_id, occurred_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (id) DO NOTHING`,
				p.id, e.Entity, e.EntityID, e.Action, nullableJSON(e.Before), nullableJSON(e.After), e.ActorID, e.At)
		case kindActivity:
			var a outboxActivity
			if err := json.Unmarshal(p.payload, &a); err != nil {
				return 0, fmt.Errorf("audit: decode outbox activity %s: %w", p.id, err)
			}
			details, merr := json.Marshal(a.Details)
			if merr != nil {
				return 0, fmt.Errorf("audit: encode activity details %s: %w", p.id, merr)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO activity_records (id, principal_id, activity_type, description, details, occurred_at)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO NOTHING`,
				p.id, a.PrincipalID, a.Type, a.Description, details, a.At)
		default:
			return 0, fmt.Errorf("audit: unknown outbox kind %q for %s", p.kind, p.id)
		}
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, `UPDATE audit_outbox SET published_at = NOW() WHERE id = $1`, p.id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("audit: commit publish tx: %w", err)
	}
	return len(batch), nil
}

// PendingCount returns the number of unpublished outbox rows.
func (r *Repository) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_outbox WHERE published_at IS NULL`).Scan(&count)
	return count, err
}

// TimelineWindow returns one page of audit records, newest first.
func (r *Repository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, entity, entity_id, action, COALESCE(before_state, 'null'::jsonb), COALESCE(after_state, 'null'::jsonb), actor_id, occurred_at
		 FROM audit_records
		 WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		   AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		   AND ($3::text IS NULL OR entity = $3)
		   AND ($4::text IS NULL OR action = $4)
		   AND ($5::bigint IS NULL OR actor_id = $5)
		 ORDER BY occurred_at DESC
		 OFFSET $6 LIMIT $7`,
		nullableTime(filters.From), nullableTime(filters.To),
		nullableText(filters.Entity), nullableText(filters.Action),
		nullableID(filters.ActorID), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Entity, &rec.EntityID, &rec.Action, &rec.Before, &rec.After, &rec.ActorID, &rec.At); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TimelineAll returns every audit record matching the filters, newest first.
func (r *Repository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, entity, entity_id, action, COALESCE(before_state, 'null'::jsonb), COALESCE(after_state, 'null'::jsonb), actor_id, occurred_at
		 FROM audit_records
		 WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		   AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		   AND ($3::text IS NULL OR entity = $3)
		   AND ($4::text IS NULL OR action = $4)
		   AND ($5::bigint IS NULL OR actor_id = $5)
		 ORDER BY occurred_at DESC`,
		nullableTime(filters.From), nullableTime(filters.To),
		nullableText(filters.Entity), nullableText(filters.Action),
		nullableID(filters.ActorID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Entity, &rec.EntityID, &rec.Action, &rec.Before, &rec.After, &rec.ActorID, &rec.At); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ActivityFor returns the activity history for one principal, newest first.
func (r *Repository) ActivityFor(ctx context.Context, principalID int64, limit int) ([]ActivityRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, principal_id, activity_type, description, details, occurred_at
		 FROM activity_records
		 WHERE principal_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`, principalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ActivityRecord
	for rows.Next() {
		var rec ActivityRecord
		var details []byte
		if err := rows.Scan(&rec.ID, &rec.PrincipalID, &rec.Type, &rec.Description, &details, &rec.At); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &rec.Details)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
