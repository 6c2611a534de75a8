package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Outbox persists pending audit writes. Entries are durable the moment
// Enqueue returns and are published to the immutable record tables by the
// background publisher.
type Outbox interface {
	EnqueueEntry(ctx context.Context, id uuid.UUID, entry Entry) error
	EnqueueActivity(ctx context.Context, id uuid.UUID, activity Activity) error
}

// Trail is the write side of the audit subsystem. Writes are best effort:
// a failed audit write is logged and swallowed so the triggering operation
// still reports success. Traceability is traded for availability here;
// at-least-once delivery is preserved by the durable outbox.
type Trail struct {
	outbox Outbox
	logger *slog.Logger
}

// NewTrail constructs a Trail.
func NewTrail(outbox Outbox, logger *slog.Logger) *Trail {
	return &Trail{outbox: outbox, logger: logger}
}

// Record captures one mutation. Never returns an error to the caller.
func (t *Trail) Record(ctx context.Context, entry Entry) {
	if t == nil || t.outbox == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if err := t.outbox.EnqueueEntry(ctx, uuid.New(), entry); err != nil {
		t.logger.Error("audit write failed",
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.String("action", entry.Action),
			slog.Any("error", err))
	}
}

// Activity appends one user-facing history item. Best effort, like Record.
func (t *Trail) Activity(ctx context.Context, activity Activity) {
	if t == nil || t.outbox == nil {
		return
	}
	if activity.At.IsZero() {
		activity.At = time.Now().UTC()
	}
	if err := t.outbox.EnqueueActivity(ctx, uuid.New(), activity); err != nil {
		t.logger.Error("activity write failed",
			slog.Int64("principal_id", activity.PrincipalID),
			slog.String("type", activity.Type),
			slog.Any("error", err))
	}
}
