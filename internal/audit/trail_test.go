package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

type memOutbox struct {
	entries    []Entry
	activities []Activity
	fail       bool
}

func (m *memOutbox) EnqueueEntry(ctx context.Context, id uuid.UUID, entry Entry) error {
	if m.fail {
		return errors.New("outbox down")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memOutbox) EnqueueActivity(ctx context.Context, id uuid.UUID, activity Activity) error {
	if m.fail {
		return errors.New("outbox down")
	}
	m.activities = append(m.activities, activity)
	return nil
}

func TestTrailRecordStampsTime(t *testing.T) {
	outbox := &memOutbox{}
	trail := NewTrail(outbox, slog.Default())
	trail.Record(context.Background(), Entry{Entity: "roles", EntityID: "1", Action: ActionCreate, ActorID: 2})
	if len(outbox.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(outbox.entries))
	}
	if outbox.entries[0].At.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
}

// A failed audit write is swallowed; the primary operation must not see it.
func TestTrailBestEffortOnFailure(t *testing.T) {
	outbox := &memOutbox{fail: true}
	trail := NewTrail(outbox, slog.Default())
	trail.Record(context.Background(), Entry{Entity: "roles", EntityID: "1", Action: ActionDelete, ActorID: 2})
	trail.Activity(context.Background(), Activity{PrincipalID: 1, Type: ActivityDeleted})
	if len(outbox.entries) != 0 || len(outbox.activities) != 0 {
		t.Fatal("expected nothing recorded")
	}
}

func TestSnapshot(t *testing.T) {
	if Snapshot(nil) != nil {
		t.Fatal("nil input should produce nil snapshot")
	}
	data := Snapshot(map[string]int{"level": 5})
	if string(data) != `{"level":5}` {
		t.Fatalf("unexpected snapshot: %s", data)
	}
}
