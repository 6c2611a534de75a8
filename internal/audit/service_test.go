package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubReader struct {
	rows       []Record
	activity   []ActivityRecord
	lastOffset int
	lastLimit  int
}

func (s *stubReader) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error) {
	s.lastOffset = offset
	s.lastLimit = limit
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *stubReader) TimelineAll(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	return s.rows, nil
}

func (s *stubReader) ActivityFor(ctx context.Context, principalID int64, limit int) ([]ActivityRecord, error) {
	return s.activity, nil
}

func mockRecord(ts string, action string) Record {
	at, _ := time.Parse(time.RFC3339, ts)
	return Record{ID: uuid.New(), Entity: "role_assignments", EntityID: "1", Action: action, ActorID: 7, At: at}
}

func TestTimelinePaging(t *testing.T) {
	reader := &stubReader{rows: []Record{
		mockRecord("2026-03-10T10:00:00Z", ActionRoleAssigned),
		mockRecord("2026-03-09T09:00:00Z", ActionRoleRevoked),
		mockRecord("2026-03-08T08:00:00Z", ActionCreate),
	}}
	svc := NewService(reader)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatal("expected hasNext true")
	}
	if reader.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", reader.lastLimit)
	}
	if reader.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", reader.lastOffset)
	}
}

func TestTimelineDefaultsPage(t *testing.T) {
	reader := &stubReader{}
	svc := NewService(reader)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: -3, PageSize: 0})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.Page != 1 || result.Paging.PageSize != 20 {
		t.Fatalf("unexpected paging defaults: %+v", result.Paging)
	}
}

func TestExportWritesCSV(t *testing.T) {
	rec := mockRecord("2026-03-10T10:00:00Z", ActionRoleAssigned)
	rec.After = []byte(`{"role":"manager"}`)
	reader := &stubReader{rows: []Record{rec}}
	svc := NewService(reader)
	rows, err := svc.Export(context.Background(), TimelineFilters{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	out, err := NewExporter().WriteCSV(rows)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "occurred_at,entity,entity_id,action") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], ActionRoleAssigned) || !strings.Contains(lines[1], "manager") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}

func TestActivityHistoryLimitClamped(t *testing.T) {
	reader := &stubReader{activity: []ActivityRecord{{Type: ActivityRoleAssigned}}}
	svc := NewService(reader)
	records, err := svc.ActivityHistory(context.Background(), 7, -1)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}
