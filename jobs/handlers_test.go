package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAuditStore struct {
	pending int64
	moved   int
	failPub bool
}

func (m *memAuditStore) Publish(ctx context.Context, limit int) (int, error) {
	if m.failPub {
		return 0, errors.New("publish down")
	}
	moved := m.moved
	m.moved = 0
	m.pending -= int64(moved)
	return moved, nil
}

func (m *memAuditStore) PendingCount(ctx context.Context) (int64, error) {
	return m.pending, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpireTaskPayloadRoundTrip(t *testing.T) {
	payload := ExpirePayload{TaskID: uuid.New(), AssignmentID: 42}
	task, err := NewAssignmentExpireTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TaskAssignmentExpire, task.Type())
	assert.Contains(t, string(task.Payload()), payload.TaskID.String())
}

func TestHandleExpireRejectsMalformedPayload(t *testing.T) {
	h := NewExpirationHandler(nil, nil, nil, discardLogger())
	task := asynq.NewTask(TaskAssignmentExpire, []byte("not json"))
	err := h.HandleExpire(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditPublisherDrainsAndReportsBacklog(t *testing.T) {
	store := &memAuditStore{pending: 12, moved: 12}
	p := NewAuditPublisher(store, nil, nil, discardLogger())

	err := p.HandlePublish(context.Background(), asynq.NewTask(TaskAuditPublish, nil))
	require.NoError(t, err)
	assert.Zero(t, store.pending)
}

func TestAuditPublisherSurfacesStoreFailure(t *testing.T) {
	p := NewAuditPublisher(&memAuditStore{failPub: true}, nil, nil, discardLogger())
	err := p.HandlePublish(context.Background(), asynq.NewTask(TaskAuditPublish, nil))
	assert.Error(t, err)
}
