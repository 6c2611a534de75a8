// Package jobs wires the background queue: scheduled expiration of
// temporary assignments and publication of the audit outbox.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue all background work runs on.
	QueueDefault = "default"
	// TaskAssignmentExpire retires one temporary assignment at its expiry.
	TaskAssignmentExpire = "assignment:expire"
	// TaskExpirationSweep re-processes overdue expiration rows the queue
	// may have lost.
	TaskExpirationSweep = "assignment:sweep"
	// TaskAuditPublish drains the audit outbox into the record tables.
	TaskAuditPublish = "audit:publish"
)

// ExpirePayload references the scheduled_expirations row to process.
type ExpirePayload struct {
	TaskID       uuid.UUID `json:"task_id"`
	AssignmentID int64     `json:"assignment_id"`
}

// NewAssignmentExpireTask constructs the expiration task for one assignment.
func NewAssignmentExpireTask(payload ExpirePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentExpire, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// ScheduleExpiration enqueues an expiration task to run at executeAt. The
// asynq task id reuses the persisted task id, so a retried enqueue of the
// same row cannot produce a second queue entry.
func (c *Client) ScheduleExpiration(ctx context.Context, taskID uuid.UUID, assignmentID int64, executeAt time.Time) error {
	task, err := NewAssignmentExpireTask(ExpirePayload{TaskID: taskID, AssignmentID: assignmentID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.TaskID(taskID.String()),
		asynq.ProcessAt(executeAt))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
