package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/authcore-io/authcore/internal/assignment"
	jobmetrics "github.com/authcore-io/authcore/internal/jobs"
	"github.com/authcore-io/authcore/internal/observability"
)

const (
	sweepBatchSize   = 200
	publishBatchSize = 500
)

// ExpirationHandler processes scheduled assignment expirations.
type ExpirationHandler struct {
	svc        *assignment.Service
	metrics    *observability.Metrics
	jobMetrics *jobmetrics.Metrics
	logger     *slog.Logger
}

// NewExpirationHandler constructs the expiration task handler.
func NewExpirationHandler(svc *assignment.Service, metrics *observability.Metrics, jm *jobmetrics.Metrics, logger *slog.Logger) *ExpirationHandler {
	return &ExpirationHandler{svc: svc, metrics: metrics, jobMetrics: jm, logger: logger}
}

// HandleExpire retires the assignment referenced by the task payload. The
// service call is idempotent, so queue redeliveries are harmless.
func (h *ExpirationHandler) HandleExpire(ctx context.Context, t *asynq.Task) error {
	var payload ExpirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("expire payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := h.jobMetrics.Track(TaskAssignmentExpire)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if resultErr = h.svc.ProcessExpiration(ctx, payload.TaskID, payload.AssignmentID); resultErr != nil {
		h.logger.Error("process expiration",
			slog.String("task_id", payload.TaskID.String()),
			slog.Int64("assignment_id", payload.AssignmentID),
			slog.Any("error", resultErr))
		return resultErr
	}
	h.metrics.ObserveExpirations(1)
	return nil
}

// HandleSweep re-processes overdue expiration rows whose queue delivery was
// lost. It runs on a cron so the database rows remain the source of truth.
func (h *ExpirationHandler) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	tracker := h.jobMetrics.Track(TaskExpirationSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	processed, err := h.svc.SweepDue(ctx, sweepBatchSize)
	if err != nil {
		resultErr = err
		h.logger.Error("expiration sweep", slog.Any("error", err))
		return err
	}
	if processed > 0 {
		h.metrics.ObserveExpirations(processed)
		h.logger.Info("expiration sweep", slog.Int("processed", processed))
	}
	return nil
}

// AuditPublisher drains the audit outbox into the durable record tables.
type AuditPublisher struct {
	repo       auditStore
	metrics    *observability.Metrics
	jobMetrics *jobmetrics.Metrics
	logger     *slog.Logger
}

type auditStore interface {
	Publish(ctx context.Context, limit int) (int, error)
	PendingCount(ctx context.Context) (int64, error)
}

// NewAuditPublisher constructs the outbox drain handler.
func NewAuditPublisher(repo auditStore, metrics *observability.Metrics, jm *jobmetrics.Metrics, logger *slog.Logger) *AuditPublisher {
	return &AuditPublisher{repo: repo, metrics: metrics, jobMetrics: jm, logger: logger}
}

// HandlePublish moves a batch of outbox rows, then reports the backlog depth.
func (p *AuditPublisher) HandlePublish(ctx context.Context, _ *asynq.Task) error {
	tracker := p.jobMetrics.Track(TaskAuditPublish)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	moved, err := p.repo.Publish(ctx, publishBatchSize)
	if err != nil {
		resultErr = err
		p.logger.Error("audit publish", slog.Any("error", err))
		return err
	}
	if moved > 0 {
		p.logger.Info("audit publish", slog.Int("moved", moved))
	}
	pending, err := p.repo.PendingCount(ctx)
	if err != nil {
		p.logger.Warn("audit backlog", slog.Any("error", err))
		return nil
	}
	p.metrics.SetOutboxPending(pending)
	return nil
}
