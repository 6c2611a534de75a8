package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/authcore-io/authcore/internal/app"
	"github.com/authcore-io/authcore/internal/assignment"
	"github.com/authcore-io/authcore/internal/audit"
	jobmetrics "github.com/authcore-io/authcore/internal/jobs"
	"github.com/authcore-io/authcore/internal/observability"
	"github.com/authcore-io/authcore/internal/permission"
	"github.com/authcore-io/authcore/internal/platform/cache"
	"github.com/authcore-io/authcore/internal/platform/db"
	"github.com/authcore-io/authcore/internal/principal"
	"github.com/authcore-io/authcore/internal/roles"
	"github.com/authcore-io/authcore/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, continuing without snapshot cache", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	trail := audit.NewTrail(audit.NewOutbox(pool), logger)
	snapshotCache := permission.NewCache(redisClient, cfg.SnapshotTTL)

	principalRepo := principal.NewRepository(pool)
	rolesRepo := roles.NewRepository(pool)
	assignmentRepo := assignment.NewRepository(pool)
	assignmentService := assignment.NewService(assignmentRepo, rolesRepo, principalRepo, trail, nil, snapshotCache, logger)

	auditRepo := audit.NewRepository(pool)

	metrics := observability.NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())

	expiration := jobs.NewExpirationHandler(assignmentService, metrics, jm, logger)
	publisher := jobs.NewAuditPublisher(auditRepo, metrics, jm, logger)

	sweepTask := asynq.NewTask(jobs.TaskExpirationSweep, nil)
	publishTask := asynq.NewTask(jobs.TaskAuditPublish, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAssignmentExpire, Handler: expiration.HandleExpire},
			{Type: jobs.TaskExpirationSweep, Handler: expiration.HandleSweep},
			{Type: jobs.TaskAuditPublish, Handler: publisher.HandlePublish},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 1m", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "@every 15s", Task: publishTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
