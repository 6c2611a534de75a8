package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/authcore-io/authcore/internal/app"
	"github.com/authcore-io/authcore/internal/assignment"
	"github.com/authcore-io/authcore/internal/audit"
	audithttp "github.com/authcore-io/authcore/internal/audit/http"
	"github.com/authcore-io/authcore/internal/delegation"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	trail := audit.NewTrail(audit.NewOutbox(pool), logger)

	snapshotCache := permission.NewCache(redisClient, cfg.SnapshotTTL)

	principalRepo := principal.NewRepository(pool)
	principalService := principal.NewService(principalRepo, trail, snapshotCache)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, trail, snapshotCache)

	assignmentRepo := assignment.NewRepository(pool)
	assignmentService := assignment.NewService(assignmentRepo, rolesRepo, principalRepo, trail, jobClient, snapshotCache, logger)

	permissionRepo := permission.NewRepository(pool)
	resolver := permission.NewResolver(permissionRepo, snapshotCache)

	delegationRepo := delegation.NewRepository(pool)
	delegationService := delegation.NewService(delegationRepo, assignmentService, principalRepo, trail)

	auditService := audit.NewService(audit.NewRepository(pool))

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		PrincipalHandler:  principal.NewHandler(logger, principalService),
		RolesHandler:      roles.NewHandler(logger, rolesService, metrics),
		AssignmentHandler: assignment.NewHandler(logger, assignmentService, metrics),
		PermissionHandler: permission.NewHandler(logger, resolver, metrics),
		DelegationHandler: delegation.NewHandler(logger, delegationService),
		AuditHandler:      audithttp.NewHandler(auditService, audit.NewExporter(), logger),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
