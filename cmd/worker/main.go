package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/saimambayao/tms-access/internal/app"
	"github.com/saimambayao/tms-access/internal/overrides"
	"github.com/saimambayao/tms-access/internal/platform/cache"
	"github.com/saimambayao/tms-access/internal/platform/db"
	"github.com/saimambayao/tms-access/internal/registry"
	"github.com/saimambayao/tms-access/internal/resolver"
	"github.com/saimambayao/tms-access/internal/transitions"
	"github.com/saimambayao/tms-access/internal/users"
	"github.com/saimambayao/tms-access/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	permCache := resolver.NewCache(redisClient, cfg.PermissionCacheTTL)

	usersRepo := users.NewRepository(pool)
	transitionsRepo := transitions.NewRepository(pool)
	transitionsService := transitions.NewService(transitionsRepo, usersRepo)

	registryRepo := registry.NewRepository(pool)
	registryService := registry.NewService(registryRepo, permCache, logger)

	overridesRepo := overrides.NewRepository(pool)
	overridesService := overrides.NewService(overridesRepo, registryService, transitionsService, permCache, logger)

	resolverService := resolver.NewService(registryService, overridesService, nil, permCache, logger)

	warmupJob := jobs.NewPermissionWarmupJob(resolverService, pool, logger, nil)
	integrityJob := jobs.NewIntegrityScanJob(pool, logger, nil)

	warmupTask, err := jobs.NewPermissionWarmupTask(jobs.PermissionWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewIntegrityScanTask(jobs.IntegrityScanPayload{ExpiredOverrideNotice: true})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIntegrityScan, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
