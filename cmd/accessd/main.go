package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saimambayao/tms-access/internal/app"
	"github.com/saimambayao/tms-access/internal/auth"
	"github.com/saimambayao/tms-access/internal/guard"
	"github.com/saimambayao/tms-access/internal/observability"
	"github.com/saimambayao/tms-access/internal/overrides"
	"github.com/saimambayao/tms-access/internal/platform/cache"
	"github.com/saimambayao/tms-access/internal/platform/db"
	"github.com/saimambayao/tms-access/internal/registry"
	"github.com/saimambayao/tms-access/internal/resolver"
	"github.com/saimambayao/tms-access/internal/transitions"
	"github.com/saimambayao/tms-access/internal/users"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	permCache := resolver.NewCache(redisClient, cfg.PermissionCacheTTL)

	usersRepo := users.NewRepository(dbpool)
	transitionsRepo := transitions.NewRepository(dbpool)
	transitionsService := transitions.NewService(transitionsRepo, usersRepo)

	registryRepo := registry.NewRepository(dbpool)
	registryService := registry.NewService(registryRepo, permCache, logger)

	overridesRepo := overrides.NewRepository(dbpool)
	overridesService := overrides.NewService(overridesRepo, registryService, transitionsService, permCache, logger)

	resolverService := resolver.NewService(registryService, overridesService, nil, permCache, logger)

	usersService := users.NewService(usersRepo, transitionsService, logger)

	gate := guard.Gate{
		Resolver: resolverService,
		Audit:    transitionsService,
		Metrics:  metrics,
		Toucher:  usersRepo,
		Logger:   logger,
	}
	guardMiddleware := guard.Middleware{Gate: gate}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, usersService)
	authHandler := auth.NewHandler(logger, authService, guardMiddleware)

	usersHandler := users.NewHandler(logger, usersService, resolverService, guardMiddleware)
	registryHandler := registry.NewHandler(logger, registryService, guardMiddleware)
	overridesHandler := overrides.NewHandler(logger, overridesService, guardMiddleware)
	transitionsHandler := transitions.NewHandler(logger, transitionsService, guardMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     auth.Middleware(authService, logger),
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RegistryHandler:    registryHandler,
		OverridesHandler:   overridesHandler,
		TransitionsHandler: transitionsHandler,
		Metrics:            metrics,
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
