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

	"github.com/regwatch/regwatch/internal/app"
	"github.com/regwatch/regwatch/internal/auth"
	"github.com/regwatch/regwatch/internal/backend"
	compliancehttp "github.com/regwatch/regwatch/internal/compliance/http"
	"github.com/regwatch/regwatch/internal/dashboard"
	"github.com/regwatch/regwatch/internal/observability"
	"github.com/regwatch/regwatch/internal/platform/cache"
	"github.com/regwatch/regwatch/internal/platform/db"
	"github.com/regwatch/regwatch/internal/shared"
	"github.com/regwatch/regwatch/internal/view"
	"github.com/regwatch/regwatch/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	tokens := auth.NewTokenIssuer(cfg.BackendJWTSecret, cfg.BackendRole, cfg.BackendTokenTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	backendClient, err := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger)
	if err != nil {
		logger.Error("backend client", slog.Any("error", err))
		os.Exit(1)
	}
	serviceClient := backendClient.WithCredentials(auth.NewServiceToken(tokens))

	catalogCache := cache.NewVersioned(redisClient, "catalog", cfg.CacheTTL)
	if err := catalogCache.Listen(ctx, logger, func(ver int64) {
		logger.Info("catalog cache refreshed", slog.Int64("version", ver))
	}); err != nil {
		logger.Warn("catalog cache listen", slog.Any("error", err))
	}
	catalog := backend.NewCatalog(serviceClient, catalogCache, logger)

	dashboardHandler := dashboard.NewHandler(logger, catalog, templates, csrfManager, dashboard.Renderers{}, dashboard.Renderers{})

	registry := compliancehttp.NewRegistry(cfg.ListViewTTL, metrics.SetOpenViews)
	go registry.Run(ctx)
	listHandler := compliancehttp.NewHandler(logger, backendClient, catalog, templates, csrfManager, registry, metrics, compliancehttp.Options{
		PageSize:      cfg.ListPageSize,
		MaxRecords:    cfg.ListMaxRecords,
		SearchDelay:   cfg.ListSearchDebounce,
		FetchAttempts: cfg.ListFetchAttempts,
		RetryDelay:    cfg.ListRetryDelay,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		ListHandler:      listHandler,
		JobHandler:       jobHandler,
		Backend:          backendClient,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", backendClient.BaseURL()))
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
	registry.Close()
}
