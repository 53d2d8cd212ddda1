package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/regwatch/regwatch/internal/app"
	"github.com/regwatch/regwatch/internal/auth"
	"github.com/regwatch/regwatch/internal/backend"
	jobmetrics "github.com/regwatch/regwatch/internal/jobs"
	"github.com/regwatch/regwatch/internal/platform/cache"
	"github.com/regwatch/regwatch/jobs"
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

	backendClient, err := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger)
	if err != nil {
		logger.Error("backend client", slog.Any("error", err))
		os.Exit(1)
	}
	tokens := auth.NewTokenIssuer(cfg.BackendJWTSecret, cfg.BackendRole, cfg.BackendTokenTTL)
	catalog := backend.NewCatalog(
		backendClient.WithCredentials(auth.NewServiceToken(tokens)),
		cache.NewVersioned(redisClient, "catalog", cfg.CacheTTL),
		logger,
	)

	warmupJob := jobs.NewWarmupJob(catalog, logger, jobmetrics.NewMetrics(nil))

	filtersTask, err := jobs.NewFiltersWarmupTask(jobs.FiltersWarmupPayload{Invalidate: true})
	if err != nil {
		logger.Error("build filters warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	dashboardTask, err := jobs.NewDashboardWarmupTask(jobs.DashboardWarmupPayload{})
	if err != nil {
		logger.Error("build dashboard warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    warmupJob.Handlers(),
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: filtersTask},
			{Spec: cfg.WarmupCron, Task: dashboardTask, Options: []asynq.Option{asynq.ProcessIn(time.Minute)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
