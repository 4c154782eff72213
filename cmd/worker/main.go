package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/meridian-logistics/meridian/internal/app"
	jobmetrics "github.com/meridian-logistics/meridian/internal/jobs"
	"github.com/meridian-logistics/meridian/internal/platform/cache"
	"github.com/meridian-logistics/meridian/internal/platform/db"
	"github.com/meridian-logistics/meridian/internal/reconcile"
	"github.com/meridian-logistics/meridian/internal/reporting"
	"github.com/meridian-logistics/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional .env for local development.
	_ = godotenv.Load()

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
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	reconcileRepo := reconcile.NewRepository(pool)
	reconcileService := reconcile.NewService(reconcileRepo, nil, logger)

	reportingRepo := reporting.NewRepository(pool)
	reportingCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportingService := reporting.NewService(reportingRepo, reportingCache)

	transitionJob := &jobs.TransitionLogJob{Logger: logger, Metrics: metrics}
	invalidateJob := &jobs.ReportInvalidateJob{Reports: reportingService, Logger: logger, Metrics: metrics}
	sweepJob := &jobs.PaymentSweepJob{Reconcile: reconcileService, Logger: logger, Metrics: metrics}

	sweepTask, err := jobs.NewPaymentSweepTask(jobs.PaymentSweepPayload{Limit: 200})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPaymentTransition, Handler: transitionJob.HandlePaymentTransition},
			{Type: jobs.TaskLogisticsTransition, Handler: transitionJob.HandleLogisticsTransition},
			{Type: jobs.TaskReportInvalidate, Handler: invalidateJob.Handle},
			{Type: jobs.TaskPaymentSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
