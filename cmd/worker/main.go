package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/tripwell/tripwell/internal/app"
	"github.com/tripwell/tripwell/jobs"
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

	if cfg.AuditStore == app.StoreMemory {
		logger.Error("worker requires a shared audit store", slog.String("audit_store", cfg.AuditStore))
		os.Exit(1)
	}

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Error("init core", slog.Any("error", err))
		os.Exit(1)
	}
	defer core.Close()

	sweepJob := jobs.NewRetentionSweepJob(core.Retention, logger, core.JobMetrics)
	if core.KeyCleaner != nil {
		sweepJob.Keys = core.KeyCleaner
	}
	scanJob := jobs.NewSuspiciousScanJob(core.Recorder, logger, core.JobMetrics)

	scanTask, err := jobs.NewSuspiciousScanTask(jobs.SuspiciousScanPayload{MinSeverity: "medium"})
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRetentionSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskAuditSuspiciousScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.AuditCleanupInterval.String(), Task: jobs.NewRetentionSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/15 * * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
