package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tripwell/tripwell/internal/jobs"
)

// Cleaner purges expired audit entries.
type Cleaner interface {
	CleanOldLogs(ctx context.Context) (int, error)
}

// KeyCleaner expires processed idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// RetentionSweepJob runs the audit retention purge from the queue.
type RetentionSweepJob struct {
	Retention Cleaner
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics

	// Keys, when set, has keys older than KeyRetention removed on each sweep.
	Keys         KeyCleaner
	KeyRetention time.Duration
}

// NewRetentionSweepJob initialises the retention sweep handler.
func NewRetentionSweepJob(retention Cleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *RetentionSweepJob {
	return &RetentionSweepJob{Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep.
func (j *RetentionSweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Retention == nil {
		return errors.New("retention sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskAuditRetentionSweep)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	removed, err := j.Retention.CleanOldLogs(ctx)
	if err != nil {
		j.logger().Error("retention sweep failed", slog.Any("error", err))
		return err
	}
	expired := 0
	if j.Keys != nil {
		keep := j.KeyRetention
		if keep <= 0 {
			keep = 24 * time.Hour
		}
		if expired, err = j.Keys.Cleanup(ctx, keep); err != nil {
			j.logger().Warn("idempotency key cleanup failed", slog.Any("error", err))
			err = nil
		}
	}
	j.logger().Info("completed retention sweep",
		slog.Int("removed", removed),
		slog.Int("expired_keys", expired),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RetentionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRetentionSweep))
	}
	return slog.Default().With(slog.String("job", TaskAuditRetentionSweep))
}

func (j *RetentionSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
