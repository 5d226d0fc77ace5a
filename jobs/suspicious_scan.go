package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tripwell/tripwell/internal/audit"
	jobmetrics "github.com/tripwell/tripwell/internal/jobs"
)

// Scanner evaluates the suspicious activity rules.
type Scanner interface {
	DetectSuspiciousActivity(ctx context.Context) ([]audit.Finding, error)
}

// SuspiciousScanJob reports anomalies found in the shared audit log.
type SuspiciousScanJob struct {
	Scanner Scanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSuspiciousScanJob initialises the scan handler.
func NewSuspiciousScanJob(scanner Scanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SuspiciousScanJob {
	return &SuspiciousScanJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

var severityRank = map[audit.Severity]int{
	audit.SeverityLow:    1,
	audit.SeverityMedium: 2,
	audit.SeverityHigh:   3,
}

// Handle executes the scan. Malformed log entries are not retried.
func (j *SuspiciousScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("suspicious scan: handler not configured")
	}
	var payload SuspiciousScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("suspicious scan: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskAuditSuspiciousScan)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	logger := j.logger()
	findings, err := j.Scanner.DetectSuspiciousActivity(ctx)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		if errors.Is(err, audit.ErrMalformedEntry) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	minRank := severityRank[audit.Severity(payload.MinSeverity)]
	for _, f := range findings {
		j.metrics().AddFindings(string(f.Type), string(f.Severity), 1)
		if severityRank[f.Severity] < minRank {
			continue
		}
		logger.Warn("suspicious activity detected",
			slog.String("type", string(f.Type)),
			slog.String("severity", string(f.Severity)),
			slog.String("description", f.Description),
		)
	}
	logger.Info("completed suspicious activity scan",
		slog.Int("findings", len(findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *SuspiciousScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditSuspiciousScan))
	}
	return slog.Default().With(slog.String("job", TaskAuditSuspiciousScan))
}

func (j *SuspiciousScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
