package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tripwell/tripwell/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRetentionSweep purges audit entries older than the retention window.
	TaskAuditRetentionSweep = "audit:retention_sweep"
	// TaskAuditSuspiciousScan runs the suspicious activity rules over the shared log.
	TaskAuditSuspiciousScan = "audit:suspicious_scan"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SuspiciousScanPayload tunes a single scan run.
type SuspiciousScanPayload struct {
	// MinSeverity drops findings below this level from the log output.
	MinSeverity string `json:"min_severity,omitempty"`
}

// NewRetentionSweepTask constructs a retention sweep task.
func NewRetentionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAuditRetentionSweep, nil)
}

// NewSuspiciousScanTask constructs a suspicious activity scan task.
func NewSuspiciousScanTask(payload SuspiciousScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditSuspiciousScan, data), nil
}

// NewTask builds the task registered under taskType with default payload.
func NewTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskAuditRetentionSweep:
		return NewRetentionSweepTask(), nil
	case TaskAuditSuspiciousScan:
		return NewSuspiciousScanTask(SuspiciousScanPayload{})
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", taskType)
	}
}
