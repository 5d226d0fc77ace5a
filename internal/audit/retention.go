package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention defaults.
const (
	DefaultRetentionWindow = 30 * 24 * time.Hour
	DefaultCleanupInterval = 24 * time.Hour
)

// PurgeObserver receives the number of entries removed by each sweep.
type PurgeObserver interface {
	AddPurged(n int)
}

// RetentionConfig wires a RetentionManager.
type RetentionConfig struct {
	Store    Store
	Window   time.Duration
	Interval time.Duration
	Logger   *slog.Logger
	Observer PurgeObserver
	Clock    func() time.Time
}

// RetentionManager removes entries older than the retention window.
type RetentionManager struct {
	store    Store
	window   time.Duration
	interval time.Duration
	logger   *slog.Logger
	observer PurgeObserver
	now      func() time.Time
}

// NewRetentionManager constructs a RetentionManager with defaults applied.
func NewRetentionManager(cfg RetentionConfig) *RetentionManager {
	m := &RetentionManager{
		store:    cfg.Store,
		window:   cfg.Window,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		now:      cfg.Clock,
	}
	if m.window <= 0 {
		m.window = DefaultRetentionWindow
	}
	if m.interval <= 0 {
		m.interval = DefaultCleanupInterval
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Window reports the configured retention window.
func (m *RetentionManager) Window() time.Duration { return m.window }

// CleanOldLogs purges entries created before now minus the window. It logs a
// summary only when something was removed.
func (m *RetentionManager) CleanOldLogs(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, ErrStoreNotConfigured
	}
	cutoff := m.now().Add(-m.window)
	removed, err := m.store.Purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: clean old logs: %w", err)
	}
	if removed > 0 {
		m.logger.Info("audit: cleaned old logs",
			slog.Int("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	if m.observer != nil {
		m.observer.AddPurged(removed)
	}
	return removed, nil
}

// Run sweeps on the configured interval until ctx is cancelled. Overlapping
// sweeps are skipped.
func (m *RetentionManager) Run(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(m.logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	spec := "@every " + m.interval.String()
	if _, err := c.AddFunc(spec, func() {
		if _, err := m.CleanOldLogs(ctx); err != nil {
			m.logger.Error("audit: retention sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("audit: schedule retention %q: %w", spec, err)
	}

	m.logger.Info("audit: retention scheduler started",
		slog.Duration("interval", m.interval),
		slog.Duration("window", m.window),
	)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
