package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tripwell/tripwell/internal/audit"
	jobmetrics "github.com/tripwell/tripwell/internal/jobs"
	"github.com/tripwell/tripwell/internal/observability"
	"github.com/tripwell/tripwell/internal/platform/cache"
	"github.com/tripwell/tripwell/internal/platform/db"
	"github.com/tripwell/tripwell/internal/rbac"
	"github.com/tripwell/tripwell/internal/shared"
)

const idempotencyTTL = 24 * time.Hour

// Core bundles the authorization and audit components shared by the server
// and the worker.
type Core struct {
	Config     *Config
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	JobMetrics *jobmetrics.Metrics
	Store      audit.Store
	Recorder   *audit.Recorder
	Retention  *audit.RetentionManager
	Gate       rbac.Middleware
	Auditor    *audit.Middleware
	// Idempotency deduplicates ingested events; nil for the memory store.
	Idempotency shared.IdempotencyStore
	// KeyCleaner expires Postgres idempotency keys; nil otherwise.
	KeyCleaner *shared.PGIdempotencyStore

	Redis *redis.Client
	Pool  *pgxpool.Pool
}

// NewCore builds the audit store selected by AUDIT_STORE and wires the
// recorder, detector, retention manager and gate around it.
func NewCore(ctx context.Context, cfg *Config, logger *slog.Logger) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	core := &Core{Config: cfg, Logger: logger}
	core.Metrics = observability.NewMetrics()
	core.JobMetrics = jobmetrics.NewMetrics(core.Metrics.Registerer())

	store, err := core.openStore(ctx)
	if err != nil {
		core.Close()
		return nil, err
	}
	core.Store = store

	core.Recorder = audit.NewRecorder(audit.RecorderConfig{
		Store:    store,
		Detector: audit.NewDetector(cfg.Thresholds()),
		Logger:   logger,
		Observer: core.Metrics,
	})
	core.Retention = audit.NewRetentionManager(audit.RetentionConfig{
		Store:    store,
		Window:   cfg.AuditRetention,
		Interval: cfg.AuditCleanupInterval,
		Logger:   logger,
		Observer: core.JobMetrics,
	})
	core.Gate = rbac.Middleware{Logger: logger, Observer: core.Metrics}
	core.Auditor = audit.NewMiddleware(core.Recorder)
	return core, nil
}

func (c *Core) openStore(ctx context.Context) (audit.Store, error) {
	cfg := c.Config
	switch cfg.AuditStore {
	case StoreRedis:
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		c.Redis = client
		c.Idempotency = shared.NewRedisIdempotencyStore(client, cfg.AuditRedisKey+":idem", idempotencyTTL)
		return audit.NewRedisStore(client, cfg.AuditRedisKey, cfg.AuditCapacity), nil
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		store := audit.NewPostgresStore(pool, cfg.AuditCapacity)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		keys := shared.NewPGIdempotencyStore(pool)
		if err := keys.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		c.Idempotency = keys
		c.KeyCleaner = keys
		return store, nil
	default:
		return audit.NewMemoryStore(cfg.AuditCapacity), nil
	}
}

// Protected gates a privileged handler on perm and audits its outcome as
// action on resource. Rejected calls never reach the audit wrapper.
func (c *Core) Protected(perm rbac.Permission, action audit.Action, resource string) func(http.Handler) http.Handler {
	gate := c.Gate.Require(perm)
	record := c.Auditor.Audit(action, resource)
	return func(next http.Handler) http.Handler {
		return gate(record(next))
	}
}

// Close releases external connections.
func (c *Core) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
