package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/tripwell/tripwell/internal/audit/http"
	"github.com/tripwell/tripwell/internal/observability"
	"github.com/tripwell/tripwell/internal/platform/httpx"
	"github.com/tripwell/tripwell/internal/rbac"
	"github.com/tripwell/tripwell/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	PermissionsHandler *rbac.PermissionsHandler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
	// Mount registers host routes, typically wrapped with Core.Protected.
	Mount func(r chi.Router)
}

// NewRouter constructs the chi.Router with Tripwell defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Mount != nil {
		r.Group(params.Mount)
	}
	return r
}

// NewCoreRouter builds the standard router for core.
func NewCoreRouter(core *Core, jobHandler *jobs.Handler, mount func(r chi.Router)) http.Handler {
	auditHandler := audithttp.NewHandler(core.Logger, core.Recorder, core.Retention, core.Gate).
		WithAuditor(core.Auditor)
	if core.Idempotency != nil {
		auditHandler.WithIdempotency(core.Idempotency)
	}
	return NewRouter(RouterParams{
		Logger:             core.Logger,
		Config:             core.Config,
		Metrics:            core.Metrics,
		PermissionsHandler: rbac.NewPermissionsHandler(core.Logger, core.Gate),
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Mount:              mount,
	})
}
