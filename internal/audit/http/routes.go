package audithttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tripwell/tripwell/internal/audit"
	"github.com/tripwell/tripwell/internal/rbac"
	"github.com/tripwell/tripwell/internal/shared"
)

const exportResource = "audit"

const exportRateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.Require(rbac.PermAuditView))
		gr.Get("/activity", h.handleActivity)
		gr.Get("/stats", h.handleStats)
		gr.Get("/suspicious", h.handleSuspicious)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.Require(rbac.PermAuditExport), limiter)
		gr.With(h.audited(audit.ActionExport, exportResource)).Get("/export.csv", h.handleExport)
	})
	r.With(h.rbac.Require(rbac.PermAuditManage)).Post("/cleanup", h.handleCleanup)
	r.With(h.rbac.Require(rbac.PermAPIAccess)).Post("/events", h.handleEvent)
}

func rateLimitKey(r *http.Request) (string, error) {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		if id := strings.TrimSpace(p.ID); id != "" {
			return "user:" + id, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
