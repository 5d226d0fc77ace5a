package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tripwell/tripwell/internal/platform/httpx"
	"github.com/tripwell/tripwell/internal/shared"
)

// PermissionsHandler exposes read-only capability introspection.
type PermissionsHandler struct {
	logger *slog.Logger
	rbac   Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermUsersView, PermUsersManageRoles))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{role}", h.showRole)
	})
}

type roleSummary struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		rejection := Authorize(r.Context(), "")
		httpx.JSON(w, rejection.Status, rejection)
		return
	}
	role, ok := ParseRole(principal.Role)
	if !ok {
		role = Role(principal.Role)
	}
	httpx.JSON(w, http.StatusOK, Capabilities(role))
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := Roles()
	out := make([]roleSummary, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleSummary{Role: role, Permissions: RolePermissions(role)})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *PermissionsHandler) showRole(w http.ResponseWriter, r *http.Request) {
	role, ok := ParseRole(chi.URLParam(r, "role"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.ErrUnknownRole.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, Capabilities(role))
}
