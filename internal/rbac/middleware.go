package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tripwell/tripwell/internal/platform/httpx"
	"github.com/tripwell/tripwell/internal/shared"
)

// DenialObserver receives a notification for every rejected call.
type DenialObserver interface {
	ObserveDenial(code string, permission string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger   *slog.Logger
	Observer DenialObserver
}

// Require rejects requests whose principal lacks perm.
func (m Middleware) Require(perm Permission) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) *Rejection {
		return Authorize(r.Context(), perm)
	})
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(r *http.Request) *Rejection {
		return AuthorizeAny(r.Context(), normalized...)
	})
}

// RequireAll ensures the current principal has all required permissions.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(r *http.Request) *Rejection {
		return AuthorizeAll(r.Context(), normalized...)
	})
}

func (m Middleware) guard(check func(*http.Request) *Rejection) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rejection := check(r)
			if rejection == nil {
				next.ServeHTTP(w, r)
				return
			}
			if rejection.Code == CodeInsufficientPermissions {
				m.warnDenied(r, rejection)
			}
			if m.Observer != nil {
				m.Observer.ObserveDenial(string(rejection.Code), string(rejection.Required))
			}
			httpx.JSON(w, rejection.Status, rejection)
		})
	}
}

func (m Middleware) warnDenied(r *http.Request, rejection *Rejection) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var email string
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		email = p.Email
	}
	logger.Warn("permission denied",
		slog.String("email", email),
		slog.String("role", string(rejection.UserRole)),
		slog.String("target", r.Method+" "+r.URL.Path),
		slog.String("permission", string(rejection.Required)),
	)
}

func normalizePermissions(perms []Permission) []Permission {
	seen := make(map[Permission]struct{}, len(perms))
	normalized := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p = Permission(strings.TrimSpace(strings.ToLower(string(p))))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
