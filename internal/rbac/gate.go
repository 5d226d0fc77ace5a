package rbac

import (
	"context"
	"net/http"
	"strings"

	"github.com/tripwell/tripwell/internal/shared"
)

// RejectionCode classifies why the gate refused a call.
type RejectionCode string

const (
	// CodeAuthRequired means no principal was attached to the call.
	CodeAuthRequired RejectionCode = "AUTH_REQUIRED"
	// CodeInsufficientPermissions means the principal's role lacks the permission.
	CodeInsufficientPermissions RejectionCode = "INSUFFICIENT_PERMISSIONS"
)

// Rejection is the structured outcome of a refused authorization check.
type Rejection struct {
	Status   int           `json:"-"`
	Message  string        `json:"error"`
	Code     RejectionCode `json:"code"`
	Required Permission    `json:"required,omitempty"`
	UserRole Role          `json:"userRole,omitempty"`
	Action   string        `json:"action,omitempty"`
}

// Authorize checks the principal in ctx against perm. A nil result means the
// call may proceed.
func Authorize(ctx context.Context, perm Permission) *Rejection {
	return authorize(ctx, []Permission{perm}, HasAllPermissions)
}

// AuthorizeAny passes when the principal holds at least one of perms.
func AuthorizeAny(ctx context.Context, perms ...Permission) *Rejection {
	return authorize(ctx, perms, HasAnyPermission)
}

// AuthorizeAll passes when the principal holds every one of perms.
func AuthorizeAll(ctx context.Context, perms ...Permission) *Rejection {
	return authorize(ctx, perms, HasAllPermissions)
}

func authorize(ctx context.Context, perms []Permission, check func(Role, ...Permission) bool) *Rejection {
	principal := shared.PrincipalFromContext(ctx)
	if principal == nil || strings.TrimSpace(principal.ID) == "" {
		return &Rejection{
			Status:  http.StatusUnauthorized,
			Message: "authentication required",
			Code:    CodeAuthRequired,
		}
	}
	if len(perms) == 0 {
		return nil
	}
	role := principalRole(principal)
	if check(role, perms...) {
		return nil
	}
	rejection := &Rejection{
		Status:   http.StatusForbidden,
		Message:  "insufficient permissions",
		Code:     CodeInsufficientPermissions,
		Required: joinPermissions(perms),
		UserRole: Role(principal.Role),
	}
	if len(perms) == 1 {
		rejection.Action = perms[0].Action()
	}
	return rejection
}

// principalRole resolves the principal's role. Unrecognised values map to an
// empty role, which holds nothing.
func principalRole(p *shared.Principal) Role {
	role, ok := ParseRole(p.Role)
	if !ok {
		return ""
	}
	return role
}

func joinPermissions(perms []Permission) Permission {
	if len(perms) == 1 {
		return perms[0]
	}
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return Permission(strings.Join(parts, ","))
}
