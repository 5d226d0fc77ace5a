package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tripwell/tripwell/internal/rbac"
)

// RolesOptions defines available flags for the roles command.
type RolesOptions struct {
	Role       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RoleSummary is the JSON shape printed per role.
type RoleSummary struct {
	Role        rbac.Role         `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
	Modules     []string          `json:"modules"`
}

// RolesCommand prints the permission table for one role or for every role.
func RolesCommand(opts RolesOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	roles := rbac.Roles()
	if strings.TrimSpace(opts.Role) != "" {
		role, ok := rbac.ParseRole(opts.Role)
		if !ok {
			_, _ = fmt.Fprintf(opts.Stderr, "roles: unknown role %q\n", opts.Role)
			return 1
		}
		roles = []rbac.Role{role}
	}

	summaries := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		summaries = append(summaries, summarizeRole(role))
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summaries); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "roles: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	for _, s := range summaries {
		renderRoleHuman(opts.Stdout, s)
	}
	return 0
}

func summarizeRole(role rbac.Role) RoleSummary {
	perms := rbac.RolePermissions(role)
	sorted := make([]rbac.Permission, len(perms))
	copy(sorted, perms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	modules := make([]string, 0)
	for _, m := range rbac.Modules() {
		if rbac.CanAccessModule(role, m) {
			modules = append(modules, m)
		}
	}
	return RoleSummary{Role: role, Permissions: sorted, Modules: modules}
}

func renderRoleHuman(out io.Writer, s RoleSummary) {
	_, _ = fmt.Fprintf(out, "%s (%d permissions)\n", s.Role, len(s.Permissions))
	_, _ = fmt.Fprintf(out, "  modules: %s\n", strings.Join(s.Modules, ", "))
	for _, p := range s.Permissions {
		_, _ = fmt.Fprintf(out, "  - %s\n", p)
	}
}
