package rbac

import "sort"

// Module names used by the presentation layers.
const (
	ModuleClients       = "clients"
	ModuleBookings      = "bookings"
	ModulePackages      = "packages"
	ModuleConfiguration = "configuration"
	ModuleUsers         = "users"
	ModuleReports       = "reports"
	ModuleAnalytics     = "analytics"
	ModuleFinance       = "finance"
	ModuleAudit         = "audit"
	ModuleIntegrations  = "integrations"
)

// modulePermissions maps a module to the permissions that open it. Holding any
// one of them is enough.
var modulePermissions = map[string][]Permission{
	ModuleClients:       {PermClientsView},
	ModuleBookings:      {PermBookingsView},
	ModulePackages:      {PermPackagesView},
	ModuleConfiguration: {PermConfigView},
	ModuleUsers:         {PermUsersView},
	ModuleReports:       {PermReportsView},
	ModuleAnalytics:     {PermAnalyticsView},
	ModuleFinance:       {PermFinanceView},
	ModuleAudit:         {PermAuditView},
	ModuleIntegrations:  {PermAPIAccess, PermAPIManageKeys},
}

// Modules lists the known module names in alphabetical order.
func Modules() []string {
	out := make([]string, 0, len(modulePermissions))
	for m := range modulePermissions {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// CanAccessModule reports whether role may open the named module. Unknown
// modules are closed to everyone.
func CanAccessModule(role Role, module string) bool {
	perms, ok := modulePermissions[module]
	if !ok {
		return false
	}
	return HasAnyPermission(role, perms...)
}
