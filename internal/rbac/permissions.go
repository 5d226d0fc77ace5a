package rbac

import "strings"

// Role represents a high-level permission grouping assigned to a principal.
type Role string

// Roles known to the platform. The set is closed.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleOperator   Role = "operator"
	RoleViewer     Role = "viewer"
)

// Permission represents an atomic capability in resource:action form.
type Permission string

// Client permissions.
const (
	PermClientsView   Permission = "clients:view"
	PermClientsCreate Permission = "clients:create"
	PermClientsEdit   Permission = "clients:edit"
	PermClientsDelete Permission = "clients:delete"
	PermClientsExport Permission = "clients:export"
)

// Booking permissions.
const (
	PermBookingsView    Permission = "bookings:view"
	PermBookingsCreate  Permission = "bookings:create"
	PermBookingsEdit    Permission = "bookings:edit"
	PermBookingsConfirm Permission = "bookings:confirm"
	PermBookingsCancel  Permission = "bookings:cancel"
	PermBookingsRefund  Permission = "bookings:refund"
	PermBookingsExport  Permission = "bookings:export"
)

// Travel package permissions.
const (
	PermPackagesView    Permission = "packages:view"
	PermPackagesCreate  Permission = "packages:create"
	PermPackagesEdit    Permission = "packages:edit"
	PermPackagesDelete  Permission = "packages:delete"
	PermPackagesPublish Permission = "packages:publish"
)

// Configuration permissions.
const (
	PermConfigView         Permission = "config:view"
	PermConfigEdit         Permission = "config:edit"
	PermConfigIntegrations Permission = "config:integrations"
)

// User management permissions.
const (
	PermUsersView        Permission = "users:view"
	PermUsersCreate      Permission = "users:create"
	PermUsersEdit        Permission = "users:edit"
	PermUsersDelete      Permission = "users:delete"
	PermUsersManageRoles Permission = "users:manage_roles"
)

// Reporting and analytics permissions.
const (
	PermReportsView     Permission = "reports:view"
	PermReportsCreate   Permission = "reports:create"
	PermReportsExport   Permission = "reports:export"
	PermAnalyticsView   Permission = "analytics:view"
	PermAnalyticsExport Permission = "analytics:export"
)

// Finance permissions.
const (
	PermFinanceView     Permission = "finance:view"
	PermFinanceInvoices Permission = "finance:invoices"
	PermFinancePayments Permission = "finance:payments"
	PermFinanceRefunds  Permission = "finance:refunds"
)

// Audit permissions.
const (
	PermAuditView   Permission = "audit:view"
	PermAuditExport Permission = "audit:export"
	PermAuditManage Permission = "audit:manage"
)

// External API integration permissions.
const (
	PermAPIAccess     Permission = "api:access"
	PermAPIManageKeys Permission = "api:manage_keys"
	PermAPIWebhooks   Permission = "api:webhooks"
)

var allPermissions = []Permission{
	PermClientsView, PermClientsCreate, PermClientsEdit, PermClientsDelete, PermClientsExport,
	PermBookingsView, PermBookingsCreate, PermBookingsEdit, PermBookingsConfirm, PermBookingsCancel, PermBookingsRefund, PermBookingsExport,
	PermPackagesView, PermPackagesCreate, PermPackagesEdit, PermPackagesDelete, PermPackagesPublish,
	PermConfigView, PermConfigEdit, PermConfigIntegrations,
	PermUsersView, PermUsersCreate, PermUsersEdit, PermUsersDelete, PermUsersManageRoles,
	PermReportsView, PermReportsCreate, PermReportsExport,
	PermAnalyticsView, PermAnalyticsExport,
	PermFinanceView, PermFinanceInvoices, PermFinancePayments, PermFinanceRefunds,
	PermAuditView, PermAuditExport, PermAuditManage,
	PermAPIAccess, PermAPIManageKeys, PermAPIWebhooks,
}

var allRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleManager, RoleOperator, RoleViewer}

// AllPermissions lists every defined permission.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// Roles lists every defined role, most privileged first.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRole normalises raw input into a known Role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := rolePermissions[role]; !ok {
		return "", false
	}
	return role, true
}

// Resource returns the namespace part of the permission.
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// Action returns the action part of the permission.
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

func (r Role) String() string { return string(r) }

func (p Permission) String() string { return string(p) }
