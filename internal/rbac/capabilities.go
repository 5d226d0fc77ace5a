package rbac

// CapabilitySnapshot is a denormalised view of a role for presentation layers.
type CapabilitySnapshot struct {
	Role        Role            `json:"role"`
	Modules     map[string]bool `json:"modules"`
	Permissions []Permission    `json:"permissions"`

	CanCreateClients   bool `json:"canCreateClients"`
	CanEditClients     bool `json:"canEditClients"`
	CanDeleteClients   bool `json:"canDeleteClients"`
	CanExportClients   bool `json:"canExportClients"`
	CanCreateBookings  bool `json:"canCreateBookings"`
	CanCancelBookings  bool `json:"canCancelBookings"`
	CanRefundBookings  bool `json:"canRefundBookings"`
	CanManagePackages  bool `json:"canManagePackages"`
	CanPublishPackages bool `json:"canPublishPackages"`
	CanManageUsers     bool `json:"canManageUsers"`
	CanManageRoles     bool `json:"canManageRoles"`
	CanEditConfig      bool `json:"canEditConfig"`
	CanViewFinance     bool `json:"canViewFinance"`
	CanProcessPayments bool `json:"canProcessPayments"`
	CanExportReports   bool `json:"canExportReports"`
	CanViewAudit       bool `json:"canViewAudit"`
	CanManageAudit     bool `json:"canManageAudit"`
	CanManageAPIKeys   bool `json:"canManageApiKeys"`
}

// Capabilities computes the snapshot for role from the registry on every call.
func Capabilities(role Role) CapabilitySnapshot {
	modules := make(map[string]bool, len(modulePermissions))
	for m := range modulePermissions {
		modules[m] = CanAccessModule(role, m)
	}
	return CapabilitySnapshot{
		Role:        role,
		Modules:     modules,
		Permissions: RolePermissions(role),

		CanCreateClients:   HasPermission(role, PermClientsCreate),
		CanEditClients:     HasPermission(role, PermClientsEdit),
		CanDeleteClients:   HasPermission(role, PermClientsDelete),
		CanExportClients:   HasPermission(role, PermClientsExport),
		CanCreateBookings:  HasPermission(role, PermBookingsCreate),
		CanCancelBookings:  HasPermission(role, PermBookingsCancel),
		CanRefundBookings:  HasPermission(role, PermBookingsRefund),
		CanManagePackages:  HasPermission(role, PermPackagesEdit),
		CanPublishPackages: HasPermission(role, PermPackagesPublish),
		CanManageUsers:     HasPermission(role, PermUsersEdit),
		CanManageRoles:     HasPermission(role, PermUsersManageRoles),
		CanEditConfig:      HasPermission(role, PermConfigEdit),
		CanViewFinance:     HasPermission(role, PermFinanceView),
		CanProcessPayments: HasPermission(role, PermFinancePayments),
		CanExportReports:   HasPermission(role, PermReportsExport),
		CanViewAudit:       HasPermission(role, PermAuditView),
		CanManageAudit:     HasPermission(role, PermAuditManage),
		CanManageAPIKeys:   HasPermission(role, PermAPIManageKeys),
	}
}
