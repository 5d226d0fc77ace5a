package rbac

// grant declares a role as the union of its parent's permissions and an
// explicit list of extras. The flattened table below is derived from these
// declarations once, at package initialisation.
type grant struct {
	role   Role
	parent Role
	extra  []Permission
}

// hierarchy must be ordered parent-first.
var hierarchy = []grant{
	{
		role: RoleViewer,
		extra: []Permission{
			PermClientsView,
			PermBookingsView,
			PermPackagesView,
			PermReportsView,
			PermAnalyticsView,
		},
	},
	{
		role:   RoleOperator,
		parent: RoleViewer,
		extra: []Permission{
			PermClientsCreate,
			PermClientsEdit,
			PermBookingsCreate,
			PermBookingsEdit,
			PermBookingsConfirm,
			PermFinanceView,
		},
	},
	{
		role:   RoleManager,
		parent: RoleOperator,
		extra: []Permission{
			PermClientsExport,
			PermBookingsCancel,
			PermBookingsRefund,
			PermBookingsExport,
			PermPackagesCreate,
			PermPackagesEdit,
			PermPackagesPublish,
			PermReportsCreate,
			PermReportsExport,
			PermAnalyticsExport,
			PermFinanceInvoices,
			PermUsersView,
			PermAuditView,
		},
	},
	{
		role:   RoleAdmin,
		parent: RoleManager,
		extra: []Permission{
			PermClientsDelete,
			PermPackagesDelete,
			PermConfigView,
			PermConfigEdit,
			PermUsersCreate,
			PermUsersEdit,
			PermUsersDelete,
			PermFinancePayments,
			PermFinanceRefunds,
			PermAuditExport,
			PermAPIAccess,
			PermAPIWebhooks,
		},
	},
}

// rolePermissions is the flattened lookup table. It is never mutated after init.
var rolePermissions = buildRolePermissions(hierarchy, allPermissions)

func buildRolePermissions(grants []grant, universe []Permission) map[Role]map[Permission]struct{} {
	table := make(map[Role]map[Permission]struct{}, len(grants)+1)
	for _, g := range grants {
		set := make(map[Permission]struct{})
		if g.parent != "" {
			parent, ok := table[g.parent]
			if !ok {
				panic("rbac: role " + string(g.role) + " declared before parent " + string(g.parent))
			}
			for p := range parent {
				set[p] = struct{}{}
			}
		}
		for _, p := range g.extra {
			set[p] = struct{}{}
		}
		table[g.role] = set
	}
	super := make(map[Permission]struct{}, len(universe))
	for _, p := range universe {
		super[p] = struct{}{}
	}
	table[RoleSuperAdmin] = super
	return table
}
