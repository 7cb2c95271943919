package rbac

import "sms-gateway/internal/auth"

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleTenantAdmin = "tenant_admin"
	RoleTenantUser  = "tenant_user"
	RoleSysAdmin    = "sys_admin"
	RoleAPIClient   = auth.RoleAPIClient
)

func IsSysAdmin(role string) bool { return role == RoleSysAdmin }

// TenantRoles are the roles that act inside a single tenant.
var TenantRoles = []string{RoleTenantAdmin, RoleTenantUser}
