package service

import "filmtrack/backend/internal/domain"

type Capability string

const (
	CapRead        Capability = "read"
	CapWrite       Capability = "write"
	CapManageUsers Capability = "manage_users"
	CapReconcile   Capability = "reconcile"
	CapAudit       Capability = "audit"
)

var rolePolicy = map[domain.Role]map[Capability]bool{
	domain.RoleViewer: {CapRead: true},
	domain.RoleUser:   {CapRead: true, CapWrite: true},
	domain.RoleAdmin:  {CapRead: true, CapWrite: true, CapManageUsers: true, CapReconcile: true, CapAudit: true},
}

// Can reports whether role holds capability. Unknown roles hold nothing.
func Can(role domain.Role, capability Capability) bool {
	return rolePolicy[role][capability]
}
