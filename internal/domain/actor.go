package domain

import "strings"

// Role is a platform role as issued by the auth provider.
type Role string

const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleCashier    Role = "CASHIER"
)

// NormalizeRole upper-cases and trims a role name so "admin" and
// " Admin " compare equal to RoleAdmin.
func NormalizeRole(r string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(r)))
}

// Actor is the authenticated operator driving the console.
type Actor struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Roles    []Role `json:"roles"`
	BranchID string `json:"branchId,omitempty"`
}

// HasRole reports whether the actor holds any of the given roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// CanWrite reports whether the actor may mutate cash days, movements and sales.
func (a Actor) CanWrite() bool {
	return a.HasRole(RoleSuperAdmin, RoleAdmin, RoleManager, RoleCashier)
}

// IsPrivileged reports whether the actor may override the close check and
// look at any branch.
func (a Actor) IsPrivileged() bool {
	return a.HasRole(RoleSuperAdmin, RoleAdmin)
}
