package auth

import (
	"net/http"

	"github.com/google/uuid"
)

// Role is the caller's role within the platform.
type Role string

const (
	RoleMember     Role = "member"
	RoleFirmAdmin  Role = "firm_admin"
	RoleSuperAdmin Role = "super_admin"
)

// RoleFromString converts a stored string to a Role; defaults to member on unknown.
func RoleFromString(s string) Role {
	switch Role(s) {
	case RoleMember, RoleFirmAdmin, RoleSuperAdmin:
		return Role(s)
	default:
		return RoleMember
	}
}

// Elevated reports whether the role may act on other users' records within a tenant.
func (r Role) Elevated() bool {
	return r == RoleFirmAdmin || r == RoleSuperAdmin
}

// Principal is the fully resolved caller: a verified identity matched to a
// tenant user row. TenantID is nil only for super admins, who operate across
// tenants.
type Principal struct {
	UserID   uuid.UUID
	Role     Role
	TenantID *uuid.UUID
	Email    string
	Name     string
}

// Tenant returns the principal's tenant id, or uuid.Nil for super admins.
func (p *Principal) Tenant() uuid.UUID {
	if p.TenantID == nil {
		return uuid.Nil
	}
	return *p.TenantID
}

// RequireElevated gates a route group to firm admins and super admins.
func RequireElevated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || p == nil || !p.Role.Elevated() {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
