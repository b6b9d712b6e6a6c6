package models

import "time"

// Role is a named bundle of resource permissions, scoped to a tenant or to
// the global tenant.
type Role struct {
	Ref       string
	RoleID    string
	TenantID  string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserTenantRole grants a role to a user when acting under a tenant.
type UserTenantRole struct {
	UserRef  string
	TenantID string
	RoleRef  string
}

// TenantPair is one (tenant-of-assignment, tenant-of-role) pair from the
// user's role memberships, used by tenant visibility resolution.
type TenantPair struct {
	AssignmentTenantID string
	RoleTenantID       string
}

// DoubleGlobal reports whether both sides of the pair are the global
// tenant, which grants visibility of all tenants.
func (p TenantPair) DoubleGlobal() bool {
	return p.AssignmentTenantID == GlobalTenantID && p.RoleTenantID == GlobalTenantID
}

// EffectiveTenantID returns the non-global side of the pair. For a pair
// with one global side the specific side wins; for two specific sides the
// assignment side is authoritative.
func (p TenantPair) EffectiveTenantID() string {
	if p.AssignmentTenantID != GlobalTenantID {
		return p.AssignmentTenantID
	}
	return p.RoleTenantID
}
