package models

import "time"

// GlobalTenantID is the distinguished tenant denoting cross-tenant scope.
// Roles and users assigned to it apply across tenants unless a more
// specific assignment restricts them.
const GlobalTenantID = "@"

type Tenant struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantDescription is the projection of a tenant returned to callers of
// tenant visibility resolution.
type TenantDescription struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (t *Tenant) Description() TenantDescription {
	return TenantDescription{
		TenantID: t.ID,
		Name:     t.Name,
		IsActive: t.IsActive,
	}
}
